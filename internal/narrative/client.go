// Package narrative asks an external text-generation endpoint for a free-text case
// summary. It is optional: the engine's template summary stands whenever the
// endpoint is unset or fails.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"icu-risk/internal/features"
)

// ErrDisabled is returned by a client without an endpoint.
var ErrDisabled = errors.New("narrative endpoint not configured")

// Metrics counts failed generation calls.
type Metrics interface {
	NarrativeFailuresInc()
}

type request struct {
	Inputs string `json:"inputs"`
}

type generation struct {
	SummaryText string `json:"summary_text"`
}

type Client struct {
	url     string
	token   string
	rest    *resty.Client
	metrics Metrics
}

// New creates a client for url. An empty url yields a disabled client.
func New(url, token string, timeout time.Duration, metrics Metrics) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	return &Client{url: url, token: token, rest: r, metrics: metrics}
}

func (c *Client) Enabled() bool { return c != nil && c.url != "" }

// Prompt renders the case description sent to the endpoint.
func Prompt(v features.Vitals) string {
	var b strings.Builder
	b.WriteString("Summarize this patient case for an ER doctor:\n")
	fmt.Fprintf(&b, "A %g-year-old %s presents with critical vitals.\n", v.Age, v.Gender)
	fmt.Fprintf(&b, "- Heart Rate: %g bpm\n", v.HeartRate)
	fmt.Fprintf(&b, "- Blood Pressure: %g/%g mmHg\n", v.SystolicBP, v.DiastolicBP)
	fmt.Fprintf(&b, "- O2 Saturation: %g%%\n", v.OxygenSaturation)
	return b.String()
}

// Summarize returns the generated summary for v.
func (c *Client) Summarize(ctx context.Context, v features.Vitals) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	text, err := c.generate(ctx, Prompt(v))
	if err != nil {
		if c.metrics != nil {
			c.metrics.NarrativeFailuresInc()
		}
		log.Warn().Err(err).Str("url", c.url).Msg("Narrative generation failed")
		return "", err
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	var result []generation
	req := c.rest.R().
		SetContext(ctx).
		SetBody(request{Inputs: prompt}).
		SetResult(&result)
	if c.token != "" {
		req.SetAuthToken(c.token)
	}

	resp, err := req.Post(c.url)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if len(result) == 0 || strings.TrimSpace(result[0].SummaryText) == "" {
		return "", fmt.Errorf("API returned no summary")
	}
	return strings.TrimSpace(result[0].SummaryText), nil
}
