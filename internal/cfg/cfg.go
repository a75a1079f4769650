package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"icu-risk/internal/common"
	"icu-risk/internal/ensemble"
	"icu-risk/internal/features"
	"icu-risk/internal/ml"
	"icu-risk/internal/thresholds"
)

type Settings struct {
	ListenPort     int
	LogLevel       string
	DataPath       string
	RequestTimeout time.Duration

	Primary       ml.ArtifactSet
	Legacy        ml.ArtifactSet
	SequenceModel string

	Ensemble       ensemble.Config
	ThresholdFile  string
	DecisionPolicy string

	NarrativeURL     string
	NarrativeToken   string
	NarrativeTimeout time.Duration

	FeedEnabled bool
}

type ConfigFile struct {
	Server struct {
		Port           int    `yaml:"port"`
		LogLevel       string `yaml:"logLevel"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	Models struct {
		Primary  ml.ArtifactSet `yaml:"primary"`
		Legacy   ml.ArtifactSet `yaml:"legacy"`
		Sequence string         `yaml:"sequence"`
	} `yaml:"models"`

	Ensemble struct {
		Weights struct {
			XGBoost *float64 `yaml:"xgboost"`
			LSTM    *float64 `yaml:"lstm"`
		} `yaml:"weights"`
		Tiers             ensemble.Tiers `yaml:"tiers"`
		DecisionThreshold float64        `yaml:"decisionThreshold"`
		ThresholdFile     string         `yaml:"thresholdFile"`
		Policy            string         `yaml:"policy"`
	} `yaml:"ensemble"`

	Narrative struct {
		URL     string `yaml:"url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"narrative"`

	Feed struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"feed"`

	System struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"system"`
}

// Load reads .env (if present), then CONFIG_FILE when set, else the environment.
// Environment variables always win over file values.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	feedEnabled := common.DefaultFeedEnabled
	if config.Feed.Enabled != nil {
		feedEnabled = *config.Feed.Enabled
	}

	m := config.Models
	e := config.Ensemble
	settings := Settings{
		ListenPort:     getIntFromEnvOrConfig(common.EnvListenPort, config.Server.Port, common.DefaultListenPort),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orDefault(config.Server.LogLevel, common.DefaultLogLevel)),
		DataPath:       getEnvOrDefault(common.EnvDataPath, orDefault(config.System.DataPath, common.DefaultDataPath)),
		RequestTimeout: getDurationFromEnvOrConfig(common.EnvRequestTimeout, config.Server.RequestTimeout, common.DefaultRequestTimeout),
		Primary: ml.ArtifactSet{
			Model:       getEnvOrDefault(common.EnvModelPath, orDefault(m.Primary.Model, common.DefaultModelPath)),
			Scaler:      getEnvOrDefault(common.EnvScalerPath, orDefault(m.Primary.Scaler, common.DefaultScalerPath)),
			FeatureList: getEnvOrDefault(common.EnvFeatureListPath, orDefault(m.Primary.FeatureList, common.DefaultFeatureListPath)),
		},
		Legacy: ml.ArtifactSet{
			Model:       getEnvOrDefault(common.EnvLegacyModelPath, orDefault(m.Legacy.Model, common.DefaultLegacyModelPath)),
			Scaler:      getEnvOrDefault(common.EnvLegacyScalerPath, orDefault(m.Legacy.Scaler, common.DefaultLegacyScalerPath)),
			FeatureList: getEnvOrDefault(common.EnvLegacyFeatureListPath, orDefault(m.Legacy.FeatureList, common.DefaultLegacyFeatureListPath)),
		},
		SequenceModel: getEnvOrDefault(common.EnvLSTMModelPath, orDefault(m.Sequence, common.DefaultLSTMModelPath)),
		Ensemble: ensemble.Config{
			TabularWeight:  getFloatPtrFromEnvOrConfig(common.EnvTabularWeight, e.Weights.XGBoost, ensemble.DefaultTabularWeight),
			SequenceWeight: getFloatPtrFromEnvOrConfig(common.EnvSequenceWeight, e.Weights.LSTM, ensemble.DefaultSequenceWeight),
			Tiers: ensemble.Tiers{
				Medium:   getFloatFromEnvOrConfig(common.EnvRiskThresholdMedium, e.Tiers.Medium, ensemble.DefaultMediumTier),
				High:     getFloatFromEnvOrConfig(common.EnvRiskThresholdHigh, e.Tiers.High, ensemble.DefaultHighTier),
				Critical: getFloatFromEnvOrConfig(common.EnvRiskThresholdCritical, e.Tiers.Critical, ensemble.DefaultCriticalTier),
			},
			DecisionThreshold: getFloatFromEnvOrConfig(common.EnvDecisionThreshold, e.DecisionThreshold, ensemble.DefaultDecisionThreshold),
		},
		ThresholdFile:    getEnvOrDefault(common.EnvThresholdFile, e.ThresholdFile),
		DecisionPolicy:   getEnvOrDefault(common.EnvDecisionPolicy, orDefault(e.Policy, thresholds.PolicyYouden)),
		NarrativeURL:     getEnvOrDefault(common.EnvNarrativeURL, config.Narrative.URL),
		NarrativeToken:   getEnvOrDefault(common.EnvNarrativeToken, config.Narrative.Token),
		NarrativeTimeout: getDurationFromEnvOrConfig(common.EnvNarrativeTimeout, config.Narrative.Timeout, common.DefaultNarrativeTimeout),
		FeedEnabled:      getBoolOrDefault(common.EnvFeedEnabled, feedEnabled),
	}

	return finalize(settings)
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenPort:     getIntOrDefault(common.EnvListenPort, common.DefaultListenPort),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		DataPath:       getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout),
		Primary: ml.ArtifactSet{
			Model:       getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
			Scaler:      getEnvOrDefault(common.EnvScalerPath, common.DefaultScalerPath),
			FeatureList: getEnvOrDefault(common.EnvFeatureListPath, common.DefaultFeatureListPath),
		},
		Legacy: ml.ArtifactSet{
			Model:       getEnvOrDefault(common.EnvLegacyModelPath, common.DefaultLegacyModelPath),
			Scaler:      getEnvOrDefault(common.EnvLegacyScalerPath, common.DefaultLegacyScalerPath),
			FeatureList: getEnvOrDefault(common.EnvLegacyFeatureListPath, common.DefaultLegacyFeatureListPath),
		},
		SequenceModel: getEnvOrDefault(common.EnvLSTMModelPath, common.DefaultLSTMModelPath),
		Ensemble: ensemble.Config{
			TabularWeight:  getFloatOrDefault(common.EnvTabularWeight, ensemble.DefaultTabularWeight),
			SequenceWeight: getFloatOrDefault(common.EnvSequenceWeight, ensemble.DefaultSequenceWeight),
			Tiers: ensemble.Tiers{
				Medium:   getFloatOrDefault(common.EnvRiskThresholdMedium, ensemble.DefaultMediumTier),
				High:     getFloatOrDefault(common.EnvRiskThresholdHigh, ensemble.DefaultHighTier),
				Critical: getFloatOrDefault(common.EnvRiskThresholdCritical, ensemble.DefaultCriticalTier),
			},
			DecisionThreshold: getFloatOrDefault(common.EnvDecisionThreshold, ensemble.DefaultDecisionThreshold),
		},
		ThresholdFile:    os.Getenv(common.EnvThresholdFile), // optional
		DecisionPolicy:   getEnvOrDefault(common.EnvDecisionPolicy, thresholds.PolicyYouden),
		NarrativeURL:     os.Getenv(common.EnvNarrativeURL), // optional
		NarrativeToken:   os.Getenv(common.EnvNarrativeToken),
		NarrativeTimeout: getDurationOrDefault(common.EnvNarrativeTimeout, common.DefaultNarrativeTimeout),
		FeedEnabled:      getBoolOrDefault(common.EnvFeedEnabled, common.DefaultFeedEnabled),
	}

	return finalize(settings)
}

// finalize applies the threshold file, if any, and validates the result.
func finalize(settings Settings) (Settings, error) {
	if settings.ThresholdFile != "" {
		set, err := thresholds.LoadSet(settings.ThresholdFile)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to load threshold file: %w", err)
		}
		settings.Ensemble, err = settings.Ensemble.WithPolicy(set, settings.DecisionPolicy)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to apply threshold file %s: %w", settings.ThresholdFile, err)
		}
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// RegistryConfig returns the artifact locations for ml.LoadRegistry.
func (s *Settings) RegistryConfig(metrics ml.MetricsInterface, jitter features.Jitter) ml.RegistryConfig {
	return ml.RegistryConfig{
		Primary:       s.Primary,
		Legacy:        s.Legacy,
		SequenceModel: s.SequenceModel,
		Jitter:        jitter,
		Metrics:       metrics,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v == "" {
		return defaultValue
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// getFloatPtrFromEnvOrConfig is for values where an explicit 0 is meaningful.
func getFloatPtrFromEnvOrConfig(key string, configValue *float64, defaultValue float64) float64 {
	if configValue != nil {
		defaultValue = *configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(configValue); err == nil {
		defaultValue = d
	}
	return getDurationOrDefault(key, defaultValue)
}

// validateSettings performs range checks on every configuration value
func validateSettings(settings *Settings) error {
	if settings.ListenPort < common.MinListenPort || settings.ListenPort > common.MaxListenPort {
		return fmt.Errorf("listen port must be between %d and %d, got %d",
			common.MinListenPort, common.MaxListenPort, settings.ListenPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	if settings.RequestTimeout < common.MinRequestTimeout || settings.RequestTimeout > common.MaxRequestTimeout {
		return fmt.Errorf("request timeout must be between %v and %v, got %v",
			common.MinRequestTimeout, common.MaxRequestTimeout, settings.RequestTimeout)
	}

	if settings.Primary.Model == "" {
		return fmt.Errorf("primary model path cannot be empty")
	}
	if settings.SequenceModel == "" {
		return fmt.Errorf("sequence model path cannot be empty")
	}

	if err := settings.Ensemble.Validate(); err != nil {
		return err
	}

	if settings.ThresholdFile != "" && !slices.Contains(thresholds.PolicyNames, settings.DecisionPolicy) {
		return fmt.Errorf("unknown decision policy %q, want one of %v", settings.DecisionPolicy, thresholds.PolicyNames)
	}

	if settings.NarrativeURL != "" {
		u, err := url.Parse(settings.NarrativeURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("narrative URL must be an absolute http(s) URL, got %q", settings.NarrativeURL)
		}
		if settings.NarrativeTimeout < common.MinNarrativeTimeout || settings.NarrativeTimeout > common.MaxNarrativeTimeout {
			return fmt.Errorf("narrative timeout must be between %v and %v, got %v",
				common.MinNarrativeTimeout, common.MaxNarrativeTimeout, settings.NarrativeTimeout)
		}
	}

	return nil
}
