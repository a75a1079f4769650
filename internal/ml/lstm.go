package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LayerSpec is the serialized form of one network layer. Kernels are stored
// input-major (rows = inputs), with LSTM gates concatenated in i, f, c, o order.
type LayerSpec struct {
	Type            string      `json:"type"`
	Units           int         `json:"units"`
	Activation      string      `json:"activation,omitempty"`
	ReturnSequences bool        `json:"return_sequences,omitempty"`
	Kernel          [][]float64 `json:"kernel"`
	RecurrentKernel [][]float64 `json:"recurrent_kernel,omitempty"`
	Bias            []float64   `json:"bias"`
}

// NetworkSpec is the JSON artifact of a sequence network.
type NetworkSpec struct {
	Steps    int         `json:"steps"`
	Channels int         `json:"channels"`
	Layers   []LayerSpec `json:"layers"`
}

type lstmLayer struct {
	units  int
	seq    bool
	kernel *mat.Dense // in x 4u
	recur  *mat.Dense // u x 4u
	bias   *mat.VecDense
}

type denseLayer struct {
	units      int
	activation func(float64) float64
	kernel     *mat.Dense // in x out
	bias       *mat.VecDense
}

// LSTMNetwork runs the forward pass of a stacked LSTM followed by dense layers.
// Weights are read-only after load, so Predict is safe for concurrent use.
type LSTMNetwork struct {
	steps    int
	channels int
	lstms    []lstmLayer
	dense    []denseLayer
	arch     string
}

// LoadLSTMNetwork reads a network artifact.
func LoadLSTMNetwork(path string) (*LSTMNetwork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec NetworkSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse sequence network %s: %w", path, err)
	}
	net, err := NewLSTMNetwork(spec)
	if err != nil {
		return nil, fmt.Errorf("sequence network %s: %w", path, err)
	}
	return net, nil
}

// NewLSTMNetwork builds a network from its spec. LSTM layers must come first; the last
// layer must be dense with a single unit.
func NewLSTMNetwork(spec NetworkSpec) (*LSTMNetwork, error) {
	if spec.Steps <= 0 || spec.Channels <= 0 {
		return nil, fmt.Errorf("invalid input shape (%d, %d)", spec.Steps, spec.Channels)
	}

	net := &LSTMNetwork{steps: spec.Steps, channels: spec.Channels}
	width := spec.Channels
	var arch []string

	for i, l := range spec.Layers {
		switch strings.ToLower(l.Type) {
		case "lstm":
			if len(net.dense) > 0 {
				return nil, fmt.Errorf("layer %d: lstm after dense", i)
			}
			if k := len(net.lstms); k > 0 && !net.lstms[k-1].seq {
				return nil, fmt.Errorf("layer %d: previous lstm does not return sequences", i)
			}
			layer, err := buildLSTM(l, width)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			net.lstms = append(net.lstms, layer)
			arch = append(arch, fmt.Sprintf("LSTM(%d)", l.Units))
		case "dense":
			if len(net.dense) == 0 && len(net.lstms) > 0 && net.lstms[len(net.lstms)-1].seq {
				return nil, fmt.Errorf("layer %d: dense after lstm returning sequences", i)
			}
			layer, err := buildDense(l, width)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			net.dense = append(net.dense, layer)
			arch = append(arch, fmt.Sprintf("Dense(%d)", l.Units))
		default:
			return nil, fmt.Errorf("layer %d: unsupported type %q", i, l.Type)
		}
		width = l.Units
	}

	if len(net.lstms) == 0 || len(net.dense) == 0 {
		return nil, fmt.Errorf("network needs at least one lstm and one dense layer")
	}
	if width != 1 {
		return nil, fmt.Errorf("output width is %d, want 1", width)
	}
	net.arch = strings.Join(arch, " -> ")
	return net, nil
}

func buildLSTM(l LayerSpec, in int) (lstmLayer, error) {
	u := l.Units
	if u <= 0 {
		return lstmLayer{}, fmt.Errorf("units must be positive")
	}
	kernel, err := denseFrom(l.Kernel, in, 4*u)
	if err != nil {
		return lstmLayer{}, fmt.Errorf("kernel: %w", err)
	}
	recur, err := denseFrom(l.RecurrentKernel, u, 4*u)
	if err != nil {
		return lstmLayer{}, fmt.Errorf("recurrent kernel: %w", err)
	}
	if len(l.Bias) != 4*u {
		return lstmLayer{}, fmt.Errorf("bias has %d entries, want %d", len(l.Bias), 4*u)
	}
	return lstmLayer{
		units:  u,
		seq:    l.ReturnSequences,
		kernel: kernel,
		recur:  recur,
		bias:   mat.NewVecDense(4*u, append([]float64(nil), l.Bias...)),
	}, nil
}

func buildDense(l LayerSpec, in int) (denseLayer, error) {
	if l.Units <= 0 {
		return denseLayer{}, fmt.Errorf("units must be positive")
	}
	act, ok := activations[strings.ToLower(l.Activation)]
	if !ok {
		return denseLayer{}, fmt.Errorf("unsupported activation %q", l.Activation)
	}
	kernel, err := denseFrom(l.Kernel, in, l.Units)
	if err != nil {
		return denseLayer{}, fmt.Errorf("kernel: %w", err)
	}
	if len(l.Bias) != l.Units {
		return denseLayer{}, fmt.Errorf("bias has %d entries, want %d", len(l.Bias), l.Units)
	}
	return denseLayer{
		units:      l.Units,
		activation: act,
		kernel:     kernel,
		bias:       mat.NewVecDense(l.Units, append([]float64(nil), l.Bias...)),
	}, nil
}

func denseFrom(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("has %d rows, want %d", len(rows), r)
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

var activations = map[string]func(float64) float64{
	"":        func(x float64) float64 { return x },
	"linear":  func(x float64) float64 { return x },
	"relu":    func(x float64) float64 { return math.Max(0, x) },
	"sigmoid": sigmoid,
	"tanh":    math.Tanh,
}

// Architecture describes the layer stack, e.g. "LSTM(64) -> LSTM(32) -> Dense(16) -> Dense(1)".
func (n *LSTMNetwork) Architecture() string { return n.arch }

// InputShape returns (steps, channels).
func (n *LSTMNetwork) InputShape() (int, int) { return n.steps, n.channels }

// Predict runs one [steps][channels] sequence through the network.
func (n *LSTMNetwork) Predict(seq [][]float64) (float64, error) {
	if len(seq) != n.steps {
		return 0, fmt.Errorf("expected %d steps, got %d", n.steps, len(seq))
	}

	xs := make([]*mat.VecDense, n.steps)
	for t, step := range seq {
		if len(step) != n.channels {
			return 0, fmt.Errorf("step %d: expected %d channels, got %d", t, n.channels, len(step))
		}
		xs[t] = mat.NewVecDense(n.channels, append([]float64(nil), step...))
	}

	for _, l := range n.lstms {
		xs = l.forward(xs)
	}

	out := xs[len(xs)-1]
	for _, l := range n.dense {
		out = l.forward(out)
	}

	p := out.AtVec(0)
	if err := checkProbability(p); err != nil {
		return 0, err
	}
	return p, nil
}

// forward returns every hidden state when the layer returns sequences, else only the last.
func (l lstmLayer) forward(xs []*mat.VecDense) []*mat.VecDense {
	u := l.units
	h := mat.NewVecDense(u, nil)
	c := make([]float64, u)
	z := mat.NewVecDense(4*u, nil)
	rec := mat.NewVecDense(4*u, nil)

	var states []*mat.VecDense
	for _, x := range xs {
		z.MulVec(l.kernel.T(), x)
		rec.MulVec(l.recur.T(), h)
		z.AddVec(z, rec)
		z.AddVec(z, l.bias)

		next := make([]float64, u)
		for j := 0; j < u; j++ {
			ig := sigmoid(z.AtVec(j))
			fg := sigmoid(z.AtVec(u + j))
			cg := math.Tanh(z.AtVec(2*u + j))
			og := sigmoid(z.AtVec(3*u + j))
			c[j] = fg*c[j] + ig*cg
			next[j] = og * math.Tanh(c[j])
		}
		h = mat.NewVecDense(u, next)
		if l.seq {
			states = append(states, h)
		}
	}

	if l.seq {
		return states
	}
	return []*mat.VecDense{h}
}

func (l denseLayer) forward(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(l.units, nil)
	out.MulVec(l.kernel.T(), x)
	out.AddVec(out, l.bias)
	for i := 0; i < l.units; i++ {
		out.SetVec(i, l.activation(out.AtVec(i)))
	}
	return out
}
