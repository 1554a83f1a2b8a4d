// Package classifier runs the graph-temporal action classifier: graph
// convolutions over a frozen joint adjacency, a temporal convolution stack
// and a small classification head.
package classifier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/landmark"
)

// normEpsilon matches the variance floor of the trained normalization layers.
const normEpsilon = 1e-5

// UnknownLabel names class indices absent from the class mapping.
const UnknownLabel = "UNKNOWN"

var (
	// ErrCheckpoint is returned for malformed or inconsistent checkpoints.
	ErrCheckpoint = fmt.Errorf("%w: invalid checkpoint", errs.ErrUnavailable)
	// ErrInputShape is returned when a sequence does not fit the model input.
	ErrInputShape = fmt.Errorf("%w: sequence does not match model input", errs.ErrValidation)
)

// gcnLayer aggregates neighbor features through the adjacency, projects
// them linearly and layer-normalizes each node.
type gcnLayer struct {
	adjacency *mat.Dense // nodes x nodes, frozen
	weight    *mat.Dense // out x in
	bias      []float64
	gamma     []float64
	beta      []float64
}

func (l *gcnLayer) forward(x *mat.Dense) *mat.Dense {
	var agg, out mat.Dense
	agg.Mul(l.adjacency, x)
	out.Mul(&agg, l.weight.T())

	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		floats.Add(row, l.bias)
		layerNorm(row, l.gamma, l.beta)
		relu(row)
	}
	return &out
}

// temporalBlock is Conv1d -> BatchNorm1d (inference statistics) -> ReLU.
type temporalBlock struct {
	taps    []*mat.Dense // one out x in matrix per kernel offset
	bias    []float64
	mean    []float64
	varnc   []float64
	gamma   []float64
	beta    []float64
	padding int
}

// forward convolves x (channels x time) along time with zero padding.
func (b *temporalBlock) forward(x *mat.Dense) *mat.Dense {
	inCh, steps := x.Dims()
	outCh, _ := b.taps[0].Dims()
	outLen := steps + 2*b.padding - len(b.taps) + 1

	y := mat.NewDense(outCh, outLen, nil)
	shifted := mat.NewDense(inCh, outLen, nil)
	for k, w := range b.taps {
		shifted.Zero()
		for t := 0; t < outLen; t++ {
			src := t + k - b.padding
			if src < 0 || src >= steps {
				continue
			}
			for c := 0; c < inCh; c++ {
				shifted.Set(c, t, x.At(c, src))
			}
		}
		var term mat.Dense
		term.Mul(w, shifted)
		y.Add(y, &term)
	}

	for o := 0; o < outCh; o++ {
		row := y.RawRowView(o)
		scale := b.gamma[o] / math.Sqrt(b.varnc[o]+normEpsilon)
		for t := range row {
			v := (row[t] + b.bias[o] - b.mean[o]) * scale
			row[t] = math.Max(0, v+b.beta[o])
		}
	}
	return y
}

// Model is a loaded classifier. It holds no per-call state and is safe for
// concurrent use.
type Model struct {
	layers   []gcnLayer
	temporal []temporalBlock
	hidden   *mat.Dense
	hiddenB  []float64
	output   *mat.Dense
	outputB  []float64

	labels          []string
	classIndex      map[string]int
	framesPerSample int
	nodes           int
	inputDim        int
}

// NewModel assembles a Model from checkpoint weights.
func NewModel(ck *Checkpoint) (*Model, error) {
	labels, index, err := ck.labels()
	if err != nil {
		return nil, err
	}

	m := &Model{
		labels:          labels,
		classIndex:      index,
		framesPerSample: ck.Args.FramesPerSample,
	}
	if m.framesPerSample <= 0 {
		m.framesPerSample = DefaultFramesPerSample
	}

	adjacency, err := ck.matrix("gcn_layers.0.adjacency")
	if err != nil {
		return nil, err
	}
	nodes, cols := adjacency.Dims()
	if nodes != cols {
		return nil, fmt.Errorf("%w: adjacency is %dx%d", ErrCheckpoint, nodes, cols)
	}
	m.nodes = nodes

	dim := 0
	for i := 0; ck.Has(fmt.Sprintf("gcn_layers.%d.linear.weight", i)); i++ {
		layer, err := loadGCNLayer(ck, i, adjacency, nodes)
		if err != nil {
			return nil, err
		}
		out, in := layer.weight.Dims()
		if i == 0 {
			m.inputDim = in
		} else if in != dim {
			return nil, fmt.Errorf("%w: gcn layer %d expects %d features, previous layer emits %d", ErrCheckpoint, i, in, dim)
		}
		dim = out
		m.layers = append(m.layers, layer)
	}
	if len(m.layers) == 0 {
		return nil, fmt.Errorf("%w: no graph layers", ErrCheckpoint)
	}

	for j := 0; ck.Has(fmt.Sprintf("temporal_cnn.network.%d.weight", 4*j)); j++ {
		block, err := loadTemporalBlock(ck, 4*j, dim)
		if err != nil {
			return nil, err
		}
		dim, _ = block.taps[0].Dims()
		m.temporal = append(m.temporal, block)
	}

	if m.hidden, err = ck.matrix("classifier.0.weight"); err != nil {
		return nil, err
	}
	hr, hc := m.hidden.Dims()
	if hc != dim {
		return nil, fmt.Errorf("%w: classifier expects %d features, temporal stack emits %d", ErrCheckpoint, hc, dim)
	}
	if m.hiddenB, err = ck.vector("classifier.0.bias", hr); err != nil {
		return nil, err
	}
	if m.output, err = ck.matrix("classifier.3.weight"); err != nil {
		return nil, err
	}
	classes, oc := m.output.Dims()
	if oc != hr {
		return nil, fmt.Errorf("%w: output layer expects %d features, hidden layer emits %d", ErrCheckpoint, oc, hr)
	}
	if classes != len(labels) {
		return nil, fmt.Errorf("%w: head has %d outputs for %d classes", ErrCheckpoint, classes, len(labels))
	}
	if m.outputB, err = ck.vector("classifier.3.bias", classes); err != nil {
		return nil, err
	}
	if err := m.checkArgs(ck.Args); err != nil {
		return nil, err
	}
	return m, nil
}

// checkArgs compares the recorded hyperparameters with the loaded layers.
// Unset widths are not checked.
func (m *Model) checkArgs(args Args) error {
	if len(args.GCNHiddenDims) > 0 {
		got := make([]int, len(m.layers))
		for i, l := range m.layers {
			got[i], _ = l.weight.Dims()
		}
		if !equalInts(got, args.GCNHiddenDims) {
			return fmt.Errorf("%w: gcn_hidden_dims %v, state dict has %v", ErrCheckpoint, args.GCNHiddenDims, got)
		}
	}
	if len(args.TemporalChannels) > 0 {
		got := make([]int, len(m.temporal))
		for i, b := range m.temporal {
			got[i], _ = b.taps[0].Dims()
		}
		if !equalInts(got, args.TemporalChannels) {
			return fmt.Errorf("%w: temporal_channels %v, state dict has %v", ErrCheckpoint, args.TemporalChannels, got)
		}
	}
	if args.Dropout < 0 || args.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v outside [0,1)", ErrCheckpoint, args.Dropout)
	}
	return nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func loadGCNLayer(ck *Checkpoint, i int, shared *mat.Dense, nodes int) (gcnLayer, error) {
	prefix := fmt.Sprintf("gcn_layers.%d.", i)
	layer := gcnLayer{adjacency: shared}
	if ck.Has(prefix + "adjacency") {
		a, err := ck.matrix(prefix + "adjacency")
		if err != nil {
			return gcnLayer{}, err
		}
		if r, c := a.Dims(); r != nodes || c != nodes {
			return gcnLayer{}, fmt.Errorf("%w: %sadjacency is %dx%d", ErrCheckpoint, prefix, r, c)
		}
		layer.adjacency = a
	}

	var err error
	if layer.weight, err = ck.matrix(prefix + "linear.weight"); err != nil {
		return gcnLayer{}, err
	}
	out, _ := layer.weight.Dims()
	if layer.bias, err = ck.vector(prefix+"linear.bias", out); err != nil {
		return gcnLayer{}, err
	}
	if layer.gamma, err = ck.vector(prefix+"norm.weight", out); err != nil {
		return gcnLayer{}, err
	}
	if layer.beta, err = ck.vector(prefix+"norm.bias", out); err != nil {
		return gcnLayer{}, err
	}
	return layer, nil
}

func loadTemporalBlock(ck *Checkpoint, idx, inCh int) (temporalBlock, error) {
	conv := fmt.Sprintf("temporal_cnn.network.%d.", idx)
	norm := fmt.Sprintf("temporal_cnn.network.%d.", idx+1)

	w, err := ck.tensor(conv+"weight", 3)
	if err != nil {
		return temporalBlock{}, err
	}
	outCh, in, kernel := w.Shape[0], w.Shape[1], w.Shape[2]
	if in != inCh {
		return temporalBlock{}, fmt.Errorf("%w: %sweight expects %d channels, got %d", ErrCheckpoint, conv, in, inCh)
	}

	b := temporalBlock{padding: kernel / 2}
	for k := 0; k < kernel; k++ {
		tap := mat.NewDense(outCh, in, nil)
		for o := 0; o < outCh; o++ {
			for c := 0; c < in; c++ {
				tap.Set(o, c, w.Data[(o*in+c)*kernel+k])
			}
		}
		b.taps = append(b.taps, tap)
	}

	if b.bias, err = ck.vector(conv+"bias", outCh); err != nil {
		return temporalBlock{}, err
	}
	if b.gamma, err = ck.vector(norm+"weight", outCh); err != nil {
		return temporalBlock{}, err
	}
	if b.beta, err = ck.vector(norm+"bias", outCh); err != nil {
		return temporalBlock{}, err
	}
	if b.mean, err = ck.vector(norm+"running_mean", outCh); err != nil {
		return temporalBlock{}, err
	}
	if b.varnc, err = ck.vector(norm+"running_var", outCh); err != nil {
		return temporalBlock{}, err
	}
	return b, nil
}

// Load reads a checkpoint file and builds its Model.
func Load(path string) (*Model, error) {
	ck, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	return NewModel(ck)
}

// FramesPerSample is the sequence length the model was trained on.
func (m *Model) FramesPerSample() int { return m.framesPerSample }

// Nodes is the number of landmarks per frame the model expects.
func (m *Model) Nodes() int { return m.nodes }

// Labels returns the class labels ordered by class index.
func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Label returns the label of class i, or UnknownLabel.
func (m *Model) Label(i int) string {
	if i < 0 || i >= len(m.labels) {
		return UnknownLabel
	}
	return m.labels[i]
}

// ClassIndex returns the class index of an upper-case label.
func (m *Model) ClassIndex(label string) (int, bool) {
	i, ok := m.classIndex[label]
	return i, ok
}

// Logits runs the network on a normalized (frames x nodes x 2) sequence.
func (m *Model) Logits(seq landmark.Sequence) ([]float64, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	if seq.Landmarks() != m.nodes {
		return nil, fmt.Errorf("%w: %d landmarks per frame, model expects %d", ErrInputShape, seq.Landmarks(), m.nodes)
	}
	if m.inputDim != 2 {
		return nil, fmt.Errorf("%w: model expects %d input features per landmark", ErrInputShape, m.inputDim)
	}

	// per-frame graph features pooled over nodes: time x features
	var pooled *mat.Dense
	for t, frame := range seq {
		x := mat.NewDense(m.nodes, 2, landmark.Flatten(frame))
		for i := range m.layers {
			x = m.layers[i].forward(x)
		}
		_, feat := x.Dims()
		if pooled == nil {
			pooled = mat.NewDense(len(seq), feat, nil)
		}
		for f := 0; f < feat; f++ {
			pooled.Set(t, f, mat.Sum(x.ColView(f))/float64(m.nodes))
		}
	}

	// channels x time
	h := mat.DenseCopyOf(pooled.T())
	for i := range m.temporal {
		h = m.temporal[i].forward(h)
	}
	channels, steps := h.Dims()
	features := make([]float64, channels)
	for c := range features {
		features[c] = floats.Sum(h.RawRowView(c)) / float64(steps)
	}

	hidden := affine(m.hidden, m.hiddenB, features)
	relu(hidden)
	return affine(m.output, m.outputB, hidden), nil
}

// affine returns w·x + b.
func affine(w *mat.Dense, b, x []float64) []float64 {
	var out mat.VecDense
	out.MulVec(w, mat.NewVecDense(len(x), x))
	res := append([]float64(nil), out.RawVector().Data...)
	floats.Add(res, b)
	return res
}

func layerNorm(row, gamma, beta []float64) {
	n := float64(len(row))
	mean := floats.Sum(row) / n
	var variance float64
	for _, v := range row {
		d := v - mean
		variance += d * d
	}
	variance /= n
	inv := 1 / math.Sqrt(variance+normEpsilon)
	for i, v := range row {
		row[i] = (v-mean)*inv*gamma[i] + beta[i]
	}
}

func relu(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

// Softmax returns the normalized exponential of logits.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := floats.Max(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - peak)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Prediction is the class distribution for one sequence.
type Prediction struct {
	Label         string
	Index         int
	Confidence    float64
	Probabilities []float64
}

// Probability returns the probability of class i, or false when i is out of range.
func (p Prediction) Probability(i int) (float64, bool) {
	if i < 0 || i >= len(p.Probabilities) {
		return 0, false
	}
	return p.Probabilities[i], true
}

// Predict classifies a max-extent normalized sequence.
func (m *Model) Predict(seq landmark.Sequence) (Prediction, error) {
	logits, err := m.Logits(seq)
	if err != nil {
		return Prediction{}, err
	}
	probs := Softmax(logits)
	best := floats.MaxIdx(probs)
	return Prediction{
		Label:         m.Label(best),
		Index:         best,
		Confidence:    probs[best],
		Probabilities: probs,
	}, nil
}
