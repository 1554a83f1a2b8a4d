package testdata

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/heungbuja/motionjudge/internal/classifier"
	"github.com/heungbuja/motionjudge/internal/landmark"
)

// ModelLabels is the class order of the synthetic checkpoints. It differs
// from the caller-facing action code order on purpose.
var ModelLabels = []string{"clap", "elbow", "exit", "stay", "stretch", "tilt", "underarm"}

type checkpointBuilder struct {
	state map[string]classifier.Tensor
	fill  func() float64
}

func (b *checkpointBuilder) put(key string, shape ...int) []float64 {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = b.fill()
	}
	b.state[key] = classifier.Tensor{Shape: shape, Data: data}
	return data
}

func (b *checkpointBuilder) constant(key string, v float64, n int) {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	b.state[key] = classifier.Tensor{Shape: []int{n}, Data: data}
}

// build lays out a two-layer graph network, one temporal block and the head.
func build(labels []string, fill func() float64) *classifier.Checkpoint {
	const (
		nodes    = landmark.TrunkCount
		hidden1  = 6
		hidden2  = 4
		channels = 5
		kernel   = 3
	)
	b := &checkpointBuilder{state: map[string]classifier.Tensor{}, fill: fill}

	adj := make([]float64, nodes*nodes)
	for i := 0; i < nodes; i++ {
		adj[i*nodes+i] = 0.5
		if i+1 < nodes {
			adj[i*nodes+i+1] = 0.25
			adj[(i+1)*nodes+i] = 0.25
		}
	}
	dims := []int{2, hidden1, hidden2}
	for i := 0; i < 2; i++ {
		p := "gcn_layers." + strconv.Itoa(i) + "."
		b.state[p+"adjacency"] = classifier.Tensor{Shape: []int{nodes, nodes}, Data: adj}
		b.put(p+"linear.weight", dims[i+1], dims[i])
		b.put(p+"linear.bias", dims[i+1])
		b.constant(p+"norm.weight", 1, dims[i+1])
		b.constant(p+"norm.bias", 0, dims[i+1])
	}

	b.put("temporal_cnn.network.0.weight", channels, hidden2, kernel)
	b.put("temporal_cnn.network.0.bias", channels)
	b.constant("temporal_cnn.network.1.weight", 1, channels)
	b.constant("temporal_cnn.network.1.bias", 0, channels)
	b.constant("temporal_cnn.network.1.running_mean", 0, channels)
	b.constant("temporal_cnn.network.1.running_var", 1, channels)

	b.put("classifier.0.weight", channels, channels)
	b.put("classifier.0.bias", channels)
	b.put("classifier.3.weight", len(labels), channels)
	b.put("classifier.3.bias", len(labels))

	mapping := make(map[string]int, len(labels))
	for i, l := range labels {
		mapping[l] = i
	}
	return &classifier.Checkpoint{
		Args: classifier.Args{
			FramesPerSample:  8,
			GCNHiddenDims:    []int{hidden1, hidden2},
			TemporalChannels: []int{channels},
			Dropout:          0.3,
		},
		ClassMapping: mapping,
		StateDict:    b.state,
	}
}

// RandomCheckpoint returns a checkpoint with seeded random weights.
func RandomCheckpoint(seed int64) *classifier.Checkpoint {
	rng := rand.New(rand.NewSource(seed))
	return build(ModelLabels, func() float64 { return rng.NormFloat64() * 0.5 })
}

// FixedCheckpoint returns a checkpoint whose output ignores the input and
// always yields probs (one per ModelLabels entry, summing to 1).
func FixedCheckpoint(probs []float64) *classifier.Checkpoint {
	ck := build(ModelLabels, func() float64 { return 0 })
	bias := ck.StateDict["classifier.3.bias"]
	for i, p := range probs {
		bias.Data[i] = math.Log(p)
	}
	return ck
}

// WriteCheckpoint stores ck as JSON at path.
func WriteCheckpoint(path string, ck *classifier.Checkpoint) error {
	data, err := json.Marshal(ck)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
