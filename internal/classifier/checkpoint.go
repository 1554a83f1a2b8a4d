package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DefaultFramesPerSample is used when a checkpoint does not record its sample length.
const DefaultFramesPerSample = 8

// Args are the architecture hyperparameters recorded at training time. The
// layer widths are inferred from the state dict; recorded widths must agree
// with it. Dropout is inactive at inference and only range-checked.
type Args struct {
	FramesPerSample  int     `json:"frames_per_sample"`
	GCNHiddenDims    []int   `json:"gcn_hidden_dims"`
	TemporalChannels []int   `json:"temporal_channels"`
	Dropout          float64 `json:"dropout"`
}

// Tensor is a dense row-major array.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Checkpoint is an exported training artifact: hyperparameters, the
// label to class-index table and the model state keyed by parameter name.
type Checkpoint struct {
	Args         Args              `json:"args"`
	ClassMapping map[string]int    `json:"class_mapping"`
	StateDict    map[string]Tensor `json:"model_state_dict"`
}

// LoadCheckpoint reads the checkpoint at path. Files ending in .json are
// decoded as JSON; anything else is read as a torch.save archive.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadTorchCheckpoint(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	ck, err := ReadCheckpoint(f)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return ck, nil
}

// ReadCheckpoint decodes a JSON checkpoint.
func ReadCheckpoint(r io.Reader) (*Checkpoint, error) {
	var ck Checkpoint
	if err := json.NewDecoder(r).Decode(&ck); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if err := ck.validate(); err != nil {
		return nil, err
	}
	return &ck, nil
}

func (c *Checkpoint) validate() error {
	if len(c.ClassMapping) == 0 {
		return fmt.Errorf("%w: empty class mapping", ErrCheckpoint)
	}
	if len(c.StateDict) == 0 {
		return fmt.Errorf("%w: empty model state", ErrCheckpoint)
	}
	return nil
}

// Has reports whether the state dict holds key.
func (c *Checkpoint) Has(key string) bool {
	_, ok := c.StateDict[key]
	return ok
}

// tensor returns the tensor at key after checking its rank and volume.
func (c *Checkpoint) tensor(key string, rank int) (Tensor, error) {
	t, ok := c.StateDict[key]
	if !ok {
		return Tensor{}, fmt.Errorf("%w: missing %s", ErrCheckpoint, key)
	}
	if len(t.Shape) != rank {
		return Tensor{}, fmt.Errorf("%w: %s has rank %d, want %d", ErrCheckpoint, key, len(t.Shape), rank)
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	if n != len(t.Data) || n == 0 {
		return Tensor{}, fmt.Errorf("%w: %s shape %v does not match %d values", ErrCheckpoint, key, t.Shape, len(t.Data))
	}
	return t, nil
}

// matrix loads a rank-2 tensor as a rows x cols matrix.
func (c *Checkpoint) matrix(key string) (*mat.Dense, error) {
	t, err := c.tensor(key, 2)
	if err != nil {
		return nil, err
	}
	data := append([]float64(nil), t.Data...)
	return mat.NewDense(t.Shape[0], t.Shape[1], data), nil
}

// vector loads a rank-1 tensor of the given length.
func (c *Checkpoint) vector(key string, length int) ([]float64, error) {
	t, err := c.tensor(key, 1)
	if err != nil {
		return nil, err
	}
	if t.Shape[0] != length {
		return nil, fmt.Errorf("%w: %s has length %d, want %d", ErrCheckpoint, key, t.Shape[0], length)
	}
	return append([]float64(nil), t.Data...), nil
}

// labels returns the index-ordered label table from the class mapping.
// Labels are upper-cased; unassigned indices read as UnknownLabel.
func (c *Checkpoint) labels() ([]string, map[string]int, error) {
	index := make(map[string]int, len(c.ClassMapping))
	names := make([]string, len(c.ClassMapping))
	for i := range names {
		names[i] = UnknownLabel
	}
	for label, i := range c.ClassMapping {
		if i < 0 || i >= len(names) {
			return nil, nil, fmt.Errorf("%w: class %q has index %d outside [0,%d)", ErrCheckpoint, label, i, len(names))
		}
		key := strings.ToUpper(strings.TrimSpace(label))
		index[key] = i
		names[i] = key
	}
	return names, index, nil
}
