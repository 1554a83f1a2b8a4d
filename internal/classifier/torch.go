package classifier

import (
	"fmt"
	"math/big"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// LoadTorchCheckpoint reads a checkpoint written by torch.save: a dict with
// "args", "class_mapping" and "model_state_dict" entries. Both the zip
// archive format and the legacy tar/pickle format are accepted.
func LoadTorchCheckpoint(path string) (*Checkpoint, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: unpickle: %w", path, err)
	}
	ck, err := torchCheckpoint(obj)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return ck, nil
}

func torchCheckpoint(obj any) (*Checkpoint, error) {
	if !isDict(obj) {
		return nil, fmt.Errorf("%w: top level is %T, want a dict", ErrCheckpoint, obj)
	}
	ck := &Checkpoint{
		ClassMapping: map[string]int{},
		StateDict:    map[string]Tensor{},
	}

	if raw, ok := dictGet(obj, "args"); ok && raw != nil {
		args, err := torchArgs(raw)
		if err != nil {
			return nil, err
		}
		ck.Args = args
	}

	if raw, ok := dictGet(obj, "class_mapping"); ok {
		err := dictEach(raw, func(k, v any) error {
			label, ok := k.(string)
			if !ok {
				return fmt.Errorf("%w: class_mapping key %v is not a string", ErrCheckpoint, k)
			}
			idx, ok := toInt(v)
			if !ok {
				return fmt.Errorf("%w: class_mapping[%q] is %T, want int", ErrCheckpoint, label, v)
			}
			ck.ClassMapping[label] = idx
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	raw, ok := dictGet(obj, "model_state_dict")
	if !ok {
		return nil, fmt.Errorf("%w: missing model_state_dict", ErrCheckpoint)
	}
	err := dictEach(raw, func(k, v any) error {
		key, ok := k.(string)
		if !ok {
			return fmt.Errorf("%w: state key %v is not a string", ErrCheckpoint, k)
		}
		t, ok := v.(*pytorch.Tensor)
		if !ok {
			return fmt.Errorf("%w: %s is %T, want a tensor", ErrCheckpoint, key, v)
		}
		dense, err := torchTensor(t)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCheckpoint, key, err)
		}
		ck.StateDict[key] = dense
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := ck.validate(); err != nil {
		return nil, err
	}
	return ck, nil
}

func torchArgs(raw any) (Args, error) {
	var args Args
	err := dictEach(raw, func(k, v any) error {
		name, _ := k.(string)
		switch name {
		case "frames_per_sample":
			n, ok := toInt(v)
			if !ok {
				return fmt.Errorf("%w: args.frames_per_sample is %T", ErrCheckpoint, v)
			}
			args.FramesPerSample = n
		case "gcn_hidden_dims":
			dims, err := toInts(v)
			if err != nil {
				return fmt.Errorf("%w: args.gcn_hidden_dims: %v", ErrCheckpoint, err)
			}
			args.GCNHiddenDims = dims
		case "temporal_channels":
			dims, err := toInts(v)
			if err != nil {
				return fmt.Errorf("%w: args.temporal_channels: %v", ErrCheckpoint, err)
			}
			args.TemporalChannels = dims
		case "dropout":
			f, ok := toFloat(v)
			if !ok {
				return fmt.Errorf("%w: args.dropout is %T", ErrCheckpoint, v)
			}
			args.Dropout = f
		}
		return nil
	})
	return args, err
}

// torchTensor copies a tensor view out of its storage into a dense
// row-major Tensor, honoring the storage offset and strides.
func torchTensor(t *pytorch.Tensor) (Tensor, error) {
	var (
		at func(int) float64
		n  int
	)
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		n, at = len(s.Data), func(i int) float64 { return float64(s.Data[i]) }
	case *pytorch.DoubleStorage:
		n, at = len(s.Data), func(i int) float64 { return s.Data[i] }
	case *pytorch.HalfStorage:
		n, at = len(s.Data), func(i int) float64 { return float64(s.Data[i]) }
	case *pytorch.BFloat16Storage:
		n, at = len(s.Data), func(i int) float64 { return float64(s.Data[i]) }
	case *pytorch.LongStorage:
		n, at = len(s.Data), func(i int) float64 { return float64(s.Data[i]) }
	case *pytorch.IntStorage:
		n, at = len(s.Data), func(i int) float64 { return float64(s.Data[i]) }
	default:
		return Tensor{}, fmt.Errorf("unsupported storage %T", t.Source)
	}
	if len(t.Stride) != len(t.Size) {
		return Tensor{}, fmt.Errorf("size %v and stride %v differ in rank", t.Size, t.Stride)
	}

	volume := 1
	for _, d := range t.Size {
		volume *= d
	}
	data := make([]float64, volume)
	idx := make([]int, len(t.Size))
	for k := range data {
		off := t.StorageOffset
		for d, i := range idx {
			off += i * t.Stride[d]
		}
		if off < 0 || off >= n {
			return Tensor{}, fmt.Errorf("element %d at storage offset %d outside %d values", k, off, n)
		}
		data[k] = at(off)
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < t.Size[d] {
				break
			}
			idx[d] = 0
		}
	}
	return Tensor{Shape: append([]int{}, t.Size...), Data: data}, nil
}

func isDict(obj any) bool {
	switch obj.(type) {
	case *types.Dict, *types.OrderedDict:
		return true
	}
	return false
}

func dictGet(obj any, key string) (any, bool) {
	switch d := obj.(type) {
	case *types.Dict:
		return d.Get(key)
	case *types.OrderedDict:
		return d.Get(key)
	}
	return nil, false
}

func dictEach(obj any, fn func(k, v any) error) error {
	switch d := obj.(type) {
	case *types.Dict:
		for _, e := range *d {
			if err := fn(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	case *types.OrderedDict:
		for el := d.List.Front(); el != nil; el = el.Next() {
			e := el.Value.(*types.OrderedDictEntry)
			if err := fn(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %T is not a dict", ErrCheckpoint, obj)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case *big.Int:
		if n.IsInt64() {
			return int(n.Int64()), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	n, ok := toInt(v)
	return float64(n), ok
}

func toInts(v any) ([]int, error) {
	var items []any
	switch l := v.(type) {
	case *types.List:
		items = *l
	case *types.Tuple:
		items = *l
	default:
		return nil, fmt.Errorf("%T is not a list", v)
	}
	out := make([]int, len(items))
	for i, item := range items {
		n, ok := toInt(item)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, want int", i, item)
		}
		out[i] = n
	}
	return out, nil
}
