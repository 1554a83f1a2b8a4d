// Package seqio loads serialized pose sequences (.npz archives and .json
// documents) together with their free-form metadata.
package seqio

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sbinet/npyio/npz"

	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/landmark"
)

// Array names inside an archive.
const (
	LandmarksKey = "landmarks"
	MetadataKey  = "metadata"
)

var (
	// ErrMissingLandmarks is returned when a payload has no landmarks array.
	ErrMissingLandmarks = fmt.Errorf("%w: payload has no %q array", errs.ErrValidation, LandmarksKey)
	// ErrUnsupportedFormat is returned for unknown file extensions or array types.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported sequence format", errs.ErrValidation)
)

var seqPattern = regexp.MustCompile(`(?i)seq(\d+)`)

// Metadata is the free-form mapping stored next to a sequence. Missing or
// unparsable metadata never fails a load.
type Metadata map[string]any

// String returns the value at key if it is a non-empty string.
func (m Metadata) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok && s != ""
}

// Int returns the value at key as an int. JSON numbers and numeric strings are accepted.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Merge returns a copy of m overlaid with extra.
func (m Metadata) Merge(extra Metadata) Metadata {
	out := make(Metadata, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// SetDefault stores v at key unless key is already present.
func (m Metadata) SetDefault(key string, v any) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}

// LoadFile reads a sequence file, picking the decoder from its extension.
func LoadFile(path string) (landmark.Sequence, Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read sequence %s: %w", path, err)
	}

	var (
		seq  landmark.Sequence
		meta Metadata
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npz":
		seq, meta, err = LoadNPZ(data)
	case ".json":
		seq, meta, err = LoadJSON(data)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load sequence %s: %w", path, err)
	}
	return seq, meta, nil
}

// IsSequenceFile reports whether path has an extension LoadFile understands.
func IsSequenceFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npz", ".json":
		return true
	}
	return false
}

// DecodeNPZBase64 decodes a base64 .npz payload and loads it.
func DecodeNPZBase64(s string) (landmark.Sequence, Metadata, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, nil, errs.Validationf("npzBase64 is not valid base64: %v", err)
	}
	return LoadNPZ(data)
}

// LoadNPZ decodes a NumPy .npz archive holding a (frames x landmarks x
// channels) float32 or float64 "landmarks" array and an optional JSON string
// "metadata" array.
func LoadNPZ(data []byte) (landmark.Sequence, Metadata, error) {
	r, err := npz.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, errs.Validationf("read npz archive: %v", err)
	}

	name, ok := findKey(r.Keys(), LandmarksKey)
	if !ok {
		return nil, nil, ErrMissingLandmarks
	}
	hdr := r.Header(name)
	if hdr == nil {
		return nil, nil, ErrMissingLandmarks
	}
	shape := hdr.Descr.Shape
	if len(shape) != 3 {
		return nil, nil, errs.Validationf("landmarks array must be 3-dimensional, got shape %v", shape)
	}

	var flat []float64
	switch strings.TrimLeft(hdr.Descr.Type, "<>=|") {
	case "f8":
		if err := r.Read(name, &flat); err != nil {
			return nil, nil, errs.Validationf("read landmarks: %v", err)
		}
	case "f4":
		var f32 []float32
		if err := r.Read(name, &f32); err != nil {
			return nil, nil, errs.Validationf("read landmarks: %v", err)
		}
		flat = make([]float64, len(f32))
		for i, v := range f32 {
			flat[i] = float64(v)
		}
	default:
		return nil, nil, fmt.Errorf("%w: landmarks dtype %s", ErrUnsupportedFormat, hdr.Descr.Type)
	}

	raw, err := reshape(flat, shape[0], shape[1], shape[2])
	if err != nil {
		return nil, nil, err
	}
	seq, err := landmark.Sanitize(raw)
	if err != nil {
		return nil, nil, err
	}

	meta := Metadata{}
	if key, ok := findKey(r.Keys(), MetadataKey); ok {
		var s string
		if err := r.Read(key, &s); err == nil {
			meta = parseMetadata(s)
		}
	}
	return seq, meta, nil
}

// document is the JSON encoding of a sequence file.
type document struct {
	Landmarks [][][]float64   `json:"landmarks"`
	Metadata  json.RawMessage `json:"metadata"`
}

// LoadJSON decodes {"landmarks": [[[x, y, ...], ...], ...], "metadata": {...}}.
// Metadata may also be a JSON-encoded string.
func LoadJSON(data []byte) (landmark.Sequence, Metadata, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, errs.Validationf("decode sequence json: %v", err)
	}
	if doc.Landmarks == nil {
		return nil, nil, ErrMissingLandmarks
	}
	seq, err := landmark.Sanitize(doc.Landmarks)
	if err != nil {
		return nil, nil, err
	}

	meta := Metadata{}
	if len(doc.Metadata) > 0 && string(doc.Metadata) != "null" {
		var s string
		if json.Unmarshal(doc.Metadata, &s) == nil {
			meta = parseMetadata(s)
		} else if err := json.Unmarshal(doc.Metadata, &meta); err != nil {
			meta = Metadata{"raw_metadata": string(doc.Metadata)}
		}
	}
	return seq, meta, nil
}

// SequenceID extracts the number following "seq" in a file name.
func SequenceID(filename string) (int, bool) {
	m := seqPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

func parseMetadata(s string) Metadata {
	meta := Metadata{}
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return Metadata{"raw_metadata": s}
	}
	return meta
}

func findKey(keys []string, name string) (string, bool) {
	for _, k := range keys {
		if k == name || k == name+".npy" {
			return k, true
		}
	}
	return "", false
}

func reshape(flat []float64, frames, landmarks, channels int) ([][][]float64, error) {
	if frames*landmarks*channels != len(flat) {
		return nil, errs.Validationf("landmarks array holds %d values, shape needs %d", len(flat), frames*landmarks*channels)
	}
	out := make([][][]float64, frames)
	i := 0
	for t := range out {
		out[t] = make([][]float64, landmarks)
		for l := range out[t] {
			out[t][l] = flat[i : i+channels : i+channels]
			i += channels
		}
	}
	return out, nil
}
