package testdata

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/heungbuja/motionjudge/internal/landmark"
)

// NPZ encodes raw (frames x landmarks x channels) data as a .npz archive with
// a single little-endian "landmarks" array, float32 when single is set.
func NPZ(raw [][][]float64, single bool) ([]byte, error) {
	var shape [3]int
	shape[0] = len(raw)
	if len(raw) > 0 {
		shape[1] = len(raw[0])
		if len(raw[0]) > 0 {
			shape[2] = len(raw[0][0])
		}
	}

	descr := "<f8"
	if single {
		descr = "<f4"
	}

	var payload bytes.Buffer
	payload.WriteString(npyHeader(descr, shape))
	for _, f := range raw {
		for _, lm := range f {
			for _, v := range lm {
				if single {
					binary.Write(&payload, binary.LittleEndian, math.Float32bits(float32(v)))
				} else {
					binary.Write(&payload, binary.LittleEndian, math.Float64bits(v))
				}
			}
		}
	}

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, err := zw.Create("landmarks.npy")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return archive.Bytes(), nil
}

// SequenceNPZ encodes a landmark sequence as a float64 .npz archive.
func SequenceNPZ(seq landmark.Sequence) ([]byte, error) {
	return NPZ(seq.Raw(), false)
}

// npyHeader renders a version 1.0 .npy preamble padded to 64 bytes.
func npyHeader(descr string, shape [3]int) string {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d, %d), }", descr, shape[0], shape[1], shape[2])
	const preamble = 10 // magic(6) + version(2) + length(2)
	pad := 64 - (preamble+len(dict)+1)%64
	if pad == 64 {
		pad = 0
	}
	dict += strings.Repeat(" ", pad) + "\n"

	var b bytes.Buffer
	b.WriteString("\x93NUMPY")
	b.WriteByte(1)
	b.WriteByte(0)
	binary.Write(&b, binary.LittleEndian, uint16(len(dict)))
	b.WriteString(dict)
	return b.String()
}
