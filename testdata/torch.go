package testdata

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/heungbuja/motionjudge/internal/classifier"
)

// Pickle opcodes used by torch.save with protocol 2.
const (
	opProto    = 0x80
	opMark     = '('
	opStop     = '.'
	opTuple    = 't'
	opReduce   = 'R'
	opGlobal   = 'c'
	opBinPers  = 'Q'
	opSetItems = 'u'
	opAppends  = 'e'
	opBinInt   = 'J'
	opBinFloat = 'G'
	opUnicode  = 'X'
	opEmptyDic = '}'
	opEmptyLst = ']'
	opEmptyTup = ')'
	opFalse    = 0x89
)

type pickler struct {
	bytes.Buffer
}

func (p *pickler) op(b byte) { p.WriteByte(b) }

func (p *pickler) integer(n int) {
	p.op(opBinInt)
	binary.Write(p, binary.LittleEndian, int32(n))
}

func (p *pickler) float(f float64) {
	p.op(opBinFloat)
	binary.Write(p, binary.BigEndian, math.Float64bits(f))
}

func (p *pickler) str(s string) {
	p.op(opUnicode)
	binary.Write(p, binary.LittleEndian, uint32(len(s)))
	p.WriteString(s)
}

func (p *pickler) global(module, name string) {
	p.op(opGlobal)
	p.WriteString(module + "\n" + name + "\n")
}

func (p *pickler) ints(vs []int) {
	p.op(opEmptyLst)
	p.op(opMark)
	for _, v := range vs {
		p.integer(v)
	}
	p.op(opAppends)
}

func (p *pickler) tuple(vs []int) {
	p.op(opMark)
	for _, v := range vs {
		p.integer(v)
	}
	p.op(opTuple)
}

func (p *pickler) orderedDict() {
	p.global("collections", "OrderedDict")
	p.op(opEmptyTup)
	p.op(opReduce)
}

// tensor emits a _rebuild_tensor_v2 call over the float32 storage record key.
func (p *pickler) tensor(key string, shape []int) {
	numel := 1
	stride := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		stride[d] = numel
		numel *= shape[d]
	}

	p.global("torch._utils", "_rebuild_tensor_v2")
	p.op(opMark)
	p.op(opMark)
	p.str("storage")
	p.global("torch", "FloatStorage")
	p.str(key)
	p.str("cpu")
	p.integer(numel)
	p.op(opTuple)
	p.op(opBinPers)
	p.integer(0)
	p.tuple(shape)
	p.tuple(stride)
	p.op(opFalse)
	p.orderedDict()
	p.op(opTuple)
	p.op(opReduce)
}

// WriteTorchCheckpoint stores ck at path in the torch.save zip layout: a
// pickled dict with "args", "class_mapping" and an OrderedDict
// "model_state_dict" whose tensors live in float32 storage records.
func WriteTorchCheckpoint(path string, ck *classifier.Checkpoint) error {
	keys := make([]string, 0, len(ck.StateDict))
	for k := range ck.StateDict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := &pickler{}
	p.op(opProto)
	p.op(2)
	p.op(opEmptyDic)
	p.op(opMark)

	p.str("args")
	p.op(opEmptyDic)
	p.op(opMark)
	p.str("frames_per_sample")
	p.integer(ck.Args.FramesPerSample)
	p.str("gcn_hidden_dims")
	p.ints(ck.Args.GCNHiddenDims)
	p.str("temporal_channels")
	p.ints(ck.Args.TemporalChannels)
	p.str("dropout")
	p.float(ck.Args.Dropout)
	p.op(opSetItems)

	labels := make([]string, 0, len(ck.ClassMapping))
	for l := range ck.ClassMapping {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	p.str("class_mapping")
	p.op(opEmptyDic)
	p.op(opMark)
	for _, l := range labels {
		p.str(l)
		p.integer(ck.ClassMapping[l])
	}
	p.op(opSetItems)

	p.str("model_state_dict")
	p.orderedDict()
	p.op(opMark)
	for i, k := range keys {
		p.str(k)
		p.tensor(strconv.Itoa(i), ck.StateDict[k].Shape)
	}
	p.op(opSetItems)

	p.op(opSetItems)
	p.op(opStop)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("archive/data.pkl")
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(p.Bytes()); err != nil {
		f.Close()
		return err
	}
	for i, k := range keys {
		w, err := zw.Create("archive/data/" + strconv.Itoa(i))
		if err != nil {
			f.Close()
			return err
		}
		buf := make([]byte, 4*len(ck.StateDict[k].Data))
		for j, v := range ck.StateDict[k].Data {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(float32(v)))
		}
		if _, err := w.Write(buf); err != nil {
			f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
