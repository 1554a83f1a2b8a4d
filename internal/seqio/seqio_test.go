package seqio_test

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heungbuja/motionjudge/internal/errs"
	"github.com/heungbuja/motionjudge/internal/landmark"
	"github.com/heungbuja/motionjudge/internal/seqio"
	"github.com/heungbuja/motionjudge/testdata"
)

func TestLoadNPZ(t *testing.T) {
	t.Run("float64 full body with visibility", func(t *testing.T) {
		raw := testdata.WithVisibility(testdata.FullBody(testdata.Clap(6)), 0.99)
		data, err := testdata.NPZ(raw, false)
		require.NoError(t, err)

		seq, meta, err := seqio.LoadNPZ(data)
		require.NoError(t, err)
		assert.Equal(t, testdata.Clap(6), seq)
		assert.NotNil(t, meta)
	})

	t.Run("float32 trunk", func(t *testing.T) {
		want := testdata.Stretch(4)
		data, err := testdata.NPZ(want.Raw(), true)
		require.NoError(t, err)

		seq, _, err := seqio.LoadNPZ(data)
		require.NoError(t, err)
		require.Len(t, seq, 4)
		require.Equal(t, landmark.TrunkCount, seq.Landmarks())
		for i := range want {
			for j := range want[i] {
				assert.InDelta(t, want[i][j].X, seq[i][j].X, 1e-6)
				assert.InDelta(t, want[i][j].Y, seq[i][j].Y, 1e-6)
			}
		}
	})

	t.Run("garbage is a validation error", func(t *testing.T) {
		_, _, err := seqio.LoadNPZ([]byte("not a zip"))
		require.Error(t, err)
		assert.True(t, errs.IsValidation(err))
	})
}

func TestDecodeNPZBase64(t *testing.T) {
	data, err := testdata.SequenceNPZ(testdata.Clap(5))
	require.NoError(t, err)

	seq, _, err := seqio.DecodeNPZBase64(base64.StdEncoding.EncodeToString(data))
	require.NoError(t, err)
	assert.Len(t, seq, 5)

	_, _, err = seqio.DecodeNPZBase64("%%%")
	assert.True(t, errs.IsValidation(err))
}

func TestLoadJSON(t *testing.T) {
	t.Run("unsupported landmark count", func(t *testing.T) {
		seq, meta, err := seqio.LoadJSON([]byte(`{
			"landmarks": [[[0.1, 0.2, 0.9], [0.3, 0.4, 0.8]]],
			"metadata": {"person": "p07"}
		}`))
		require.ErrorIs(t, err, landmark.ErrLandmarkCount)
		assert.Nil(t, seq)
		assert.Nil(t, meta)
	})

	t.Run("object metadata", func(t *testing.T) {
		doc := map[string]any{
			"landmarks": testdata.Clap(2).Raw(),
			"metadata":  map[string]any{"action": "clap", "sequence_id": "4"},
		}
		_, meta, err := seqio.LoadJSON(mustJSON(t, doc))
		require.NoError(t, err)
		action, ok := meta.String("action")
		assert.True(t, ok)
		assert.Equal(t, "clap", action)
		id, ok := meta.Int("sequence_id")
		assert.True(t, ok)
		assert.Equal(t, 4, id)
	})

	t.Run("string metadata is parsed", func(t *testing.T) {
		doc := map[string]any{
			"landmarks": testdata.Clap(2).Raw(),
			"metadata":  `{"person": "p07", "sequence_id": 12}`,
		}
		seq, meta, err := seqio.LoadJSON(mustJSON(t, doc))
		require.NoError(t, err)
		assert.Len(t, seq, 2)

		person, ok := meta.String("person")
		assert.True(t, ok)
		assert.Equal(t, "p07", person)
		id, ok := meta.Int("sequence_id")
		assert.True(t, ok)
		assert.Equal(t, 12, id)
	})

	t.Run("unparsable metadata is kept raw", func(t *testing.T) {
		doc := map[string]any{
			"landmarks": testdata.Clap(2).Raw(),
			"metadata":  "person=p07",
		}
		_, meta, err := seqio.LoadJSON(mustJSON(t, doc))
		require.NoError(t, err)
		assert.Equal(t, "person=p07", meta["raw_metadata"])
	})

	t.Run("missing metadata", func(t *testing.T) {
		doc := map[string]any{"landmarks": testdata.Clap(2).Raw()}
		_, meta, err := seqio.LoadJSON(mustJSON(t, doc))
		require.NoError(t, err)
		assert.Empty(t, meta)
	})

	t.Run("missing landmarks", func(t *testing.T) {
		_, _, err := seqio.LoadJSON([]byte(`{"metadata": {}}`))
		require.ErrorIs(t, err, seqio.ErrMissingLandmarks)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, testdata.WriteReferences(dir, testdata.Reference{
		Person: "p01", Action: "clap", Sequence: 3, Frames: testdata.Clap(4),
	}))
	seq, _, err := seqio.LoadFile(filepath.Join(dir, "p01", "clap", "p01_clap_seq003.json"))
	require.NoError(t, err)
	assert.Equal(t, testdata.Clap(4), seq)

	data, err := testdata.SequenceNPZ(testdata.Stretch(3))
	require.NoError(t, err)
	npzPath := filepath.Join(dir, "query.npz")
	require.NoError(t, os.WriteFile(npzPath, data, 0644))
	seq, _, err = seqio.LoadFile(npzPath)
	require.NoError(t, err)
	assert.Equal(t, testdata.Stretch(3), seq)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0644))
	_, _, err = seqio.LoadFile(txt)
	assert.ErrorIs(t, err, seqio.ErrUnsupportedFormat)

	_, _, err = seqio.LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSequenceID(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"p01_clap_seq003.npz", 3, true},
		{"SEQ12.json", 12, true},
		{"take_7.npz", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := seqio.SequenceID(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetadata_Merge(t *testing.T) {
	base := seqio.Metadata{"person": "p01", "source": "npz"}
	merged := base.Merge(seqio.Metadata{"source": "request"})
	assert.Equal(t, "request", merged["source"])
	assert.Equal(t, "p01", merged["person"])
	assert.Equal(t, "npz", base["source"])
}

func TestMetadata_SetDefault(t *testing.T) {
	m := seqio.Metadata{"source": "client"}
	m.SetDefault("source", "frames")
	m.SetDefault("frame_count", 4)
	assert.Equal(t, "client", m["source"])
	n, ok := m.Int("frame_count")
	assert.True(t, ok)
	assert.Equal(t, 4, n)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
