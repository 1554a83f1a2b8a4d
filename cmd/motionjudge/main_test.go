package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heungbuja/motionjudge/testdata"
)

type fixture struct {
	refs       string
	query      string
	checkpoint string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	f := fixture{
		refs:       filepath.Join(dir, "refs"),
		query:      filepath.Join(dir, "query.json"),
		checkpoint: filepath.Join(dir, "model.json"),
	}
	require.NoError(t, testdata.WriteReferences(f.refs, testdata.DefaultReferences()...))

	data, err := json.Marshal(map[string]any{"landmarks": testdata.Clap(8).Raw()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.query, data, 0o644))

	require.NoError(t, testdata.WriteCheckpoint(f.checkpoint,
		testdata.FixedCheckpoint([]float64{0.05, 0.05, 0.05, 0.05, 0.05, 0.7, 0.05})))
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestCompare(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "compare", f.query, "--refs", f.refs, "--json", "-k", "2")
	require.NoError(t, err)

	var report compareReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Matches, 2)
	assert.Equal(t, "CLAP", report.Matches[0].Action)
	assert.Equal(t, "p01", report.Matches[0].Person)
	assert.InDelta(t, 0, report.Matches[0].Distance, 1e-9)
	assert.Equal(t, filepath.Join("p01", "clap", "p01_clap_seq001.json"), report.Matches[0].Path)

	require.Len(t, report.Summary, 2)
	assert.Equal(t, "CLAP", report.Summary[0].Action)
	assert.Equal(t, 2, report.Summary[0].Count)
}

func TestCompare_Text(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "compare", f.query, "--refs", f.refs, "--actions", "stretch")
	require.NoError(t, err)
	assert.Contains(t, out, "MEAN DISTANCE")
	assert.Contains(t, out, "STRETCH")
	assert.NotContains(t, out, "CLAP")

	out, err = execute(t, "compare", f.query, "--refs", f.refs, "--max-distance=-1")
	require.NoError(t, err)
	assert.Contains(t, out, "no references within thresholds")
}

func TestCompare_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "compare", f.query)
	assert.ErrorContains(t, err, "no reference directory")

	_, err = execute(t, "compare", f.query, "--refs", f.refs, "--top-k", "0")
	assert.ErrorContains(t, err, "--top-k")

	_, err = execute(t, "compare", filepath.Join(t.TempDir(), "missing.json"), "--refs", f.refs)
	assert.Error(t, err)

	_, err = execute(t, "compare")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "classify", f.query, "--checkpoint", f.checkpoint, "--action", "tilt", "--json")
	require.NoError(t, err)

	var report classifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "TILT", report.PredictedLabel)
	assert.Equal(t, 5, report.ActionCode)
	assert.Equal(t, 3, report.Judgment)
	require.NotNil(t, report.TargetProbability)
	assert.InDelta(t, 0.7, *report.TargetProbability, 1e-9)
	assert.Len(t, report.Probabilities, len(testdata.ModelLabels))

	out, err = execute(t, "classify", f.query, "--checkpoint", f.checkpoint, "--code", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "predicted:")
	assert.Contains(t, out, "judgment:")

	_, err = execute(t, "classify", f.query)
	assert.ErrorContains(t, err, "no checkpoint")
}

func TestActions(t *testing.T) {
	newFixture(t)

	out, err := execute(t, "actions")
	require.NoError(t, err)
	assert.Contains(t, out, "CLAP")
	assert.Contains(t, out, "STAY")

	out, err = execute(t, "actions", "--json")
	require.NoError(t, err)
	var actions []struct {
		Code  int    `json:"code"`
		Label string `json:"label"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &actions))
	require.NotEmpty(t, actions)
	assert.Equal(t, 1, actions[0].Code)
	assert.Equal(t, "CLAP", actions[0].Label)
}

func TestConfigFlag(t *testing.T) {
	newFixture(t)

	_, err := execute(t, "actions", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "actions", "--log-level", "loud")
	assert.Error(t, err)
}
