package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heungbuja/motionjudge/internal/action"
	"github.com/heungbuja/motionjudge/internal/classifier"
	"github.com/heungbuja/motionjudge/internal/engine"
	"github.com/heungbuja/motionjudge/internal/store"
	"github.com/heungbuja/motionjudge/testdata"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	root := t.TempDir()
	if err := testdata.WriteReferences(root, testdata.DefaultReferences()...); err != nil {
		t.Fatalf("WriteReferences() error = %v", err)
	}
	model, err := classifier.NewModel(testdata.FixedCheckpoint([]float64{0.7, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05}))
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Actions().Seed(action.Defaults); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	e, err := engine.New(engine.Config{Model: model, ReferenceDir: root})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return New(Config{Engine: e, Store: st}), st
}

func TestAPI_JudgeWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	post := func(path, body string) map[string]any {
		t.Helper()
		resp, err := client.Post(ts.URL+path, "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST %s error = %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
		var out map[string]any
		json.NewDecoder(resp.Body).Decode(&out)
		return out
	}

	clap, _ := json.Marshal(testdata.Clap(8).Raw())

	// 1. Matcher path
	got := post("/api/pose-sequences/classify", `{"actionName": "clap", "landmarks": `+string(clap)+`}`)
	if got["judgment"] != float64(3) || got["actionCode"] != float64(1) {
		t.Errorf("classify = %v, want judgment 3 actionCode 1", got)
	}

	// 2. Classifier path
	got = post("/api/ai/brandnew/analyze-pose", `{"actionCode": 1, "poseFrames": `+string(clap)+`}`)
	if got["judgment"] != float64(3) || got["predictedLabel"] != "CLAP" {
		t.Errorf("analyze-pose = %v, want judgment 3 predicted CLAP", got)
	}

	// 3. Both are in the history
	resp, err := client.Get(ts.URL + "/api/judgments?action=clap")
	if err != nil {
		t.Fatalf("GET /api/judgments error = %v", err)
	}
	var history struct {
		Judgments []struct {
			Path string `json:"path"`
		} `json:"judgments"`
		Total int `json:"total"`
	}
	json.NewDecoder(resp.Body).Decode(&history)
	resp.Body.Close()
	if history.Total != 2 || history.Judgments[0].Path != store.PathClassifier {
		t.Errorf("unexpected history %+v", history)
	}

	// 4. Actions listing
	resp, _ = client.Get(ts.URL + "/api/actions")
	var actions struct {
		Actions []struct {
			Code  int    `json:"code"`
			Label string `json:"label"`
		} `json:"actions"`
	}
	json.NewDecoder(resp.Body).Decode(&actions)
	resp.Body.Close()
	if len(actions.Actions) != len(action.Defaults) || actions.Actions[0].Label != "CLAP" {
		t.Errorf("unexpected actions %+v", actions.Actions)
	}
}

func TestJudgeSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/judge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	req := map[string]any{"actionName": "clap", "poseFrames": testdata.Clap(8).Raw()}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if reply["judgment"] != float64(3) || reply["actionCode"] != float64(1) {
		t.Errorf("reply = %v, want judgment 3 actionCode 1", reply)
	}

	// A bad request is answered and the session stays open.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"poseFrames": []}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	reply = nil
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if reply["status"] != float64(http.StatusBadRequest) || reply["error"] == "" {
		t.Errorf("reply = %v, want a 400 error", reply)
	}

	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	reply = nil
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() after error = %v", err)
	}
	if reply["judgment"] != float64(3) {
		t.Errorf("reply = %v, want judgment 3", reply)
	}

	if n := srv.judge.Clients(); n != 1 {
		t.Errorf("Clients() = %d, want 1", n)
	}
}

func TestServer_Run(t *testing.T) {
	srv := New(Config{ShutdownTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
