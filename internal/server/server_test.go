package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/feedlens/internal/metrics"
	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/provider"
)

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Orchestrator) {
	t.Helper()
	orch := pipeline.New(provider.NewMock(), pipeline.WithPaceScale(0))
	ts := httptest.NewServer(New(orch, metrics.New()).Handler())
	t.Cleanup(func() {
		ts.Close()
		orch.Close()
	})
	return ts, orch
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func waitTerminal(t *testing.T, baseURL string) pipeline.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/state")
		if err != nil {
			t.Fatalf("GET state: %v", err)
		}
		st := decode[pipeline.RunState](t, resp)
		if st.Phase.Terminal() {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return pipeline.RunState{}
}

func TestServer_QueryLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/query", `{"text": "Why are users unhappy with offline playback?", "top_k": 5}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	ack := decode[QueryResponse](t, resp)
	if ack.Generation != 1 {
		t.Errorf("generation = %d, want 1", ack.Generation)
	}

	st := waitTerminal(t, ts.URL)
	if st.Phase != pipeline.PhaseSucceeded {
		t.Fatalf("phase = %s (%s), want succeeded", st.Phase, st.Error)
	}
	if len(st.Result.Evidence) != 5 {
		t.Errorf("evidence = %d, want 5", len(st.Result.Evidence))
	}
	if st.Query == nil || st.Query.TopK != 5 {
		t.Errorf("unexpected query in state: %+v", st.Query)
	}
}

func TestServer_QueryDefaultsTopK(t *testing.T) {
	ts, orch := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/query", `{"text": "offline"}`)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if q := orch.State().Query; q == nil || q.TopK != model.DefaultTopK {
		t.Errorf("top_k not defaulted: %+v", q)
	}
}

func TestServer_QueryValidation(t *testing.T) {
	ts, orch := newTestServer(t)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"blank text", `{"text": "   ", "top_k": 5}`, "text"},
		{"malformed", `{"text": `, ""},
		{"unknown field", `{"question": "offline"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/query", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			body := decode[ErrorResponse](t, resp)
			if body.Error == "" {
				t.Error("expected error message")
			}
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
		})
	}

	if st := orch.State(); st.Phase != pipeline.PhaseIdle || st.Generation != 0 {
		t.Errorf("rejected submissions changed state: %s gen %d", st, st.Generation)
	}
}

func TestServer_QueryAfterClose(t *testing.T) {
	ts, orch := newTestServer(t)
	orch.Close()

	resp := postJSON(t, ts.URL+"/api/query", `{"text": "offline"}`)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_Reset(t *testing.T) {
	ts, _ := newTestServer(t)

	_ = postJSON(t, ts.URL+"/api/query", `{"text": "offline"}`).Body.Close()
	waitTerminal(t, ts.URL)

	resp := postJSON(t, ts.URL+"/api/reset", "")
	st := decode[pipeline.RunState](t, resp)
	if st.Phase != pipeline.PhaseIdle || st.Result != nil {
		t.Errorf("state after reset = %s, result %v", st, st.Result)
	}
	if st.Generation != 2 {
		t.Errorf("generation = %d, want 2", st.Generation)
	}
}

func TestServer_Stages(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stages")
	if err != nil {
		t.Fatal(err)
	}
	stages := decode[[]map[string]any](t, resp)
	if len(stages) != pipeline.StageCount {
		t.Fatalf("stages = %d, want %d", len(stages), pipeline.StageCount)
	}
	if stages[2]["title"] != "Vector Search" || stages[2]["nominal_delay_ms"] != float64(1000) {
		t.Errorf("unexpected retrieval stage: %v", stages[2])
	}
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body := decode[map[string]string](t, resp)
	if body["status"] != "healthy" || body["provider"] != "mock" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestServer_Events(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() pipeline.RunState {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var st pipeline.RunState
				if err := json.Unmarshal([]byte(data), &st); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return st
			}
		}
	}

	if first := next(); first.Phase != pipeline.PhaseIdle {
		t.Fatalf("first event = %s, want idle", first)
	}

	_ = postJSON(t, ts.URL+"/api/query", `{"text": "offline", "top_k": 3}`).Body.Close()

	var stages []int
	for {
		st := next()
		if st.Phase == pipeline.PhaseStaging {
			stages = append(stages, st.StageIndex)
			continue
		}
		if st.Phase != pipeline.PhaseSucceeded {
			t.Fatalf("terminal event = %s, want succeeded", st)
		}
		if len(st.Result.Evidence) != 3 {
			t.Errorf("evidence = %d, want 3", len(st.Result.Evidence))
		}
		break
	}

	want := []int{0, 1, 2, 3, 4}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", stages, want)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := newTestServer(t)

	_ = postJSON(t, ts.URL+"/api/query", `{"text": "   "}`).Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	want := `feedlens_http_requests_total{code="400",method="POST",route="/api/query"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics missing %q", want)
	}
}

func TestServer_Run(t *testing.T) {
	orch := pipeline.New(provider.NewMock(), pipeline.WithPaceScale(0))
	defer orch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(orch, nil).Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
