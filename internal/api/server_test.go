// File path: internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/jobs"
	"github.com/auditlens/auditlens/internal/llm/providers"
	"github.com/auditlens/auditlens/internal/orchestrator"
)

type testHarness struct {
	server *Server
	store  *jobs.SQLiteStore
	queue  *jobs.MemoryQueue
	worker *jobs.Worker
}

// newHarness builds a server on the local provider. Workers only run when the
// test starts them, so job-state tests stay deterministic.
func newHarness(t *testing.T) *testHarness {
	t.Helper()
	provider := providers.NewLocalProvider()
	engine := orchestrator.New(provider, orchestrator.Options{})
	store, err := jobs.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	queue := jobs.NewMemoryQueue(8)
	worker := jobs.NewWorker(store, queue, NewJobRunner(engine), 1)
	server, err := NewServer(engine, provider, store, queue, worker, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testHarness{server: server, store: store, queue: queue, worker: worker}
}

func (h *testHarness) startWorker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.worker.Start(ctx)
}

func (h *testHarness) do(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)
	return rr
}

func validRequest() map[string]interface{} {
	return map[string]interface{}{
		"control_id":          "C-7",
		"control_description": "Payments above 10k require CFO approval before release.",
		"test_procedure":      "Inspect the payment memo for CFO approval prior to the release date.",
		"period":              "FY2024",
		"evidence": []audit.EvidenceFile{{
			Name: "memo.txt",
			Data: base64.StdEncoding.EncodeToString([]byte("The payment was approved by CFO on 2024-01-15.")),
		}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", rr.Code, rr.Body.String())
	}
}

func TestConfigEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/v1/config", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Provider  string     `json:"provider"`
		Tasks     []taskInfo `json:"tasks"`
		MaxRefine int        `json:"max_refine"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if resp.Provider != "local" {
		t.Fatalf("unexpected provider: %s", resp.Provider)
	}
	if len(resp.Tasks) != 8 {
		t.Fatalf("expected 8 tasks, got %d", len(resp.Tasks))
	}
	if resp.MaxRefine != 2 {
		t.Fatalf("unexpected max_refine: %d", resp.MaxRefine)
	}
}

func TestEvaluateValidation(t *testing.T) {
	h := newHarness(t)
	bad := validRequest()
	delete(bad, "evidence")
	rr := h.do(t, http.MethodPost, "/v1/evaluate", bad)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}

	bad = validRequest()
	bad["test_procedure"] = "  "
	if rr := h.do(t, http.MethodPost, "/v1/evaluate", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank procedure, got %d", rr.Code)
	}

	bad = validRequest()
	bad["evidence"] = []audit.EvidenceFile{{Name: "memo.txt", Data: "!!not-base64!!"}}
	if rr := h.do(t, http.MethodPost, "/v1/evaluate", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for undecodable evidence, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString("{not json"))
	rr = httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestEvaluateSync(t *testing.T) {
	h := newHarness(t)
	payload := validRequest()
	payload["highlight"] = true
	rr := h.do(t, http.MethodPost, "/v1/evaluate", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ControlID string         `json:"control_id"`
		Judgment  audit.Judgment `json:"judgment"`
		Plan      audit.Plan     `json:"plan"`
		Provider  string         `json:"provider"`
		Highlights *struct {
			Citations []json.RawMessage `json:"citations"`
		} `json:"highlights"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ControlID != "C-7" || resp.Provider != "local" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Judgment.Conclusion != audit.ConclusionInconclusive {
		t.Fatalf("local provider should yield inconclusive, got %s", resp.Judgment.Conclusion)
	}
	if len(resp.Plan.TaskIDs()) == 0 {
		t.Fatalf("expected a plan in the response")
	}
	if resp.Highlights == nil {
		t.Fatalf("highlight=true should include highlights")
	}
}

func TestJobLifecycle(t *testing.T) {
	h := newHarness(t)
	h.startWorker(t)

	rr := h.do(t, http.MethodPost, "/v1/jobs", validRequest())
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var submitted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.ID == "" || submitted.Status != string(jobs.StatusPending) {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	deadline := time.Now().Add(10 * time.Second)
	status := ""
	for time.Now().Before(deadline) {
		rr := h.do(t, http.MethodGet, "/v1/jobs/"+submitted.ID+"/status", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status poll failed: %d %s", rr.Code, rr.Body.String())
		}
		var poll jobStatusResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &poll); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		status = string(poll.Status)
		if poll.Status.Terminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status != string(jobs.StatusCompleted) {
		t.Fatalf("job did not complete: %s", status)
	}

	rr = h.do(t, http.MethodGet, "/v1/jobs/"+submitted.ID+"/results", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("results failed: %d %s", rr.Code, rr.Body.String())
	}
	var results struct {
		Status string `json:"status"`
		Result struct {
			Judgment audit.Judgment `json:"judgment"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.Result.Judgment.Conclusion != audit.ConclusionInconclusive {
		t.Fatalf("unexpected stored judgment: %+v", results.Result.Judgment)
	}

	rr = h.do(t, http.MethodGet, "/v1/jobs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rr.Code)
	}
	var list struct {
		Jobs []jobStatusResponse `json:"jobs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(list.Jobs))
	}
}

func TestJobResultsBeforeCompletion(t *testing.T) {
	// No worker running: the job stays pending.
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/v1/jobs", validRequest())
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	var submitted struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}

	if rr := h.do(t, http.MethodGet, "/v1/jobs/"+submitted.ID+"/results", nil); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while pending, got %d", rr.Code)
	}

	if rr := h.do(t, http.MethodPost, "/v1/jobs/"+submitted.ID+"/cancel", nil); rr.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", rr.Code, rr.Body.String())
	}
	// Idempotent cancel.
	if rr := h.do(t, http.MethodPost, "/v1/jobs/"+submitted.ID+"/cancel", nil); rr.Code != http.StatusOK {
		t.Fatalf("second cancel failed: %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/v1/jobs/"+submitted.ID+"/results", nil); rr.Code != http.StatusGone {
		t.Fatalf("expected 410 after cancel, got %d", rr.Code)
	}
}

func TestJobValidationAndMissing(t *testing.T) {
	h := newHarness(t)
	bad := validRequest()
	delete(bad, "control_description")
	if rr := h.do(t, http.MethodPost, "/v1/jobs", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/v1/jobs/unknown/status", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/v1/jobs/unknown/cancel", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/v1/jobs?limit=zero", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestQueueFullSubmission(t *testing.T) {
	provider := providers.NewLocalProvider()
	engine := orchestrator.New(provider, orchestrator.Options{})
	store, err := jobs.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	queue := jobs.NewMemoryQueue(1)
	server, err := NewServer(engine, provider, store, queue, nil, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	h := &testHarness{server: server, store: store, queue: queue}

	if rr := h.do(t, http.MethodPost, "/v1/jobs", validRequest()); rr.Code != http.StatusAccepted {
		t.Fatalf("first submit should succeed: %d", rr.Code)
	}
	rr := h.do(t, http.MethodPost, "/v1/jobs", validRequest())
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue is full, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestLogsEndpoint(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/v1/logs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logs failed: %d", rr.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if _, ok := resp["logs"]; !ok {
		t.Fatalf("logs payload missing: %s", rr.Body.String())
	}
}
