package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/pathwise/pathwise/internal/store"
	"github.com/pathwise/pathwise/internal/sync"
)

const planMarkdown = "# Plan\n## Phase 1\n[ ] Task 1\n[x] Task 2\n## Timeline\nWeekly."

// fakeGenerator returns canned markdown.
type fakeGenerator struct {
	output string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func setupServer(t *testing.T, gen *fakeGenerator) (*Server, string) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	svc := sync.New(db, nil, nil)

	config := &Config{Port: 0}
	if gen != nil {
		config.Generator = gen
	}
	srv := NewServer(svc, db, config)

	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	return srv, "http://" + srv.GetAddr()
}

// doRequest performs an API request as the given user and decodes the body.
func doRequest(t *testing.T, method, url, userID string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp, data
}

func createPlan(t *testing.T, baseURL, userID string) *store.Plan {
	t.Helper()

	resp, body := doRequest(t, http.MethodPost, baseURL+"/api/plans", userID,
		map[string]string{"topic": "Learn Go", "content": planMarkdown})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", resp.StatusCode, body)
	}

	var plan store.Plan
	if err := json.Unmarshal(body, &plan); err != nil {
		t.Fatalf("failed to decode plan: %v", err)
	}
	return &plan
}

func TestRequiresUserHeader(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	resp, _ := doRequest(t, http.MethodGet, baseURL+"/api/plans", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateAndGetPlan(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	plan := createPlan(t, baseURL, "user-a")
	if plan.Version != 1 {
		t.Errorf("version = %d, want 1", plan.Version)
	}
	if plan.Progress != 50 {
		t.Errorf("progress = %d, want 50", plan.Progress)
	}
	if len(plan.StructuredContent.Sections) != 2 {
		t.Errorf("sections = %d, want 2", len(plan.StructuredContent.Sections))
	}

	resp, body := doRequest(t, http.MethodGet, baseURL+"/api/plans/"+plan.ID, "user-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get returned %d: %s", resp.StatusCode, body)
	}
}

func TestCreatePlanGeneratesContent(t *testing.T) {
	gen := &fakeGenerator{output: planMarkdown}
	_, baseURL := setupServer(t, gen)

	resp, body := doRequest(t, http.MethodPost, baseURL+"/api/plans", "user-a",
		map[string]string{"topic": "Learn Go"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", resp.StatusCode, body)
	}

	var plan store.Plan
	if err := json.Unmarshal(body, &plan); err != nil {
		t.Fatalf("failed to decode plan: %v", err)
	}
	if plan.RawContent != planMarkdown {
		t.Error("generated content was not stored")
	}
}

func TestCreatePlanWithoutContentOrGenerator(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	resp, _ := doRequest(t, http.MethodPost, baseURL+"/api/plans", "user-a",
		map[string]string{"topic": "Learn Go"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	plan := createPlan(t, baseURL, "user-a")

	tests := []struct {
		name   string
		method string
		url    string
		user   string
		body   interface{}
		want   int
	}{
		{"missing plan", http.MethodGet, baseURL + "/api/plans/missing", "user-a", nil, http.StatusNotFound},
		{"foreign plan", http.MethodGet, baseURL + "/api/plans/" + plan.ID, "user-b", nil, http.StatusForbidden},
		{"foreign delete", http.MethodDelete, baseURL + "/api/plans/" + plan.ID, "user-b", nil, http.StatusForbidden},
		{"missing toggle ids", http.MethodPost, baseURL + "/api/plans/" + plan.ID + "/toggle", "user-a",
			map[string]string{}, http.StatusBadRequest},
		{"toggle missing item", http.MethodPost, baseURL + "/api/plans/" + plan.ID + "/toggle", "user-a",
			map[string]string{"sectionId": "nope", "itemId": "nope"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, tt.method, tt.url, tt.user, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestToggleTask(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	plan := createPlan(t, baseURL, "user-a")
	phase := plan.StructuredContent.Sections[0]

	resp, body := doRequest(t, http.MethodPost, baseURL+"/api/plans/"+plan.ID+"/toggle", "user-a",
		map[string]string{"sectionId": phase.ID, "itemId": phase.Items[0].ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle returned %d: %s", resp.StatusCode, body)
	}

	var result sync.ToggleResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.NewStatus != sync.StatusCompleted {
		t.Errorf("status = %s, want completed", result.NewStatus)
	}
	if result.Progress != 100 {
		t.Errorf("progress = %d, want 100", result.Progress)
	}
	if result.NewVersion != 2 {
		t.Errorf("version = %d, want 2", result.NewVersion)
	}
}

func TestUpdateContent(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	plan := createPlan(t, baseURL, "user-a")

	resp, body := doRequest(t, http.MethodPatch, baseURL+"/api/plans/"+plan.ID+"/content", "user-a",
		map[string]string{"content": "# Plan\n## Phase 1\n[x] Task 1\n[x] Task 2\n[x] Task 3"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update returned %d: %s", resp.StatusCode, body)
	}

	got, rawBody := doRequest(t, http.MethodGet, baseURL+"/api/plans/"+plan.ID, "user-a", nil)
	if got.StatusCode != http.StatusOK {
		t.Fatalf("get returned %d", got.StatusCode)
	}
	var updated store.Plan
	if err := json.Unmarshal(rawBody, &updated); err != nil {
		t.Fatalf("failed to decode plan: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	if updated.Progress != 100 {
		t.Errorf("progress = %d, want 100", updated.Progress)
	}
}

func TestListPlansScopedToUser(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	createPlan(t, baseURL, "user-a")
	createPlan(t, baseURL, "user-b")

	resp, body := doRequest(t, http.MethodGet, baseURL+"/api/plans", "user-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d", resp.StatusCode)
	}

	var plans []*store.Plan
	if err := json.Unmarshal(body, &plans); err != nil {
		t.Fatalf("failed to decode plans: %v", err)
	}
	if len(plans) != 1 {
		t.Errorf("plans = %d, want 1", len(plans))
	}
}

func TestWebSocketReceivesPlanUpdates(t *testing.T) {
	srv, baseURL := setupServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws://" + srv.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Connecting triggers a stats broadcast.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read welcome stats: %v", err)
	}
	var welcome Message
	if err := json.Unmarshal(data, &welcome); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if welcome.Type != MessageTypeStats {
		t.Errorf("first message type = %s, want stats", welcome.Type)
	}

	plan := createPlan(t, baseURL, "user-a")

	// The create broadcasts a plan_update followed by stats.
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read plan update: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != MessageTypePlanUpdate {
		t.Fatalf("message type = %s, want plan_update", msg.Type)
	}

	var update PlanUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("failed to decode update data: %v", err)
	}
	if update.PlanID != plan.ID {
		t.Errorf("plan id = %s, want %s", update.PlanID, plan.ID)
	}
	if update.Action != "created" {
		t.Errorf("action = %s, want created", update.Action)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, baseURL := setupServer(t, nil)

	resp, body := doRequest(t, http.MethodGet, baseURL+"/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d", resp.StatusCode)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}
}

func TestClientCount(t *testing.T) {
	srv, _ := setupServer(t, nil)

	if srv.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", srv.ClientCount())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(5 * time.Second)
	for srv.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", srv.ClientCount())
	}
}

func TestGetAddrBeforeStart(t *testing.T) {
	srv := NewServer(nil, nil, &Config{Port: 9191})
	if srv.GetAddr() != fmt.Sprintf(":%d", 9191) {
		t.Errorf("addr = %s, want :9191", srv.GetAddr())
	}
}
