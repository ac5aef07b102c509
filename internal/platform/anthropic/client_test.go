package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/swarmbot/event-gateway/internal/platform/logger"
)

func testClient(t *testing.T, baseURL string) Client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log, Config{APIKey: "sk-test", BaseURL: baseURL})
}

func TestChatPlainReply(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("api key header = %q", r.Header.Get("x-api-key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hello back"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	history := []Turn{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "noted"}}
	reply, newHistory, err := c.Chat(context.Background(), "hi", history, nil, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("reply = %q", reply)
	}
	if len(newHistory) != 4 {
		t.Fatalf("history len = %d, want prior 2 plus the new exchange", len(newHistory))
	}
	last := newHistory[3]
	if last.Role != "assistant" || last.Content != "hello back" {
		t.Errorf("last turn = %+v", last)
	}
	msgs, _ := gotReq["messages"].([]any)
	if len(msgs) != 3 {
		t.Errorf("request carried %d messages, want history plus new turn", len(msgs))
	}
}

func TestChatRunsToolLoop(t *testing.T) {
	var calls int
	var secondReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"content":[{"type":"tool_use","id":"tu_1","name":"create_job","input":{"job":"fix the bug"}}],"stop_reason":"tool_use"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&secondReq)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Job started."}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	var toolName string
	var toolInput map[string]any
	exec := func(ctx context.Context, name string, input map[string]any) (any, error) {
		toolName = name
		toolInput = input
		return map[string]string{"job_id": "j-1"}, nil
	}

	c := testClient(t, srv.URL)
	reply, _, err := c.Chat(context.Background(), "start a job", nil, []ToolDef{{Name: "create_job"}}, exec)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Job started." {
		t.Errorf("reply = %q", reply)
	}
	if toolName != "create_job" || toolInput["job"] != "fix the bug" {
		t.Errorf("tool call = %q %v", toolName, toolInput)
	}

	// Second request must carry the assistant tool_use turn and a user
	// tool_result turn referencing the same id.
	msgs, _ := secondReq["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("second request has %d messages", len(msgs))
	}
	lastMsg, _ := msgs[2].(map[string]any)
	blocks, _ := lastMsg["content"].([]any)
	if len(blocks) != 1 {
		t.Fatalf("tool_result blocks = %v", lastMsg["content"])
	}
	block, _ := blocks[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "tu_1" {
		t.Errorf("tool result block = %v", block)
	}
	if !strings.Contains(block["content"].(string), "j-1") {
		t.Errorf("tool result content = %v", block["content"])
	}
}

func TestChatToolErrorReportedToModel(t *testing.T) {
	var calls int
	var secondReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"content":[{"type":"tool_use","id":"tu_9","name":"get_job_status","input":{}}],"stop_reason":"tool_use"}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&secondReq)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Could not check."}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	exec := func(ctx context.Context, name string, input map[string]any) (any, error) {
		return nil, errors.New("upstream unavailable")
	}

	c := testClient(t, srv.URL)
	reply, _, err := c.Chat(context.Background(), "status?", nil, []ToolDef{{Name: "get_job_status"}}, exec)
	if err != nil {
		t.Fatalf("Chat should not fail when a tool fails: %v", err)
	}
	if reply != "Could not check." {
		t.Errorf("reply = %q", reply)
	}
	msgs, _ := secondReq["messages"].([]any)
	lastMsg, _ := msgs[len(msgs)-1].(map[string]any)
	blocks, _ := lastMsg["content"].([]any)
	block, _ := blocks[0].(map[string]any)
	if block["is_error"] != true {
		t.Errorf("tool result should be marked is_error: %v", block)
	}
	if !strings.Contains(block["content"].(string), "upstream unavailable") {
		t.Errorf("tool result content = %v", block["content"])
	}
}

func TestChatEmptyReplyBecomesDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	reply, _, err := c.Chat(context.Background(), "hi", nil, nil, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Done." {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatBoundsToolRounds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"content":[{"type":"tool_use","id":"tu_x","name":"create_job","input":{}}],"stop_reason":"tool_use"}`))
	}))
	defer srv.Close()

	exec := func(ctx context.Context, name string, input map[string]any) (any, error) {
		return "ok", nil
	}
	c := testClient(t, srv.URL)
	if _, _, err := c.Chat(context.Background(), "loop", nil, []ToolDef{{Name: "create_job"}}, exec); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if calls > maxToolRounds+1 {
		t.Errorf("model called %d times, loop must be bounded", calls)
	}
}

func TestChatErrorLeavesHistoryUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	history := []Turn{{Role: "user", Content: "x"}}
	_, newHistory, err := c.Chat(context.Background(), "hi", history, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("err = %v", err)
	}
	if len(newHistory) != 1 {
		t.Errorf("history mutated on failure: %v", newHistory)
	}
}

func TestSummarize(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  Build passed.  "}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	got, err := c.Summarize(context.Background(), "summarize tersely", "raw results")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Build passed." {
		t.Errorf("summary = %q, want trimmed", got)
	}
	if gotReq["system"] != "summarize tersely" {
		t.Errorf("system = %v", gotReq["system"])
	}
	if _, hasTools := gotReq["tools"]; hasTools {
		t.Error("summarize request must not declare tools")
	}
}

func TestMissingAPIKey(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c := New(log, Config{})
	if _, _, err := c.Chat(context.Background(), "hi", nil, nil, nil); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := c.Summarize(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error without api key")
	}
}
