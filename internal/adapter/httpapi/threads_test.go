package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"scribe-ai/internal/domain"
	"scribe-ai/internal/store"
	"scribe-ai/internal/usecase"
)

// noTools is a ToolExecutor with nothing registered.
type noTools struct{}

func (noTools) Get(name string) (domain.Tool, error) {
	return nil, domain.NewDomainError("ToolRegistry.Get", domain.ErrToolNotFound, name)
}

func (noTools) Schemas() []domain.ToolSchema { return nil }

// newThreadsAPI wires a real sqlite-backed thread manager behind the handler.
func newThreadsAPI(t *testing.T, provider domain.LLMProvider) *httptest.Server {
	t.Helper()
	st, err := store.NewThreadStore(filepath.Join(t.TempDir(), "threads.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:     provider,
		Tools:   noTools{},
		Builder: usecase.NewContextBuilder("", "test-model", 256, 0),
		Logger:  newTestLogger(),
	})
	threads := usecase.NewThreadManager(st, agent, newTestLogger())
	return newTestAPI(t, Deps{Provider: provider, Threads: threads})
}

func doRequest(t *testing.T, method, url string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func createThread(t *testing.T, baseURL, title string) domain.Thread {
	t.Helper()
	status, body := postJSON(t, baseURL+"/threads", `{"title":`+strconv.Quote(title)+`}`)
	if status != http.StatusCreated {
		t.Fatalf("create thread: status = %d, body = %s", status, body)
	}
	var th domain.Thread
	if err := json.Unmarshal(body, &th); err != nil {
		t.Fatalf("unmarshal thread: %v", err)
	}
	return th
}

func TestThreads_CreateListGetDelete(t *testing.T) {
	srv := newThreadsAPI(t, &fakeProvider{})

	th := createThread(t, srv.URL, "My chat")
	if len(th.ID) != 26 {
		t.Errorf("id = %q, want 26-char ULID", th.ID)
	}
	if th.Title != "My chat" {
		t.Errorf("title = %q", th.Title)
	}
	if th.Messages == nil || len(th.Messages) != 0 {
		t.Errorf("messages = %#v, want empty slice", th.Messages)
	}

	status, body := getJSON(t, srv.URL+"/threads")
	if status != http.StatusOK {
		t.Fatalf("list: status = %d", status)
	}
	var list threadListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Threads) != 1 || list.Threads[0].ID != th.ID {
		t.Fatalf("list = %+v", list.Threads)
	}

	status, body = getJSON(t, srv.URL+"/threads/"+th.ID)
	if status != http.StatusOK {
		t.Fatalf("get: status = %d, body = %s", status, body)
	}
	var got domain.Thread
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != th.ID || got.Title != "My chat" {
		t.Errorf("got = %+v", got)
	}

	status, _ = doRequest(t, http.MethodDelete, srv.URL+"/threads/"+th.ID)
	if status != http.StatusNoContent {
		t.Fatalf("delete: status = %d", status)
	}

	status, body = getJSON(t, srv.URL+"/threads/"+th.ID)
	if status != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d", status)
	}
	if !strings.Contains(string(body), string(domain.CodeThreadNotFound)) {
		t.Errorf("body = %s", body)
	}
}

func TestThreads_CreateDefaultTitle(t *testing.T) {
	srv := newThreadsAPI(t, &fakeProvider{})

	status, body := postJSON(t, srv.URL+"/threads", `{}`)
	if status != http.StatusCreated {
		t.Fatalf("status = %d", status)
	}
	var th domain.Thread
	if err := json.Unmarshal(body, &th); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if th.Title != "New thread" {
		t.Errorf("title = %q", th.Title)
	}
}

func TestThreads_PostMessage(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{reply("sure thing")}}
	srv := newThreadsAPI(t, provider)
	th := createThread(t, srv.URL, "help")

	status, body := postJSON(t, srv.URL+"/threads/"+th.ID+"/messages",
		`{"content":"can you help?"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var got completionResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Content != "sure thing" || got.Role != domain.RoleAssistant || got.FinishReason != "stop" {
		t.Errorf("response = %+v", got)
	}

	// the turn is persisted: user message plus assistant answer
	status, body = getJSON(t, srv.URL+"/threads/"+th.ID)
	if status != http.StatusOK {
		t.Fatalf("get: status = %d", status)
	}
	var stored domain.Thread
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("stored %d messages: %+v", len(stored.Messages), stored.Messages)
	}
	if stored.Messages[0].Role != domain.RoleUser || stored.Messages[0].Content != "can you help?" {
		t.Errorf("messages[0] = %+v", stored.Messages[0])
	}
	if stored.Messages[1].Role != domain.RoleAssistant || stored.Messages[1].Content != "sure thing" {
		t.Errorf("messages[1] = %+v", stored.Messages[1])
	}
}

func TestThreads_PostMessage_HistoryFeedsNextTurn(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{reply("four"), reply("eight")}}
	srv := newThreadsAPI(t, provider)
	th := createThread(t, srv.URL, "math")

	postJSON(t, srv.URL+"/threads/"+th.ID+"/messages", `{"content":"2+2?"}`)
	status, _ := postJSON(t, srv.URL+"/threads/"+th.ID+"/messages", `{"content":"double it"}`)
	if status != http.StatusOK {
		t.Fatalf("second turn: status = %d", status)
	}

	reqs := provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("provider called %d times", len(reqs))
	}
	// second request carries the stored history before the new message
	if len(reqs[1].Messages) != 3 {
		t.Fatalf("second request messages = %+v", reqs[1].Messages)
	}
	if reqs[1].Messages[0].Content != "2+2?" || reqs[1].Messages[1].Content != "four" {
		t.Errorf("history = %+v", reqs[1].Messages[:2])
	}
}

func TestThreads_PostMessage_Empty(t *testing.T) {
	provider := &fakeProvider{}
	srv := newThreadsAPI(t, provider)
	th := createThread(t, srv.URL, "x")

	status, body := postJSON(t, srv.URL+"/threads/"+th.ID+"/messages", `{"content":"  "}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if provider.CallCount() != 0 {
		t.Fatal("provider must not be called")
	}
}

func TestThreads_PostMessage_MissingThread(t *testing.T) {
	srv := newThreadsAPI(t, &fakeProvider{})

	status, body := postJSON(t, srv.URL+"/threads/01J00000000000000000000000/messages",
		`{"content":"hi"}`)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.Contains(string(body), string(domain.CodeThreadNotFound)) {
		t.Errorf("body = %s", body)
	}
}

func TestThreads_PostMessage_ProviderErrorPersistsNothing(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{
		{err: domain.ErrProviderError},
	}}
	srv := newThreadsAPI(t, provider)
	th := createThread(t, srv.URL, "flaky")

	status, _ := postJSON(t, srv.URL+"/threads/"+th.ID+"/messages", `{"content":"hi"}`)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d", status)
	}

	_, body := getJSON(t, srv.URL+"/threads/"+th.ID)
	var stored domain.Thread
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored.Messages) != 0 {
		t.Errorf("failed turn must not persist, got %+v", stored.Messages)
	}
}

func TestThreads_DeleteMissing(t *testing.T) {
	srv := newThreadsAPI(t, &fakeProvider{})

	status, _ := doRequest(t, http.MethodDelete, srv.URL+"/threads/does-not-exist")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d", status)
	}
}
