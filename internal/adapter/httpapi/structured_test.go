package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"scribe-ai/internal/domain"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer"}
	},
	"required": ["name"]
}`

func structuredBody(schema, name string) string {
	req := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "Alice is 30."}},
		"schema":   json.RawMessage(schema),
	}
	if name != "" {
		req["name"] = name
	}
	b, _ := json.Marshal(req)
	return string(b)
}

func TestStructured_RoundTrip(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{
		toolReply(domain.ToolCall{
			ID:        "c1",
			Name:      "extract",
			Arguments: json.RawMessage(`{"name":"Alice","age":30}`),
		}),
	}}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured", structuredBody(personSchema, ""))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	var got structuredResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	if err := json.Unmarshal(got.Data, &person); err != nil {
		t.Fatalf("data is not an object: %v", err)
	}
	if person.Name != "Alice" || person.Age != 30 {
		t.Errorf("data = %s", got.Data)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("provider called %d times", provider.CallCount())
	}
	req := provider.Requests()[0]
	if req.ToolChoice != "extract" {
		t.Errorf("tool choice = %q", req.ToolChoice)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "extract" {
		t.Fatalf("tools = %+v", req.Tools)
	}
	var wantSchema, gotSchema any
	if err := json.Unmarshal([]byte(personSchema), &wantSchema); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(req.Tools[0].Parameters, &gotSchema); err != nil {
		t.Fatal(err)
	}
	if !jsonEqual(wantSchema, gotSchema) {
		t.Errorf("forwarded schema = %s", req.Tools[0].Parameters)
	}
}

func TestStructured_CustomToolName(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{
		toolReply(domain.ToolCall{
			ID:        "c1",
			Name:      "report",
			Arguments: json.RawMessage(`{"name":"Bob"}`),
		}),
	}}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured", structuredBody(personSchema, "report"))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if provider.Requests()[0].ToolChoice != "report" {
		t.Errorf("tool choice = %q", provider.Requests()[0].ToolChoice)
	}
}

func TestStructured_ModelSkipsTool(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{reply("I would rather chat.")}}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured", structuredBody(personSchema, ""))
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.Contains(string(body), `did not call the "extract" tool`) {
		t.Errorf("body = %s", body)
	}
}

func TestStructured_NonConformingOutput(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{
		toolReply(domain.ToolCall{
			ID:        "c1",
			Name:      "extract",
			Arguments: json.RawMessage(`{"age":"thirty"}`),
		}),
	}}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured", structuredBody(personSchema, ""))
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.Contains(string(body), "schema validation") {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(string(body), string(domain.CodeSchemaInvalid)) {
		t.Errorf("missing error code: %s", body)
	}
}

func TestStructured_MalformedArguments(t *testing.T) {
	provider := &fakeProvider{steps: []chatStep{
		toolReply(domain.ToolCall{
			ID:        "c1",
			Name:      "extract",
			Arguments: json.RawMessage(`{"name":`),
		}),
	}}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured", structuredBody(personSchema, ""))
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.Contains(string(body), "invalid JSON arguments") {
		t.Errorf("body = %s", body)
	}
}

func TestStructured_InvalidSchema(t *testing.T) {
	provider := &fakeProvider{}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured",
		structuredBody(`{"type":"nonsense"}`, ""))
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.Contains(string(body), "invalid schema") {
		t.Errorf("body = %s", body)
	}
	if provider.CallCount() != 0 {
		t.Fatal("provider must not be called for a bad schema")
	}
}

func TestStructured_MissingSchema(t *testing.T) {
	provider := &fakeProvider{}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, body := postJSON(t, srv.URL+"/structured",
		`{"messages":[{"role":"user","content":"hi"}]}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(body), "schema is required") {
		t.Errorf("body = %s", body)
	}
}

func TestStructured_EmptyMessages(t *testing.T) {
	provider := &fakeProvider{}
	srv := newTestAPI(t, Deps{Provider: provider})

	status, _ := postJSON(t, srv.URL+"/structured",
		`{"messages":[],"schema":`+personSchema+`}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if provider.CallCount() != 0 {
		t.Fatal("provider must not be called")
	}
}

func jsonEqual(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}
