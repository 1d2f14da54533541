package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"scribe-ai/internal/domain"
)

// defaultStructuredTool names the synthetic tool the model is forced
// through when the caller does not pick a name.
const defaultStructuredTool = "extract"

type structuredRequest struct {
	Messages []domain.Message `json:"messages"`
	Schema   json.RawMessage  `json:"schema"`
	Name     string           `json:"name"`
}

type structuredResponse struct {
	Data json.RawMessage `json:"data"`
}

// handleStructured forces the model to answer through a single tool
// whose parameters are the caller's JSON schema, validates the returned
// arguments against that schema, and relays the object.
func (s *Server) handleStructured(w http.ResponseWriter, r *http.Request) {
	var req structuredRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, err.Error())
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, err.Error())
		return
	}
	if len(req.Schema) == 0 {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "schema is required")
		return
	}
	toolName := req.Name
	if toolName == "" {
		toolName = defaultStructuredTool
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(req.Schema)); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeSchemaInvalid,
			fmt.Sprintf("invalid schema: %v", err))
		return
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeSchemaInvalid,
			fmt.Sprintf("invalid schema: %v", err))
		return
	}

	resp, err := s.deps.Provider.Chat(r.Context(), domain.ChatRequest{
		Model:    s.deps.Model,
		Messages: req.Messages,
		Tools: []domain.ToolSchema{{
			Name:        toolName,
			Description: "Return the result as structured data matching the schema.",
			Parameters:  req.Schema,
		}},
		ToolChoice:  toolName,
		MaxTokens:   s.deps.MaxTokens,
		Temperature: s.deps.Temperature,
	})
	if err != nil {
		s.logger.Error("structured call failed", "error", err)
		writeError(w, http.StatusBadGateway, domain.ErrorCodeOf(err), err.Error())
		return
	}

	args, ok := findToolArgs(resp.Message.ToolCalls, toolName)
	if !ok {
		writeError(w, http.StatusBadGateway, domain.CodeSchemaInvalid,
			fmt.Sprintf("model did not call the %q tool", toolName))
		return
	}

	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		writeError(w, http.StatusBadGateway, domain.CodeSchemaInvalid,
			fmt.Sprintf("model returned invalid JSON arguments: %v", err))
		return
	}
	if err := schema.Validate(v); err != nil {
		writeError(w, http.StatusBadGateway, domain.CodeSchemaInvalid,
			fmt.Sprintf("model output failed schema validation: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, structuredResponse{Data: args})
}

func findToolArgs(calls []domain.ToolCall, name string) (json.RawMessage, bool) {
	for _, c := range calls {
		if c.Name == name {
			return c.Arguments, true
		}
	}
	return nil, false
}
