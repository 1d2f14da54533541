package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"scribe-ai/internal/domain"
)

type completionRequest struct {
	Messages []domain.Message `json:"messages"`
}

// completionResponse relays the provider's first choice verbatim. The
// same shape answers thread message posts.
type completionResponse struct {
	Content      string `json:"content"`
	Role         string `json:"role"`
	FinishReason string `json:"finish_reason"`
}

// validateMessages enforces the request contract before any provider
// call: a non-empty list where every message has a known role and
// non-empty content.
func validateMessages(msgs []domain.Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range msgs {
		if !domain.ValidRole(m.Role) {
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("messages[%d]: content is required", i)
		}
	}
	return nil
}

// handleCompletion forwards the message list to the provider exactly
// once and relays the first choice. No retry, no caching.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, err.Error())
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, err.Error())
		return
	}

	resp, err := s.deps.Provider.Chat(r.Context(), domain.ChatRequest{
		Model:       s.deps.Model,
		Messages:    req.Messages,
		MaxTokens:   s.deps.MaxTokens,
		Temperature: s.deps.Temperature,
	})
	if err != nil {
		s.logger.Error("completion call failed", "error", err)
		writeError(w, http.StatusBadGateway, domain.ErrorCodeOf(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{
		Content:      resp.Message.Content,
		Role:         resp.Message.Role,
		FinishReason: resp.FinishReason,
	})
}
