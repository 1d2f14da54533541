package httpapi

import (
	"net/http"

	"scribe-ai/internal/domain"
)

type createThreadRequest struct {
	Title string `json:"title"`
}

type threadListResponse struct {
	Threads []*domain.Thread `json:"threads"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleThreadCreate(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, err.Error())
		return
	}
	th, err := s.deps.Threads.Create(r.Context(), req.Title)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, normalizeThread(th))
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	threads, err := s.deps.Threads.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for i := range threads {
		threads[i] = normalizeThread(threads[i])
	}
	writeJSON(w, http.StatusOK, threadListResponse{Threads: threads})
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	th, err := s.deps.Threads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, normalizeThread(th))
}

func (s *Server) handleThreadDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Threads.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleThreadMessage runs one agent turn over the stored history and
// answers in the completion response shape.
func (s *Server) handleThreadMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, err.Error())
		return
	}
	result, err := s.deps.Threads.PostMessage(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Content:      result.Message.Content,
		Role:         result.Message.Role,
		FinishReason: result.FinishReason,
	})
}

// normalizeThread keeps the wire shape stable: messages marshal as an
// empty array rather than null.
func normalizeThread(th *domain.Thread) *domain.Thread {
	if th.Messages == nil {
		th.Messages = []domain.Message{}
	}
	return th
}
