package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"scribe-ai/internal/usecase"
)

// Frame is the JSON envelope exchanged over /ws.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame types.
const (
	FrameTypeChat  = "chat"
	FrameTypeReply = "reply"
	FrameTypeError = "error"
)

type chatFrameData struct {
	Content string `json:"content"`
}

type replyFrameData struct {
	Content      string `json:"content"`
	Role         string `json:"role"`
	FinishReason string `json:"finish_reason"`
}

type errorFrameData struct {
	Error string `json:"error"`
}

// handleWS upgrades to WebSocket and drives one conversation for the
// life of the connection. Frames are handled sequentially; a chat frame
// runs a full agent turn before the next frame is read.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	conv := usecase.NewConversation()
	ctx := r.Context()
	s.logger.Info("ws client connected", "conversation_id", conv.ID())

	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			s.logger.Info("ws client disconnected", "conversation_id", conv.ID())
			return
		}

		switch frame.Type {
		case FrameTypeChat:
			s.handleChatFrame(ctx, ws, conv, frame.Data)
		default:
			s.writeFrame(ctx, ws, FrameTypeError, errorFrameData{
				Error: fmt.Sprintf("unknown frame type %q", frame.Type),
			})
		}
	}
}

func (s *Server) handleChatFrame(ctx context.Context, ws *websocket.Conn, conv *usecase.Conversation, data json.RawMessage) {
	var msg chatFrameData
	if err := json.Unmarshal(data, &msg); err != nil {
		s.writeFrame(ctx, ws, FrameTypeError, errorFrameData{Error: "invalid chat frame: " + err.Error()})
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		s.writeFrame(ctx, ws, FrameTypeError, errorFrameData{Error: "content is required"})
		return
	}

	result, err := s.deps.Agent.RunTurn(ctx, conv, msg.Content)
	if err != nil {
		s.logger.Warn("ws turn failed", "conversation_id", conv.ID(), "error", err)
		s.writeFrame(ctx, ws, FrameTypeError, errorFrameData{Error: err.Error()})
		return
	}

	s.writeFrame(ctx, ws, FrameTypeReply, replyFrameData{
		Content:      result.Message.Content,
		Role:         result.Message.Role,
		FinishReason: result.FinishReason,
	})
}

func (s *Server) writeFrame(ctx context.Context, ws *websocket.Conn, typ string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("ws frame marshal failed", "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, Frame{Type: typ, Data: payload}); err != nil {
		s.logger.Warn("ws write failed", "error", err)
	}
}
