package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// wsChatRequest is one client turn over the chat websocket. A missing
// session_id starts a fresh session whose id is echoed back in every
// frame.
type wsChatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
	samplingOverrides
}

const (
	wsFrameChunk = "chunk"
	wsFrameDone  = "done"
	wsFrameError = "error"
)

type wsServerFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// handleChatWS serves session chat over a websocket: one request frame
// in, a series of chunk frames plus a done frame out. Requests on one
// connection are handled sequentially.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var req wsChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		s.countRequest("ws")

		if req.Message == "" {
			if err := conn.WriteJSON(wsServerFrame{Type: wsFrameError, Detail: "message is required"}); err != nil {
				return
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		if req.SystemPrompt == "" {
			req.SystemPrompt = defaultSystemPrompt
		}
		turnID := uuid.NewString()

		var writeErr error
		s.sessions.ProcessMessageStream(r.Context(), req.SessionID, req.SystemPrompt, req.Message, func(chunk string) {
			if writeErr != nil {
				return
			}
			writeErr = conn.WriteJSON(wsServerFrame{
				Type:      wsFrameChunk,
				SessionID: req.SessionID,
				TurnID:    turnID,
				Content:   chunk,
			})
		}, req.options())
		if writeErr != nil {
			return
		}

		if err := conn.WriteJSON(wsServerFrame{
			Type:      wsFrameDone,
			SessionID: req.SessionID,
			TurnID:    turnID,
		}); err != nil {
			return
		}
	}
}
