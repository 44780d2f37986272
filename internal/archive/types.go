package archive

import (
	"context"
	"time"
)

// TurnRecord stores one user or assistant turn of a completed exchange.
type TurnRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists chat transcripts. Writes are best-effort from the
// session manager's point of view: a failed save never fails a chat
// round.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}
