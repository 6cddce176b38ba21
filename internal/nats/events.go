package nats

import (
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/entity"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents is the JetStream stream carrying engine events.
const StreamEvents = "RECALL_EVENTS"

// Subject constants.
const (
	SubjectProfileUpdate = "recall.events.profile"
)

// ProfileUpdateEvent is published after a user message is stored so the
// durable profile can be folded asynchronously. It carries everything the
// fold needs; the consumer does not re-read the chunk.
type ProfileUpdateEvent struct {
	ChunkID        uuid.UUID       `json:"chunk_id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	UserID         uuid.UUID       `json:"user_id"`
	WorkspaceID    uuid.UUID       `json:"workspace_id"`
	Content        string          `json:"content"`
	Entities       []entity.Entity `json:"entities"`
	ChunkType      string          `json:"chunk_type"`
	Timestamp      time.Time       `json:"timestamp"`
}
