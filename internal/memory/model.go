// Package memory implements the context-assembly engine: storage of
// conversational memory chunks and retrieval of a bounded, ranked context
// from four independent layers.
package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/entity"
)

// ChunkType tags what kind of memory a chunk holds.
type ChunkType string

const (
	ChunkTypeUserMessage      ChunkType = "user_message"
	ChunkTypeAssistantMessage ChunkType = "assistant_message"
	ChunkTypeSystemInfo       ChunkType = "system_info"
	ChunkTypeCorrection       ChunkType = "correction"
	ChunkTypePreference       ChunkType = "preference"
)

// ChunkMetadata is the free-form context recorded alongside a chunk.
type ChunkMetadata struct {
	TurnNumber   int      `json:"turn_number"`
	Speaker      string   `json:"speaker"`
	Intent       string   `json:"intent"`
	Sentiment    float64  `json:"sentiment"`
	IsCorrection bool     `json:"is_correction"`
	RefersToPast bool     `json:"refers_to_past"`
	Topics       []string `json:"topics,omitempty"`
}

// Chunk is one immutable unit of conversational memory. Once persisted it is
// never mutated; corrections are stored as new chunks.
type Chunk struct {
	ID              uuid.UUID       `json:"id"`
	ConversationID  uuid.UUID       `json:"conversation_id"`
	UserID          uuid.UUID       `json:"user_id"`
	WorkspaceID     uuid.UUID       `json:"workspace_id"`
	Content         string          `json:"content"`
	ChunkType       ChunkType       `json:"chunk_type"`
	ImportanceScore float64         `json:"importance_score"`
	Entities        []entity.Entity `json:"entities"`

	// The three embedding spaces. Each always has the configured
	// dimensionality; collaborator failures substitute zero vectors.
	SemanticEmbedding []float32 `json:"semantic_embedding,omitempty"`
	EntityEmbedding   []float32 `json:"entity_embedding,omitempty"`
	IntentEmbedding   []float32 `json:"intent_embedding,omitempty"`

	Metadata  ChunkMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

// UserProfile is the durable cross-conversation profile for a user. It is
// created lazily on the first user message and merge-updated afterwards,
// never deleted.
type UserProfile struct {
	UserID             uuid.UUID         `json:"user_id"`
	Name               string            `json:"name,omitempty"`
	Preferences        map[string]string `json:"preferences"`
	CommunicationStyle string            `json:"communication_style,omitempty"`
	Interests          []string          `json:"interests,omitempty"`
	Corrections        []string          `json:"corrections,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// ProfileDelta is one merge step applied to a UserProfile. Preferences use
// last-write-wins per key; interests are set-unioned; corrections append.
type ProfileDelta struct {
	UserID      uuid.UUID
	Name        string
	Preferences map[string]string
	Interests   []string
	Corrections []string
}

// SimilarChunk is a chunk with its blended similarity score.
type SimilarChunk struct {
	Chunk Chunk
	Score float64
}

// StoreMessageRequest is the external store operation payload.
type StoreMessageRequest struct {
	Content     string    `json:"content" validate:"required,min=1"`
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	WorkspaceID uuid.UUID `json:"workspace_id" validate:"required"`
	Speaker     string    `json:"speaker" validate:"required,oneof=user assistant"`
	TurnNumber  int       `json:"turn_number" validate:"gte=0"`
}

// ContextRequest is the external retrieval operation payload.
type ContextRequest struct {
	Query       string    `json:"query" validate:"required,min=1"`
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	WorkspaceID uuid.UUID `json:"workspace_id" validate:"required"`
}

// ContextResult is the assembled context handed to the completion caller.
// An empty Content means "no memory available", never a failure.
type ContextResult struct {
	Content    string      `json:"content"`
	Sources    []uuid.UUID `json:"sources"`
	TokenCount int         `json:"token_count"`
}
