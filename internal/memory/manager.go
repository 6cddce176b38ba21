package memory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/entity"
	"github.com/recallhq/recall/internal/metrics"
	"github.com/recallhq/recall/internal/nats"
	"github.com/recallhq/recall/internal/provider"
	"github.com/recallhq/recall/internal/scoring"
)

// ProfilePublisher hands profile-relevant chunks to the async fold worker.
type ProfilePublisher interface {
	PublishProfileUpdate(ctx context.Context, event nats.ProfileUpdateEvent) error
}

// Manager is the engine's orchestrator: it owns the write path (analyze,
// embed, persist, mirror, publish) and the read path (concurrent layer
// fetch, budget optimization).
type Manager struct {
	store      Store
	recent     *RecentStore
	embedder   provider.Embedder
	extractor  *entity.Extractor
	scorer     *scoring.Scorer
	optimizer  *Optimizer
	retrievers []Retriever
	publisher  ProfilePublisher
	cfg        Config
}

// NewManager wires the engine together. recent and publisher may be nil;
// both paths then degrade to their synchronous database equivalents.
func NewManager(
	store Store,
	recent *RecentStore,
	embedder provider.Embedder,
	extractor *entity.Extractor,
	scorer *scoring.Scorer,
	publisher ProfilePublisher,
	cfg Config,
) *Manager {
	m := &Manager{
		store:     store,
		recent:    recent,
		embedder:  embedder,
		extractor: extractor,
		scorer:    scorer,
		optimizer: NewOptimizer(cfg),
		publisher: publisher,
		cfg:       cfg,
	}
	m.retrievers = []Retriever{
		NewCriticalRetriever(store, cfg),
		NewRecentRetriever(recent, store, cfg),
		NewSessionRetriever(store, embedder, extractor, cfg),
		NewProfileRetriever(store, cfg),
	}
	return m
}

var identityPhrases = regexp.MustCompile(`(?i)\b(my name is|i am called|call me|i work at|i'm from)\b`)

// StoreMessage runs the full write path for one message. Only the database
// write is fatal: analysis and embedding failures degrade to neutral
// values, the Redis mirror and the profile publish are best-effort.
func (m *Manager) StoreMessage(ctx context.Context, conversationID uuid.UUID, req StoreMessageRequest) (*Chunk, error) {
	entities := m.extractor.Extract(ctx, req.Content)
	score := m.scorer.Score(req.Content, entities, conversationID)

	chunk := &Chunk{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		UserID:          req.UserID,
		WorkspaceID:     req.WorkspaceID,
		Content:         req.Content,
		ChunkType:       classifyChunk(req, entities),
		ImportanceScore: score,
		Entities:        entities,
		Metadata: ChunkMetadata{
			TurnNumber:   req.TurnNumber,
			Speaker:      req.Speaker,
			Intent:       classifyIntent(req.Content),
			IsCorrection: hasEntityType(entities, entity.TypeCorrection),
			RefersToPast: refersToPast(req.Content),
		},
		CreatedAt: time.Now(),
	}
	chunk.SemanticEmbedding, chunk.EntityEmbedding, chunk.IntentEmbedding = m.embedAll(ctx, chunk)

	if err := m.store.CreateChunk(ctx, chunk); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	metrics.ChunksStoredTotal.WithLabelValues(string(chunk.ChunkType)).Inc()

	if m.recent != nil {
		entry := RecentEntry{
			ID:         chunk.ID,
			Content:    chunk.Content,
			Importance: chunk.ImportanceScore,
			Speaker:    req.Speaker,
			CreatedAt:  chunk.CreatedAt,
		}
		if err := m.recent.Append(ctx, conversationID, entry); err != nil {
			slog.Warn("recent mirror append failed", "chunk_id", chunk.ID, "error", err)
		}
	}

	if req.Speaker == "user" {
		m.dispatchProfileUpdate(ctx, chunk)
	}

	return chunk, nil
}

// embedAll produces the three embedding spaces. The entity space embeds
// the space-joined entity texts; a chunk with no entities gets a zero
// entity vector rather than a copy of the semantic one. Any failure
// substitutes zero vectors of the configured dimensionality so downstream
// similarity stays well-defined.
func (m *Manager) embedAll(ctx context.Context, chunk *Chunk) (semantic, entityVec, intent []float32) {
	dims := m.embedder.Dimensions()
	zero := make([]float32, dims)

	intentText := chunk.Metadata.Intent + ": " + chunk.Content
	inputs := []string{chunk.Content, intentText}

	entityText := joinEntityTexts(chunk.Entities)
	if entityText != "" {
		inputs = append(inputs, entityText)
	}

	vectors, err := m.embedder.EmbedBatch(ctx, inputs)
	if err != nil || len(vectors) != len(inputs) {
		slog.Warn("embedding failed, storing zero vectors", "chunk_id", chunk.ID, "error", err)
		metrics.EmbeddingFailuresTotal.Inc()
		return zero, zero, zero
	}

	entityVec = zero
	if entityText != "" {
		entityVec = fitDimensions(vectors[2], dims)
	}
	return fitDimensions(vectors[0], dims), entityVec, fitDimensions(vectors[1], dims)
}

func fitDimensions(v []float32, dims int) []float32 {
	if len(v) == dims {
		return v
	}
	fitted := make([]float32, dims)
	copy(fitted, v)
	return fitted
}

func joinEntityTexts(entities []entity.Entity) string {
	var parts []string
	for _, e := range entities {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

func classifyIntent(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasSuffix(trimmed, "?") {
		return "question"
	}
	if identityPhrases.MatchString(trimmed) {
		return "identity_sharing"
	}
	return "statement"
}

func classifyChunk(req StoreMessageRequest, entities []entity.Entity) ChunkType {
	if hasEntityType(entities, entity.TypeCorrection) {
		return ChunkTypeCorrection
	}
	if hasEntityType(entities, entity.TypePreference) {
		return ChunkTypePreference
	}
	if req.Speaker == "assistant" {
		return ChunkTypeAssistantMessage
	}
	return ChunkTypeUserMessage
}

func hasEntityType(entities []entity.Entity, t entity.Type) bool {
	for _, e := range entities {
		if e.Type == t {
			return true
		}
	}
	return false
}

var pastReferences = regexp.MustCompile(`(?i)\b(earlier|before|previously|last time|as i said|you mentioned)\b`)

func refersToPast(content string) bool {
	return pastReferences.MatchString(content)
}

// dispatchProfileUpdate publishes the chunk for the async profile fold.
// When the event bus is absent or the publish fails, the fold runs in a
// detached goroutine so the profile still converges.
func (m *Manager) dispatchProfileUpdate(ctx context.Context, chunk *Chunk) {
	event := nats.ProfileUpdateEvent{
		ChunkID:        chunk.ID,
		ConversationID: chunk.ConversationID,
		UserID:         chunk.UserID,
		WorkspaceID:    chunk.WorkspaceID,
		Content:        chunk.Content,
		Entities:       chunk.Entities,
		ChunkType:      string(chunk.ChunkType),
		Timestamp:      chunk.CreatedAt,
	}

	if m.publisher != nil {
		err := m.publisher.PublishProfileUpdate(ctx, event)
		if err == nil {
			return
		}
		slog.Warn("profile event publish failed, folding inline", "chunk_id", chunk.ID, "error", err)
	}

	go func() {
		foldCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.FoldProfile(foldCtx, event); err != nil {
			slog.Error("inline profile fold failed", "user_id", event.UserID, "error", err)
		}
	}()
}

// GetContextForQuery fetches all four layers concurrently and fits them
// into the token budget. A failed layer contributes nothing; the call
// itself never fails.
func (m *Manager) GetContextForQuery(ctx context.Context, conversationID uuid.UUID, req ContextRequest) ContextResult {
	layerReq := LayerRequest{
		ConversationID: conversationID,
		UserID:         req.UserID,
		WorkspaceID:    req.WorkspaceID,
		Query:          req.Query,
	}

	layers := make([]Layer, len(m.retrievers))
	var wg sync.WaitGroup
	for i, retriever := range m.retrievers {
		wg.Add(1)
		go func(i int, retriever Retriever) {
			defer wg.Done()
			layer, err := retriever.Fetch(ctx, layerReq)
			if err != nil {
				slog.Warn("layer fetch failed", "layer", retriever.Name(), "error", err)
				metrics.LayerFallbacksTotal.WithLabelValues(retriever.Name()).Inc()
			}
			layers[i] = layer
		}(i, retriever)
	}
	wg.Wait()

	result := m.optimizer.Optimize(layers)
	metrics.ContextTokens.Observe(float64(result.TokenCount))
	return result
}
