package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/entity"
	"github.com/recallhq/recall/internal/nats"
	"github.com/recallhq/recall/internal/scoring"
)

type fakeStore struct {
	mu         sync.Mutex
	chunks     []Chunk
	profile    *UserProfile
	deltas     []*ProfileDelta
	failSearch bool
	failCreate bool
}

func (s *fakeStore) CreateChunk(_ context.Context, chunk *Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("database down")
	}
	s.chunks = append(s.chunks, *chunk)
	return nil
}

func (s *fakeStore) RecentChunks(_ context.Context, conversationID uuid.UUID, limit int) ([]Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Chunk
	for i := len(s.chunks) - 1; i >= 0 && len(out) < limit; i-- {
		if s.chunks[i].ConversationID == conversationID {
			out = append(out, s.chunks[i])
		}
	}
	return out, nil
}

func (s *fakeStore) ChunksByImportance(_ context.Context, conversationID uuid.UUID, minScore float64, limit int) ([]Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Chunk
	for _, c := range s.chunks {
		if c.ConversationID == conversationID && c.ImportanceScore >= minScore && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) SearchSimilar(_ context.Context, conversationID, _ uuid.UUID, _ []float32, _ []string, limit int) ([]SimilarChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSearch {
		return nil, errors.New("search unavailable")
	}
	var out []SimilarChunk
	for _, c := range s.chunks {
		if c.ConversationID == conversationID && len(out) < limit {
			out = append(out, SimilarChunk{Chunk: c, Score: c.ImportanceScore})
		}
	}
	return out, nil
}

func (s *fakeStore) GetProfile(_ context.Context, userID uuid.UUID) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil || s.profile.UserID != userID {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

func (s *fakeStore) UpsertProfile(_ context.Context, delta *ProfileDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
	return nil
}

type fakeEmbedder struct {
	dims int
	fail bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedding unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dims)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }

func newTestManager(store *fakeStore, embedder *fakeEmbedder) *Manager {
	cfg := DefaultConfig()
	cfg.TotalBudgetTokens = 1000
	return NewManager(
		store,
		nil,
		embedder,
		entity.NewExtractor(nil),
		scoring.NewScorer(),
		nil,
		cfg,
	)
}

func TestStoreMessage_AssignsDistinctIDs(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})
	convID := uuid.New()
	req := StoreMessageRequest{
		Content:     "I work at Acme Corp on the billing system",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "assistant",
	}

	first, err := m.StoreMessage(context.Background(), convID, req)
	require.NoError(t, err)
	second, err := m.StoreMessage(context.Background(), convID, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, store.chunks, 2)
}

func TestStoreMessage_ZeroVectorsOnEmbeddingFailure(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8, fail: true})

	chunk, err := m.StoreMessage(context.Background(), uuid.New(), StoreMessageRequest{
		Content:     "hello there",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "assistant",
	})
	require.NoError(t, err)

	require.Len(t, chunk.SemanticEmbedding, 8)
	for _, v := range chunk.SemanticEmbedding {
		assert.Zero(t, v)
	}
	for _, v := range chunk.EntityEmbedding {
		assert.Zero(t, v)
	}
	for _, v := range chunk.IntentEmbedding {
		assert.Zero(t, v)
	}
}

func TestStoreMessage_EntityEmbeddingIsZeroWithoutEntities(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})

	chunk, err := m.StoreMessage(context.Background(), uuid.New(), StoreMessageRequest{
		Content:     "ok let me think about that one",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "assistant",
	})
	require.NoError(t, err)
	require.Empty(t, chunk.Entities)

	assert.NotZero(t, chunk.SemanticEmbedding[0])
	for _, v := range chunk.EntityEmbedding {
		assert.Zero(t, v)
	}
}

func TestStoreMessage_EntityEmbeddingFromEntityTexts(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})

	chunk, err := m.StoreMessage(context.Background(), uuid.New(), StoreMessageRequest{
		Content:     "My name is Alice Johnson and I work at Acme Corp",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "assistant",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunk.Entities)

	// The entity space embeds the joined entity texts, which are shorter
	// than the full message, so the fake's length marker differs.
	assert.NotZero(t, chunk.EntityEmbedding[0])
	assert.NotEqual(t, chunk.SemanticEmbedding[0], chunk.EntityEmbedding[0])
}

func TestStoreMessage_PersistFailureIsFatal(t *testing.T) {
	store := &fakeStore{failCreate: true}
	m := newTestManager(store, &fakeEmbedder{dims: 8})

	_, err := m.StoreMessage(context.Background(), uuid.New(), StoreMessageRequest{
		Content:     "hello",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "user",
	})
	assert.Error(t, err)
}

func TestStoreMessage_ClassifiesPreference(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})

	chunk, err := m.StoreMessage(context.Background(), uuid.New(), StoreMessageRequest{
		Content:     "I prefer dark mode for all my editors",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "assistant",
	})
	require.NoError(t, err)
	assert.Equal(t, ChunkTypePreference, chunk.ChunkType)
}

func TestClassifyIntent(t *testing.T) {
	assert.Equal(t, "question", classifyIntent("What time is it?"))
	assert.Equal(t, "identity_sharing", classifyIntent("My name is Alice"))
	assert.Equal(t, "statement", classifyIntent("The deploy finished"))
}

func TestGetContextForQuery_WithinBudget(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})
	convID := uuid.New()
	userID := uuid.New()
	wsID := uuid.New()

	for i := 0; i < 30; i++ {
		_, err := m.StoreMessage(context.Background(), convID, StoreMessageRequest{
			Content:     "I told you this is a fairly long message about the project roadmap and the milestones we agreed on last quarter",
			UserID:      userID,
			WorkspaceID: wsID,
			Speaker:     "assistant",
			TurnNumber:  i,
		})
		require.NoError(t, err)
	}

	result := m.GetContextForQuery(context.Background(), convID, ContextRequest{
		Query:       "what are the roadmap milestones",
		UserID:      userID,
		WorkspaceID: wsID,
	})

	assert.LessOrEqual(t, result.TokenCount, 950)
	assert.NotEmpty(t, result.Content)
	assert.NotEmpty(t, result.Sources)
}

func TestGetContextForQuery_EmptyConversation(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})

	result := m.GetContextForQuery(context.Background(), uuid.New(), ContextRequest{
		Query:       "anything",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
	})

	assert.Empty(t, result.Content)
	assert.Zero(t, result.TokenCount)
}

func TestGetContextForQuery_SearchFailureDegrades(t *testing.T) {
	store := &fakeStore{failSearch: true}
	m := newTestManager(store, &fakeEmbedder{dims: 8})
	convID := uuid.New()

	_, err := m.StoreMessage(context.Background(), convID, StoreMessageRequest{
		Content:     "An important decision was made about the database schema",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Speaker:     "assistant",
	})
	require.NoError(t, err)

	result := m.GetContextForQuery(context.Background(), convID, ContextRequest{
		Query:       "schema",
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
	})

	// Session search failing never takes down the call; the other layers
	// still contribute.
	assert.NotEmpty(t, result.Content)
}

func TestFoldProfile_MergesDelta(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, &fakeEmbedder{dims: 8})
	userID := uuid.New()

	err := m.FoldProfile(context.Background(), nats.ProfileUpdateEvent{
		ChunkID: uuid.New(),
		UserID:  userID,
		Content: "My name is Alice Johnson",
		Entities: []entity.Entity{
			{Text: "Alice Johnson", Type: entity.TypePerson, Canonical: "Alice Johnson", Confidence: 0.95},
		},
		ChunkType: string(ChunkTypeUserMessage),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	require.Len(t, store.deltas, 1)
	assert.Equal(t, "Alice Johnson", store.deltas[0].Name)
	assert.Equal(t, userID, store.deltas[0].UserID)
}

func TestBuildProfileDelta_CorrectionAndPreference(t *testing.T) {
	event := nats.ProfileUpdateEvent{
		UserID:  uuid.New(),
		Content: "Actually, I prefer tabs over spaces",
		Entities: []entity.Entity{
			{Text: "prefer tabs", Type: entity.TypePreference, Canonical: "prefer tabs", Context: "I prefer tabs over spaces"},
		},
		ChunkType: string(ChunkTypeCorrection),
	}

	delta := buildProfileDelta(event)

	assert.Equal(t, "I prefer tabs over spaces", delta.Preferences["prefer tabs"])
	require.Len(t, delta.Corrections, 1)
	assert.Contains(t, delta.Corrections[0], "tabs over spaces")
}
