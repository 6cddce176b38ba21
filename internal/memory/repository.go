package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Store defines chunk and profile persistence. Chunk writes are append-only;
// profiles are merge-upserted.
type Store interface {
	CreateChunk(ctx context.Context, chunk *Chunk) error
	RecentChunks(ctx context.Context, conversationID uuid.UUID, limit int) ([]Chunk, error)
	ChunksByImportance(ctx context.Context, conversationID uuid.UUID, minScore float64, limit int) ([]Chunk, error)
	SearchSimilar(ctx context.Context, conversationID, workspaceID uuid.UUID, embedding []float32, entityTexts []string, limit int) ([]SimilarChunk, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)
	UpsertProfile(ctx context.Context, delta *ProfileDelta) error
}

// Blend weights for the hybrid similarity score: semantic nearest-neighbor
// is the primary signal, entity overlap and recency are secondary.
const (
	similaritySemanticWeight = 0.6
	similarityEntityWeight   = 0.25
	similarityRecencyWeight  = 0.15
)

// PostgresRepository implements Store using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new chunk/profile repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const chunkColumns = `id, conversation_id, user_id, workspace_id, content, chunk_type,
	importance_score, entities, metadata, created_at`

func (r *PostgresRepository) CreateChunk(ctx context.Context, chunk *Chunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}

	entities, err := json.Marshal(chunk.Entities)
	if err != nil {
		return fmt.Errorf("marshaling entities: %w", err)
	}
	metadata, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO memory_chunks (id, conversation_id, user_id, workspace_id, content, chunk_type,
		   importance_score, entities, semantic_embedding, entity_embedding, intent_embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		chunk.ID, chunk.ConversationID, chunk.UserID, chunk.WorkspaceID, chunk.Content, chunk.ChunkType,
		chunk.ImportanceScore, entities,
		pgvector.NewVector(chunk.SemanticEmbedding),
		pgvector.NewVector(chunk.EntityEmbedding),
		pgvector.NewVector(chunk.IntentEmbedding),
		metadata, chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecentChunks(ctx context.Context, conversationID uuid.UUID, limit int) ([]Chunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM memory_chunks
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (r *PostgresRepository) ChunksByImportance(ctx context.Context, conversationID uuid.UUID, minScore float64, limit int) ([]Chunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM memory_chunks
		 WHERE conversation_id = $1 AND importance_score >= $2
		 ORDER BY importance_score DESC, created_at DESC
		 LIMIT $3`,
		conversationID, minScore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chunks by importance: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, conversationID, workspaceID uuid.UUID, embedding []float32, entityTexts []string, limit int) ([]SimilarChunk, error) {
	lowered := make([]string, len(entityTexts))
	for i, t := range entityTexts {
		lowered[i] = strings.ToLower(t)
	}

	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT `+chunkColumns+`,
		        1 - (semantic_embedding <=> $1) AS semantic,
		        (SELECT count(*) FROM jsonb_array_elements(entities) e
		          WHERE lower(e->>'text') = ANY($4)) AS entity_hits,
		        EXTRACT(EPOCH FROM (now() - created_at)) / 3600 AS age_hours
		 FROM memory_chunks
		 WHERE conversation_id = $2 AND workspace_id = $3
		 ORDER BY semantic_embedding <=> $1
		 LIMIT $5`,
		vec, conversationID, workspaceID, lowered, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar chunks: %w", err)
	}
	defer rows.Close()

	var results []SimilarChunk
	for rows.Next() {
		var c Chunk
		var entities, metadata []byte
		var semantic, ageHours float64
		var entityHits int64
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.UserID, &c.WorkspaceID, &c.Content, &c.ChunkType,
			&c.ImportanceScore, &entities, &metadata, &c.CreatedAt,
			&semantic, &entityHits, &ageHours); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := unmarshalChunkJSON(&c, entities, metadata); err != nil {
			return nil, err
		}

		entityOverlap := float64(entityHits) / 3
		if entityOverlap > 1 {
			entityOverlap = 1
		}
		recency := math.Exp(-ageHours / 24)

		results = append(results, SimilarChunk{
			Chunk: c,
			Score: similaritySemanticWeight*semantic +
				similarityEntityWeight*entityOverlap +
				similarityRecencyWeight*recency,
		})
	}
	return results, rows.Err()
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error) {
	var p UserProfile
	var prefs, interests, corrections []byte
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, COALESCE(name, ''), preferences, communication_style, interests, corrections,
		        created_at, updated_at
		 FROM user_profiles
		 WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Name, &prefs, &p.CommunicationStyle, &interests, &corrections, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	if err := json.Unmarshal(interests, &p.Interests); err != nil {
		return nil, fmt.Errorf("decoding interests: %w", err)
	}
	if err := json.Unmarshal(corrections, &p.Corrections); err != nil {
		return nil, fmt.Errorf("decoding corrections: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) UpsertProfile(ctx context.Context, delta *ProfileDelta) error {
	prefs, err := json.Marshal(orEmptyMap(delta.Preferences))
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}
	interests, err := json.Marshal(orEmptySlice(delta.Interests))
	if err != nil {
		return fmt.Errorf("marshaling interests: %w", err)
	}
	corrections, err := json.Marshal(orEmptySlice(delta.Corrections))
	if err != nil {
		return fmt.Errorf("marshaling corrections: %w", err)
	}

	// Merge, never overwrite: preferences are last-write-wins per key,
	// interests a set union, corrections append-only, name keeps the
	// existing value unless the delta carries one.
	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, name, preferences, interests, corrections)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		   name = COALESCE(NULLIF(EXCLUDED.name, ''), user_profiles.name),
		   preferences = user_profiles.preferences || EXCLUDED.preferences,
		   interests = (
		     SELECT COALESCE(jsonb_agg(DISTINCT e), '[]'::jsonb)
		     FROM jsonb_array_elements(user_profiles.interests || EXCLUDED.interests) e
		   ),
		   corrections = user_profiles.corrections || EXCLUDED.corrections,
		   updated_at = now()`,
		delta.UserID, delta.Name, prefs, interests, corrections,
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var entities, metadata []byte
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.UserID, &c.WorkspaceID, &c.Content, &c.ChunkType,
			&c.ImportanceScore, &entities, &metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := unmarshalChunkJSON(&c, entities, metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func unmarshalChunkJSON(c *Chunk, entities, metadata []byte) error {
	if err := json.Unmarshal(entities, &c.Entities); err != nil {
		return fmt.Errorf("decoding entities for chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
		return fmt.Errorf("decoding metadata for chunk %s: %w", c.ID, err)
	}
	return nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
