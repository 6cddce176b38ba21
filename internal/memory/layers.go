package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/entity"
	"github.com/recallhq/recall/internal/metrics"
	"github.com/recallhq/recall/internal/provider"
	"github.com/recallhq/recall/internal/tokens"
)

// LayerRequest carries the identifiers a retriever needs to scope its fetch.
type LayerRequest struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	WorkspaceID    uuid.UUID
	Query          string
}

// Retriever produces one layer's candidate contribution. Retrievers are
// independent: a failure in one never blocks the others.
type Retriever interface {
	Name() string
	Fetch(ctx context.Context, req LayerRequest) (Layer, error)
}

// buildLayer appends pieces in ranked order until the layer budget is
// exhausted. The first piece is always kept so a single oversized entry
// cannot empty the layer; the optimizer truncates it later if needed.
// TokenCount is the sum of the kept piece estimates.
func buildLayer(name string, priority float64, budget int, lines []string, sources []uuid.UUID) Layer {
	var (
		kept    []string
		keptSrc []uuid.UUID
		used    int
	)
	for i, line := range lines {
		est := tokens.Estimate(line)
		if used+est > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, line)
		used += est
		if i < len(sources) {
			keptSrc = append(keptSrc, sources[i])
		}
	}
	return Layer{
		Name:       name,
		Content:    strings.Join(kept, "\n"),
		Sources:    keptSrc,
		TokenCount: used,
		Priority:   priority,
	}
}

func layerBudget(total int, fraction float64) int {
	return int(float64(total) * fraction)
}

// RecentRetriever serves the short-term window. It reads the Redis mirror
// first and falls back to Postgres when the mirror is cold or unavailable.
// Entries are ranked by a blend of importance and recency decay.
type RecentRetriever struct {
	recent *RecentStore
	store  Store
	cfg    Config
}

func NewRecentRetriever(recent *RecentStore, store Store, cfg Config) *RecentRetriever {
	return &RecentRetriever{recent: recent, store: store, cfg: cfg}
}

func (r *RecentRetriever) Name() string { return LayerRecent }

func (r *RecentRetriever) Fetch(ctx context.Context, req LayerRequest) (Layer, error) {
	entries := r.fromMirror(ctx, req.ConversationID)
	if entries == nil {
		chunks, err := r.store.RecentChunks(ctx, req.ConversationID, r.cfg.RecentWindowSize)
		if err != nil {
			return Layer{Name: LayerRecent, Priority: PriorityRecent}, fmt.Errorf("recent layer: %w", err)
		}
		entries = make([]RecentEntry, len(chunks))
		for i, c := range chunks {
			entries[i] = RecentEntry{
				ID:         c.ID,
				Content:    c.Content,
				Importance: c.ImportanceScore,
				Speaker:    c.Metadata.Speaker,
				CreatedAt:  c.CreatedAt,
			}
		}
	}

	now := time.Now()
	sort.SliceStable(entries, func(i, j int) bool {
		return r.rank(entries[i], now) > r.rank(entries[j], now)
	})

	var (
		lines   []string
		sources []uuid.UUID
	)
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Speaker, e.Content))
		sources = append(sources, e.ID)
	}
	budget := layerBudget(r.cfg.TotalBudgetTokens, r.cfg.RecentFraction)
	return buildLayer(LayerRecent, PriorityRecent, budget, lines, sources), nil
}

func (r *RecentRetriever) fromMirror(ctx context.Context, conversationID uuid.UUID) []RecentEntry {
	if r.recent == nil {
		return nil
	}
	entries, err := r.recent.Window(ctx, conversationID, r.cfg.RecentWindowSize)
	if err != nil {
		slog.Warn("recent mirror unavailable, falling back to database", "error", err)
		metrics.LayerFallbacksTotal.WithLabelValues(LayerRecent).Inc()
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

func (r *RecentRetriever) rank(e RecentEntry, now time.Time) float64 {
	ageHours := now.Sub(e.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	halfLife := r.cfg.RecencyHalfLifeHours
	if halfLife <= 0 {
		halfLife = 24
	}
	return 0.7*e.Importance + 0.3*math.Exp(-ageHours/halfLife)
}

// SessionRetriever serves similarity search over the whole conversation.
// The query is embedded and entity-scanned; when embedding fails it
// degrades to importance-ordered retrieval rather than returning nothing.
type SessionRetriever struct {
	store     Store
	embedder  provider.Embedder
	extractor *entity.Extractor
	cfg       Config
}

func NewSessionRetriever(store Store, embedder provider.Embedder, extractor *entity.Extractor, cfg Config) *SessionRetriever {
	return &SessionRetriever{store: store, embedder: embedder, extractor: extractor, cfg: cfg}
}

func (r *SessionRetriever) Name() string { return LayerSession }

func (r *SessionRetriever) Fetch(ctx context.Context, req LayerRequest) (Layer, error) {
	embedding, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		slog.Warn("query embedding failed, session layer degrading to importance order", "error", err)
		metrics.LayerFallbacksTotal.WithLabelValues(LayerSession).Inc()
		return r.fetchByImportance(ctx, req)
	}

	var entityTexts []string
	if r.extractor != nil {
		for _, e := range r.extractor.Extract(ctx, req.Query) {
			entityTexts = append(entityTexts, e.Text)
		}
	}

	similar, err := r.store.SearchSimilar(ctx, req.ConversationID, req.WorkspaceID, embedding, entityTexts, r.cfg.SearchLimit)
	if err != nil {
		return Layer{Name: LayerSession, Priority: PrioritySession}, fmt.Errorf("session layer: %w", err)
	}

	sort.SliceStable(similar, func(i, j int) bool { return similar[i].Score > similar[j].Score })

	var (
		lines   []string
		sources []uuid.UUID
	)
	for _, s := range similar {
		lines = append(lines, s.Chunk.Content)
		sources = append(sources, s.Chunk.ID)
	}
	budget := layerBudget(r.cfg.TotalBudgetTokens, r.cfg.SessionFraction)
	return buildLayer(LayerSession, PrioritySession, budget, lines, sources), nil
}

func (r *SessionRetriever) fetchByImportance(ctx context.Context, req LayerRequest) (Layer, error) {
	chunks, err := r.store.ChunksByImportance(ctx, req.ConversationID, 0, r.cfg.SearchLimit)
	if err != nil {
		return Layer{Name: LayerSession, Priority: PrioritySession}, fmt.Errorf("session layer fallback: %w", err)
	}

	var (
		lines   []string
		sources []uuid.UUID
	)
	for _, c := range chunks {
		lines = append(lines, c.Content)
		sources = append(sources, c.ID)
	}
	budget := layerBudget(r.cfg.TotalBudgetTokens, r.cfg.SessionFraction)
	return buildLayer(LayerSession, PrioritySession, budget, lines, sources), nil
}

// ProfileRetriever serves the durable cross-conversation profile. Absence
// of a profile is a normal empty layer, not an error.
type ProfileRetriever struct {
	store Store
	cfg   Config
}

func NewProfileRetriever(store Store, cfg Config) *ProfileRetriever {
	return &ProfileRetriever{store: store, cfg: cfg}
}

func (r *ProfileRetriever) Name() string { return LayerProfile }

func (r *ProfileRetriever) Fetch(ctx context.Context, req LayerRequest) (Layer, error) {
	profile, err := r.store.GetProfile(ctx, req.UserID)
	if err != nil {
		return Layer{Name: LayerProfile, Priority: PriorityProfile}, fmt.Errorf("profile layer: %w", err)
	}
	if profile == nil {
		return Layer{Name: LayerProfile, Priority: PriorityProfile}, nil
	}

	// The name is always included at flat cost; preferences only when
	// their key or value shares a token with the query. Everything else
	// on the profile stays out of the assembled context.
	var lines []string
	if profile.Name != "" {
		lines = append(lines, fmt.Sprintf("User name: %s", profile.Name))
	}
	for _, key := range matchedPreferenceKeys(profile.Preferences, req.Query) {
		lines = append(lines, fmt.Sprintf("Preference: %s = %s", key, profile.Preferences[key]))
	}

	budget := layerBudget(r.cfg.TotalBudgetTokens, r.cfg.ProfileFraction)
	return buildLayer(LayerProfile, PriorityProfile, budget, lines, nil), nil
}

// matchedPreferenceKeys returns, alphabetically, the preference keys whose
// key or value shares a word with the query. Non-matching preferences are
// excluded entirely.
func matchedPreferenceKeys(prefs map[string]string, query string) []string {
	queryWords := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		queryWords[strings.Trim(w, ".,!?")] = struct{}{}
	}

	var matched []string
	for key := range prefs {
		for _, w := range strings.Fields(strings.ToLower(key + " " + prefs[key])) {
			if _, ok := queryWords[w]; ok {
				matched = append(matched, key)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

// CriticalRetriever serves the must-keep facts of the conversation:
// everything at or above the importance threshold, independent of the
// query.
type CriticalRetriever struct {
	store Store
	cfg   Config
}

func NewCriticalRetriever(store Store, cfg Config) *CriticalRetriever {
	return &CriticalRetriever{store: store, cfg: cfg}
}

func (r *CriticalRetriever) Name() string { return LayerCritical }

func (r *CriticalRetriever) Fetch(ctx context.Context, req LayerRequest) (Layer, error) {
	chunks, err := r.store.ChunksByImportance(ctx, req.ConversationID, r.cfg.CriticalThreshold, r.cfg.SearchLimit)
	if err != nil {
		return Layer{Name: LayerCritical, Priority: PriorityCritical}, fmt.Errorf("critical layer: %w", err)
	}

	var (
		lines   []string
		sources []uuid.UUID
	)
	for _, c := range chunks {
		lines = append(lines, c.Content)
		sources = append(sources, c.ID)
	}
	budget := layerBudget(r.cfg.TotalBudgetTokens, r.cfg.CriticalFraction)
	return buildLayer(LayerCritical, PriorityCritical, budget, lines, sources), nil
}
