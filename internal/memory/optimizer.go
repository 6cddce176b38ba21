package memory

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/tokens"
)

// Layer is one retriever's candidate contribution, already trimmed to the
// retriever's own budget. TokenCount is the sum of the piece estimates
// computed at build time; it is never re-measured after concatenation.
type Layer struct {
	Name       string
	Content    string
	Sources    []uuid.UUID
	TokenCount int
	Priority   float64
}

// Optimizer merges the four layer contributions into one bounded context.
// Layers are processed in descending priority order; each receives a
// nominal share of the remaining budget proportional to its weight among
// the not-yet-processed layers, so a sparse high-priority layer leaves
// more room for everything after it. Optimize never fails: worst case the
// result is empty.
type Optimizer struct {
	totalBudget    int
	bufferFraction float64
}

func NewOptimizer(cfg Config) *Optimizer {
	if cfg.TotalBudgetTokens <= 0 {
		cfg = DefaultConfig()
	}
	return &Optimizer{
		totalBudget:    cfg.TotalBudgetTokens,
		bufferFraction: cfg.BufferFraction,
	}
}

// presentationOrder is the fixed order of sections in the assembled
// context, independent of processing order.
var presentationOrder = []string{LayerCritical, LayerRecent, LayerSession, LayerProfile}

// Optimize assembles the final context. The total token count never
// exceeds the budget minus the buffer reserve.
func (o *Optimizer) Optimize(layers []Layer) ContextResult {
	available := int(float64(o.totalBudget) * (1 - o.bufferFraction))

	ordered := make([]Layer, len(layers))
	copy(ordered, layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	remainingWeight := 0.0
	for _, l := range ordered {
		remainingWeight += l.Priority
	}

	allocated := make(map[string]Layer, len(ordered))
	remaining := available
	for _, l := range ordered {
		weight := l.Priority
		remainingWeight -= weight

		if l.TokenCount == 0 || l.Content == "" {
			continue
		}

		share := remaining
		if remainingWeight > 0 {
			share = int(float64(remaining) * weight / (weight + remainingWeight))
		}
		if share <= 0 {
			continue
		}

		if l.TokenCount <= share {
			allocated[l.Name] = l
			remaining -= l.TokenCount
			continue
		}

		truncated := truncateToTokens(l.Content, share)
		if truncated == "" {
			continue
		}
		l.Content = truncated
		l.TokenCount = tokens.Estimate(truncated)
		allocated[l.Name] = l
		remaining -= l.TokenCount
	}

	var (
		sections   []string
		sources    []uuid.UUID
		seen       = map[uuid.UUID]struct{}{}
		totalCount int
	)
	for _, name := range presentationOrder {
		l, ok := allocated[name]
		if !ok {
			continue
		}
		sections = append(sections, l.Content)
		totalCount += l.TokenCount
		for _, id := range l.Sources {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			sources = append(sources, id)
		}
	}

	return ContextResult{
		Content:    strings.Join(sections, "\n\n"),
		Sources:    sources,
		TokenCount: totalCount,
	}
}

// truncateToTokens cuts s so its token estimate is at most budget,
// preferring to break at a line boundary near the cut.
func truncateToTokens(s string, budget int) string {
	maxChars := budget * 4
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if i := strings.LastIndexByte(cut, '\n'); i > maxChars/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n")
}
