// Package scoring computes the retention priority of a message, independent
// of topical relevance to any query.
package scoring

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/entity"
)

const (
	baseScore = 0.3

	// failClosedScore is returned when scoring itself fails; losing one
	// message's priority is preferable to failing the store call.
	failClosedScore = 0.1

	shortMessageLen = 12
	longMessageLen  = 160
	earlyTurnCutoff = 3
)

// ackPhrases are bare acknowledgements that carry no retention value.
var ackPhrases = map[string]bool{
	"ok": true, "okay": true, "yes": true, "no": true, "thanks": true,
	"thank you": true, "sure": true, "got it": true, "cool": true, "yep": true,
}

// TurnIndexFunc returns the current turn index for a conversation. It is the
// only positional state the scorer reads.
type TurnIndexFunc func(conversationID uuid.UUID) int

// Scorer derives an importance scalar in [0,1] from a message's text and
// extracted entities.
type Scorer struct {
	turnIndex TurnIndexFunc
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTurnIndex supplies the conversation turn lookup.
func WithTurnIndex(fn TurnIndexFunc) Option {
	return func(s *Scorer) { s.turnIndex = fn }
}

// NewScorer creates a Scorer.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the retention priority for the message. It never panics and
// never leaves [0,1]; internal failures fail closed to a low score.
func (s *Scorer) Score(text string, entities []entity.Entity, conversationID uuid.UUID) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("scoring: recovered, failing closed", "panic", r)
			score = failClosedScore
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	if ackPhrases[strings.ToLower(strings.TrimRight(trimmed, ".!?"))] {
		return failClosedScore
	}

	score = baseScore

	// Entity signal: more and stronger entities raise the score, capped so
	// entity-dense messages saturate rather than dominate.
	var confSum float64
	hasBoostType := false
	for _, e := range entities {
		confSum += e.Confidence
		if e.Type == entity.TypeCorrection || e.Type == entity.TypePreference {
			hasBoostType = true
		}
	}
	entityTerm := confSum / 3
	if entityTerm > 1 {
		entityTerm = 1
	}
	score += 0.3 * entityTerm

	if hasBoostType {
		score += 0.2
	}

	// Length signal: very short messages are acknowledgements, long ones
	// tend to carry substance.
	switch {
	case len(trimmed) < shortMessageLen:
		score -= 0.2
	case len(trimmed) > longMessageLen:
		score += 0.1
	}

	// Early turns usually carry introductions and framing.
	if s.turnIndex != nil && s.turnIndex(conversationID) <= earlyTurnCutoff {
		score += 0.05
	}

	return score
}
