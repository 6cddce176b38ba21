package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/recallhq/recall/internal/provider"
)

const (
	// DefaultThreshold is the minimum confidence kept in the final list.
	DefaultThreshold = 0.7
	// DefaultMaxEntities caps the final list.
	DefaultMaxEntities = 20

	// contextWindow is how many characters around a span are kept as context.
	contextWindow = 30
	// noiseWidth is the span length at or below which confidence is halved.
	noiseWidth = 2
)

// Extractor runs the pattern pass and the model-assisted pass and resolves
// their union into a final entity list. A nil completer disables the model
// pass; any model failure contributes nothing and is never surfaced.
type Extractor struct {
	completer   provider.Completer
	threshold   float64
	maxEntities int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithThreshold overrides the minimum kept confidence.
func WithThreshold(t float64) Option {
	return func(e *Extractor) { e.threshold = t }
}

// WithMaxEntities overrides the final list cap.
func WithMaxEntities(n int) Option {
	return func(e *Extractor) { e.maxEntities = n }
}

// NewExtractor creates an Extractor. completer may be nil.
func NewExtractor(completer provider.Completer, opts ...Option) *Extractor {
	e := &Extractor{
		completer:   completer,
		threshold:   DefaultThreshold,
		maxEntities: DefaultMaxEntities,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the entities found in text, ordered by start offset, with
// no two same-group entities overlapping.
func (e *Extractor) Extract(ctx context.Context, text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	candidates := patternPass(text)
	candidates = append(candidates, e.modelPass(ctx, text)...)

	kept := resolveOverlaps(candidates)

	// Highest confidence first so the cap keeps the strongest entities.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].Start < kept[j].Start
	})

	final := make([]Entity, 0, len(kept))
	for _, ent := range kept {
		if ent.Confidence < e.threshold {
			continue
		}
		ent.Canonical = Canonicalize(ent.Type, ent.Text)
		ent.Context = surrounding(text, ent.Start, ent.End)
		final = append(final, ent)
		if len(final) == e.maxEntities {
			break
		}
	}

	sort.SliceStable(final, func(i, j int) bool { return final[i].Start < final[j].Start })
	return final
}

// patternPass applies the static pattern table.
func patternPass(text string) []Entity {
	var candidates []Entity
	for _, tp := range patternTable {
		for _, p := range tp.patterns {
			for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
				start, end := idx[2*p.group], idx[2*p.group+1]
				if start < 0 || end <= start {
					continue
				}
				span := strings.TrimSpace(text[start:end])
				if span == "" {
					continue
				}
				conf := p.confidence
				if end-start <= noiseWidth {
					conf /= 2
				}
				candidates = append(candidates, Entity{
					Text:       text[start:end],
					Type:       tp.typ,
					Confidence: conf,
					Start:      start,
					End:        end,
				})
			}
		}
	}
	return candidates
}

const modelPassPrompt = `Extract named entities from the message below.
Respond with only a JSON array. Each element must be an object
{"text": string, "type": string, "confidence": number, "start": int, "end": int}
where confidence is in [0,1], start/end are byte offsets into the message, and
type is one of PERSON, ORG, PRODUCT, DATE, PREFERENCE, CORRECTION, LOCATION,
EMAIL, PHONE, PROJECT.

Message:
%s`

// modelEntity mirrors the requested schema with pointers so missing fields
// are detectable.
type modelEntity struct {
	Text       *string  `json:"text"`
	Type       *string  `json:"type"`
	Confidence *float64 `json:"confidence"`
	Start      *int     `json:"start"`
	End        *int     `json:"end"`
}

// modelPass runs the single bounded model call. Every failure mode yields an
// empty contribution.
func (e *Extractor) modelPass(ctx context.Context, text string) []Entity {
	if e.completer == nil {
		return nil
	}

	raw, err := e.completer.Complete(ctx, fmt.Sprintf(modelPassPrompt, text))
	if err != nil {
		slog.Warn("entity: model pass failed", "error", err)
		return nil
	}

	parsed, err := parseModelEntities(raw)
	if err != nil {
		slog.Warn("entity: model pass returned unparseable output", "error", err)
		return nil
	}

	var out []Entity
	for _, me := range parsed {
		if me.Text == nil || me.Type == nil || me.Confidence == nil {
			continue
		}
		typ := Type(strings.ToUpper(*me.Type))
		if !ValidType(typ) {
			continue
		}
		span := strings.TrimSpace(*me.Text)
		if span == "" {
			continue
		}
		conf := clamp01(*me.Confidence)

		start, end, ok := anchorOffsets(text, span, me.Start, me.End)
		if !ok {
			continue
		}
		out = append(out, Entity{
			Text:       span,
			Type:       typ,
			Confidence: conf,
			Start:      start,
			End:        end,
		})
	}
	return out
}

// parseModelEntities pulls the outermost JSON array from the response,
// tolerating code fences and prose around it.
func parseModelEntities(raw string) ([]modelEntity, error) {
	open := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if open < 0 || end <= open {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var parsed []modelEntity
	if err := json.Unmarshal([]byte(raw[open:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("decoding entity array: %w", err)
	}
	return parsed, nil
}

// anchorOffsets validates the claimed offsets against the source text. When
// they do not reproduce the span, a case-insensitive substring search
// recomputes them; if that also fails, the claimed offsets are kept clamped
// into range as best-effort. Entities with neither offsets nor a findable
// span are dropped.
func anchorOffsets(text, span string, start, end *int) (int, int, bool) {
	if start != nil && end != nil {
		s, en := *start, *end
		if s >= 0 && en > s && en <= len(text) && strings.EqualFold(text[s:en], span) {
			return s, en, true
		}
	}

	if i := strings.Index(strings.ToLower(text), strings.ToLower(span)); i >= 0 {
		return i, i + len(span), true
	}

	if start != nil && end != nil {
		s := clampInt(*start, 0, len(text))
		en := clampInt(*end, s, len(text))
		if en > s {
			return s, en, true
		}
	}
	return 0, 0, false
}

// resolveOverlaps scans candidates left-to-right by start offset, merging
// overlapping candidates of the same compatibility group down to the
// higher-confidence one. Incompatible overlaps are both retained.
func resolveOverlaps(candidates []Entity) []Entity {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Start != candidates[j].Start {
			return candidates[i].Start < candidates[j].Start
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})

	var kept []Entity
	for _, cand := range candidates {
		merged := false
		for i := range kept {
			if !overlaps(kept[i], cand) || !Compatible(kept[i].Type, cand.Type) {
				continue
			}
			if cand.Confidence > kept[i].Confidence {
				kept[i] = cand
			}
			merged = true
			break
		}
		if !merged {
			kept = append(kept, cand)
		}
	}
	return kept
}

func overlaps(a, b Entity) bool {
	return a.Start < b.End && b.Start < a.End
}

func surrounding(text string, start, end int) string {
	s := clampInt(start-contextWindow, 0, len(text))
	e := clampInt(end+contextWindow, 0, len(text))
	return text[s:e]
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
