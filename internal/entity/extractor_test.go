package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter returns a canned response or error for the model pass.
type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

func findByType(entities []Entity, typ Type) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestExtract_NameAndEmployer(t *testing.T) {
	ex := NewExtractor(nil)
	entities := ex.Extract(context.Background(), "My name is Alice Johnson, I work at Acme Corp")

	persons := findByType(entities, TypePerson)
	require.NotEmpty(t, persons)
	assert.Equal(t, "Alice Johnson", persons[0].Canonical)
	assert.GreaterOrEqual(t, persons[0].Confidence, 0.9)

	foundAcme := false
	for _, e := range findByType(entities, TypeOrg) {
		if e.Canonical == "Acme Corp" {
			foundAcme = true
		}
	}
	require.True(t, foundAcme, "expected an ORG entity for Acme Corp")
}

func TestExtract_OrderedByStartOffset(t *testing.T) {
	ex := NewExtractor(nil)
	text := "I'm Bob, my email is Bob@Example.COM and I live in New York, call me on 2026-01-15"
	entities := ex.Extract(context.Background(), text)
	require.NotEmpty(t, entities)

	for i := 1; i < len(entities); i++ {
		assert.LessOrEqual(t, entities[i-1].Start, entities[i].Start)
	}
}

func TestExtract_SameGroupNeverOverlaps(t *testing.T) {
	ex := NewExtractor(nil)
	texts := []string{
		"My name is Alice Johnson, I work at Acme Corp",
		"Reach me at bob@example.com or +1 415 555 0100 tomorrow",
		"Actually I meant project Falcon Nine, not the old one",
	}
	for _, text := range texts {
		entities := ex.Extract(context.Background(), text)
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				a, b := entities[i], entities[j]
				if Compatible(a.Type, b.Type) {
					assert.False(t, a.Start < b.End && b.Start < a.End,
						"same-group overlap: %+v vs %+v in %q", a, b, text)
				}
			}
		}
	}
}

func TestExtract_EmailCanonicalLowercase(t *testing.T) {
	ex := NewExtractor(nil)
	entities := ex.Extract(context.Background(), "contact Bob.Smith@Example.COM please")
	emails := findByType(entities, TypeEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, "bob.smith@example.com", emails[0].Canonical)
}

func TestExtract_ConfidenceThresholdAndCap(t *testing.T) {
	ex := NewExtractor(nil, WithThreshold(0.92), WithMaxEntities(1))
	entities := ex.Extract(context.Background(), "My name is Alice Johnson, I work at Acme Corp on 2026-01-15")
	require.Len(t, entities, 1)
	assert.GreaterOrEqual(t, entities[0].Confidence, 0.92)
}

func TestExtract_ModelPassMergesWithPatternPass(t *testing.T) {
	// Model reports the same person at lower confidence plus a product the
	// patterns cannot see.
	completer := &fakeCompleter{response: `Here you go:
[
  {"text": "Alice Johnson", "type": "PERSON", "confidence": 0.6, "start": 11, "end": 24},
  {"text": "widgetizer", "type": "PRODUCT", "confidence": 1.7, "start": 999, "end": 1200}
]`}
	ex := NewExtractor(completer)
	text := "My name is Alice Johnson and I love the widgetizer"
	entities := ex.Extract(context.Background(), text)

	persons := findByType(entities, TypePerson)
	require.NotEmpty(t, persons)
	// Pattern-pass confidence wins the merge.
	assert.GreaterOrEqual(t, persons[0].Confidence, 0.9)

	products := findByType(entities, TypeProduct)
	require.Len(t, products, 1)
	// Confidence clamped to 1; bad offsets re-anchored by substring search.
	assert.Equal(t, 1.0, products[0].Confidence)
	assert.Equal(t, "widgetizer", text[products[0].Start:products[0].End])
}

func TestExtract_ModelPassDropsMalformedEntities(t *testing.T) {
	completer := &fakeCompleter{response: `[
  {"type": "PERSON", "confidence": 0.9},
  {"text": "thing", "confidence": 0.9},
  {"text": "thing", "type": "NOT_A_TYPE", "confidence": 0.9},
  {"text": "thing", "type": "PRODUCT"}
]`}
	ex := NewExtractor(completer)
	entities := ex.Extract(context.Background(), "a thing happened")
	assert.Empty(t, entities)
}

func TestExtract_ModelFailureContributesNothing(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream timeout")}
	ex := NewExtractor(completer)
	entities := ex.Extract(context.Background(), "My name is Alice Johnson")

	persons := findByType(entities, TypePerson)
	require.NotEmpty(t, persons)
}

func TestExtract_ModelGarbageContributesNothing(t *testing.T) {
	completer := &fakeCompleter{response: "I could not find any entities, sorry!"}
	ex := NewExtractor(completer)
	entities := ex.Extract(context.Background(), "My name is Alice Johnson")
	require.NotEmpty(t, findByType(entities, TypePerson))
}

func TestExtract_EmptyText(t *testing.T) {
	ex := NewExtractor(nil)
	assert.Nil(t, ex.Extract(context.Background(), ""))
	assert.Nil(t, ex.Extract(context.Background(), "   \n"))
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "Alice Johnson", Canonicalize(TypePerson, "alice johnson"))
	assert.Equal(t, "Bank of America", Canonicalize(TypeOrg, "bank OF america"))
	assert.Equal(t, "a@b.com", Canonicalize(TypeEmail, "A@B.COM"))
	assert.Equal(t, "next week", Canonicalize(TypeDate, "next week"))
}

func TestCompatibleGroups(t *testing.T) {
	assert.True(t, Compatible(TypeOrg, TypeProduct))
	assert.True(t, Compatible(TypePreference, TypeCorrection))
	assert.True(t, Compatible(TypeEmail, TypePhone))
	assert.False(t, Compatible(TypePerson, TypeOrg))
	assert.False(t, Compatible(TypeDate, TypePhone))
}
