// Package entity extracts typed entity spans from conversational text. Two
// independent passes (a static pattern table and one bounded model call)
// produce candidates that are unioned, overlap-resolved, filtered and
// canonicalized.
package entity

import "strings"

// Type is an entity category.
type Type string

const (
	TypePerson     Type = "PERSON"
	TypeOrg        Type = "ORG"
	TypeProduct    Type = "PRODUCT"
	TypeDate       Type = "DATE"
	TypePreference Type = "PREFERENCE"
	TypeCorrection Type = "CORRECTION"
	TypeLocation   Type = "LOCATION"
	TypeEmail      Type = "EMAIL"
	TypePhone      Type = "PHONE"
	TypeProject    Type = "PROJECT"
)

// Entity is a typed span of source text.
type Entity struct {
	Text       string  `json:"text"`
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Canonical  string  `json:"canonical"`
	Context    string  `json:"context,omitempty"`
}

// compatibilityGroups partitions types into merge groups: overlapping
// candidates are collapsed (keeping the higher confidence) only when their
// types share a group.
var compatibilityGroups = map[Type]int{
	TypePerson:     0,
	TypeOrg:        1,
	TypeProduct:    1,
	TypeDate:       2,
	TypePreference: 3,
	TypeCorrection: 3,
	TypeEmail:      4,
	TypePhone:      4,
	TypeLocation:   5,
	TypeProject:    6,
}

// Compatible reports whether two types belong to the same merge group.
func Compatible(a, b Type) bool {
	ga, ok1 := compatibilityGroups[a]
	gb, ok2 := compatibilityGroups[b]
	return ok1 && ok2 && ga == gb
}

// ValidType reports whether t is a known entity type.
func ValidType(t Type) bool {
	_, ok := compatibilityGroups[t]
	return ok
}

// orgMinorWords stay lower-cased inside canonical ORG names unless leading.
var orgMinorWords = map[string]bool{
	"of": true, "the": true, "and": true, "for": true, "in": true, "at": true,
}

// Canonicalize returns the canonical form for a span of the given type:
// PERSON and ORG are title-cased per word (ORG keeps minor words lowered),
// EMAIL is lower-cased, everything else passes through.
func Canonicalize(typ Type, text string) string {
	switch typ {
	case TypePerson:
		return titleCase(text, nil)
	case TypeOrg:
		return titleCase(text, orgMinorWords)
	case TypeEmail:
		return strings.ToLower(text)
	default:
		return text
	}
}

func titleCase(s string, minor map[string]bool) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && minor[lower] {
			words[i] = lower
			continue
		}
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(words, " ")
}
