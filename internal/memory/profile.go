package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/recallhq/recall/internal/entity"
	"github.com/recallhq/recall/internal/metrics"
	"github.com/recallhq/recall/internal/nats"
)

// buildProfileDelta distills one user chunk into a profile merge step.
// PERSON entities in an identity-sharing message set the name; PREFERENCE
// entities become keyed preferences; PRODUCT and PROJECT entities feed the
// interest set; correction chunks append their content verbatim.
func buildProfileDelta(event nats.ProfileUpdateEvent) *ProfileDelta {
	delta := &ProfileDelta{UserID: event.UserID}

	identity := identityPhrases.MatchString(event.Content)
	for _, e := range event.Entities {
		switch e.Type {
		case entity.TypePerson:
			if identity && delta.Name == "" {
				delta.Name = e.Canonical
			}
		case entity.TypePreference:
			if delta.Preferences == nil {
				delta.Preferences = map[string]string{}
			}
			key := strings.ToLower(e.Canonical)
			delta.Preferences[key] = e.Context
		case entity.TypeProduct, entity.TypeProject:
			delta.Interests = append(delta.Interests, e.Canonical)
		}
	}

	if event.ChunkType == string(ChunkTypeCorrection) {
		delta.Corrections = append(delta.Corrections, event.Content)
	}

	return delta
}

// FoldProfile merges one chunk's profile delta into the durable profile.
// The profile row is created on first contact, so even a delta with no
// extracted facts establishes the user.
func (m *Manager) FoldProfile(ctx context.Context, event nats.ProfileUpdateEvent) error {
	delta := buildProfileDelta(event)
	if err := m.store.UpsertProfile(ctx, delta); err != nil {
		metrics.ProfileFoldsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("folding profile for user %s: %w", event.UserID, err)
	}
	metrics.ProfileFoldsTotal.WithLabelValues("ok").Inc()
	return nil
}
