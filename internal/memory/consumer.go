package memory

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/recallhq/recall/internal/nats"
)

// ProfileConsumer listens on the profile update subject and folds each
// event into the durable user profile.
type ProfileConsumer struct {
	manager     *Manager
	consumerMgr *inats.ConsumerManager
}

// NewProfileConsumer creates a new ProfileConsumer.
func NewProfileConsumer(manager *Manager, consumerMgr *inats.ConsumerManager) *ProfileConsumer {
	return &ProfileConsumer{
		manager:     manager,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *ProfileConsumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "profile-folder", inats.SubjectProfileUpdate)
	if err != nil {
		return err
	}

	slog.Info("profile consumer started", "consumer", "profile-folder")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("profile consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *ProfileConsumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.ProfileUpdateEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("profile consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	if err := c.manager.FoldProfile(ctx, event); err != nil {
		slog.Error("profile consumer: folding profile", "error", err, "user_id", event.UserID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("profile consumer: folded event",
		"chunk_id", event.ChunkID,
		"user_id", event.UserID,
	)
}
