package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bell24h/internal/domain"
	"bell24h/internal/notify"
)

// HandleNotificationDeliver publishes queued envelopes to the relay channel
func HandleNotificationDeliver(publisher notify.Publisher) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var env notify.Envelope
		if err := json.Unmarshal(t.Payload(), &env); err != nil {
			return fmt.Errorf("decode envelope: %v: %w", err, asynq.SkipRetry)
		}
		return publisher.Publish(ctx, env)
	}
}

// ExpireOverdueRFQs marks every open RFQ whose deadline has passed as expired and
// returns the affected RFQs.
func ExpireOverdueRFQs(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.RFQ, error) {
	var overdue []domain.RFQ
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND deadline < ?", domain.RFQOpen, now).Find(&overdue).Error; err != nil {
			return err
		}
		if len(overdue) == 0 {
			return nil
		}
		ids := make([]uint, len(overdue))
		for i, r := range overdue {
			ids[i] = r.ID
		}
		return tx.Model(&domain.RFQ{}).
			Where("id IN ? AND status = ?", ids, domain.RFQOpen).
			Update("status", domain.RFQExpired).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range overdue {
		overdue[i].Status = domain.RFQExpired
	}
	return overdue, nil
}

// HandleRFQExpire expires overdue RFQs, tells each buyer and posts a neutral event on the RFQ topic
func HandleRFQExpire(db *gorm.DB, notifier notify.Notifier, broadcaster notify.Broadcaster) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		expired, err := ExpireOverdueRFQs(ctx, db, time.Now())
		if err != nil {
			return err
		}
		for _, r := range expired {
			rfqID := r.ID
			if _, err := notifier.Notify(ctx, notify.Message{
				UserID:  r.BuyerID,
				Type:    domain.NotifyRFQExpired,
				Title:   "RFQ expired",
				Message: fmt.Sprintf("%s (%s) passed its deadline and no longer accepts quotes", r.Title, r.Reference),
				RFQID:   &rfqID,
			}); err != nil {
				logrus.WithError(err).WithField("rfq_id", r.ID).Warn("Failed to notify RFQ expiry")
			}
			broadcaster.Broadcast(ctx, notify.RFQTopic(rfqID), domain.Notification{
				Type:    domain.NotifyRFQExpired,
				Title:   "RFQ expired",
				Message: r.Reference + " no longer accepts quotes",
				RFQID:   &rfqID,
			})
		}
		logrus.WithField("expired", len(expired)).Info("RFQ expiry sweep finished")
		return nil
	}
}
