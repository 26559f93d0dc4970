// Package notify persists user notifications and hands them to the realtime relay.
//
// Delivery is best effort: a notification is always stored, then an envelope is either
// queued as a background job or published straight to the relay's Redis channel. Failures
// past the database write are logged and dropped.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bell24h/internal/domain"
)

// Envelope is what travels from the API to the relay. UserID 0 means topic-only.
type Envelope struct {
	UserID       uint                `json:"user_id,omitempty"`
	Topic        string              `json:"topic,omitempty"`
	Notification domain.Notification `json:"notification"`
}

// RFQTopic names the relay topic of an RFQ
func RFQTopic(rfqID uint) string {
	return "rfq:" + strconv.FormatUint(uint64(rfqID), 10)
}

// Message is a notification to create for one user
type Message struct {
	UserID  uint
	Type    string
	Title   string
	Message string
	RFQID   *uint
}

// Notifier creates and delivers notifications
type Notifier interface {
	Notify(ctx context.Context, msg Message) (*domain.Notification, error)
}

// Broadcaster pushes transient notifications to the subscribers of a relay topic
type Broadcaster interface {
	Broadcast(ctx context.Context, topic string, n domain.Notification)
}

// Publisher pushes envelopes to the relay
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Enqueuer schedules envelope delivery as a background job
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, env Envelope) error
}

// Service is the database-backed Notifier
type Service struct {
	db        *gorm.DB
	publisher Publisher
	enqueuer  Enqueuer
}

// NewService creates a notifier. enqueuer may be nil, in which case envelopes are published directly.
func NewService(db *gorm.DB, publisher Publisher, enqueuer Enqueuer) *Service {
	return &Service{db: db, publisher: publisher, enqueuer: enqueuer}
}

// Notify stores the notification and delivers it to the user's live connections only.
// Topic subscribers get a separate neutral event through Broadcast.
func (s *Service) Notify(ctx context.Context, msg Message) (*domain.Notification, error) {
	n := &domain.Notification{
		UserID:  msg.UserID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Message,
		RFQID:   msg.RFQID,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	s.Deliver(ctx, Envelope{UserID: msg.UserID, Notification: *n})
	return n, nil
}

// Broadcast delivers an unsaved notification to the subscribers of topic only
func (s *Service) Broadcast(ctx context.Context, topic string, n domain.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.Deliver(ctx, Envelope{Topic: topic, Notification: n})
}

// Deliver hands an envelope to the job queue, falling back to a direct publish
func (s *Service) Deliver(ctx context.Context, env Envelope) {
	fields := logrus.Fields{"user_id": env.UserID, "topic": env.Topic, "type": env.Notification.Type}
	if s.enqueuer != nil {
		err := s.enqueuer.EnqueueDelivery(ctx, env)
		if err == nil {
			return
		}
		logrus.WithFields(fields).WithError(err).Warn("Notification enqueue failed, publishing directly")
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		logrus.WithFields(fields).WithError(err).Warn("Notification publish failed")
	}
}
