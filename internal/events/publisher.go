package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ReviewEvent announces a review lifecycle transition to interested
// consumers (UI notification fan-out, analytics).
type ReviewEvent struct {
	ID           string    `json:"id"`
	ReviewID     uint      `json:"review_id"`
	SubmissionID uint      `json:"submission_id"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher emits review lifecycle events. Publishing is best-effort for
// callers: the review pipeline never fails because an event could not be
// delivered.
type Publisher interface {
	PublishReviewEvent(ctx context.Context, event ReviewEvent) error
}

// NewReviewEvent stamps a fresh event for the given review transition.
func NewReviewEvent(reviewID, submissionID uint, status string) ReviewEvent {
	return ReviewEvent{
		ID:           uuid.NewString(),
		ReviewID:     reviewID,
		SubmissionID: submissionID,
		Status:       status,
		OccurredAt:   time.Now().UTC(),
	}
}

// Connect dials the NATS server at the given URL.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}

type natsPublisher struct {
	conn        *nats.Conn
	subjectBase string
	logger      zerolog.Logger
}

// NewNATSPublisher publishes review events on "<subjectBase>.<status>".
func NewNATSPublisher(conn *nats.Conn, subjectBase string, logger zerolog.Logger) Publisher {
	if subjectBase == "" {
		subjectBase = "reviews"
	}

	return &natsPublisher{
		conn:        conn,
		subjectBase: subjectBase,
		logger:      logger.With().Str("component", "review_event_publisher").Logger(),
	}
}

func (p *natsPublisher) PublishReviewEvent(_ context.Context, event ReviewEvent) error {
	if p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.subjectBase, event.Status)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}

	p.logger.Debug().Str("subject", subject).Uint("review_id", event.ReviewID).Msg("review event published")
	return nil
}

// NopPublisher discards events; used when NATS is not configured.
type NopPublisher struct{}

// PublishReviewEvent implements Publisher.
func (NopPublisher) PublishReviewEvent(context.Context, ReviewEvent) error {
	return nil
}
