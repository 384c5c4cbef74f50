package events_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/devtrail/devtrail-api/internal/events"
	"github.com/devtrail/devtrail-api/internal/models"
)

func TestNewReviewEventStampsFields(t *testing.T) {
	event := events.NewReviewEvent(3, 12, models.ReviewStatusCompleted)

	require.NotEmpty(t, event.ID)
	require.Equal(t, uint(3), event.ReviewID)
	require.Equal(t, uint(12), event.SubmissionID)
	require.Equal(t, models.ReviewStatusCompleted, event.Status)
	require.False(t, event.OccurredAt.IsZero())

	other := events.NewReviewEvent(3, 12, models.ReviewStatusCompleted)
	require.NotEqual(t, event.ID, other.ID)
}

func TestNATSPublisherNilConnIsNoop(t *testing.T) {
	publisher := events.NewNATSPublisher(nil, "", zerolog.Nop())
	event := events.NewReviewEvent(1, 2, models.ReviewStatusFailed)
	require.NoError(t, publisher.PublishReviewEvent(context.Background(), event))
}

func TestNopPublisher(t *testing.T) {
	publisher := events.NopPublisher{}
	require.NoError(t, publisher.PublishReviewEvent(context.Background(), events.ReviewEvent{}))
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	_, err := events.Connect("")
	require.Error(t, err)
}
