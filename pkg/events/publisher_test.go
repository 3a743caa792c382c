package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"flyerportal/pkg/events"
	eventsmock "flyerportal/pkg/events/mock"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestPublishQuietlyStampsTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := eventsmock.NewMockPublisher(ctrl)

	pub.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e events.Event) error {
			require.Equal(t, events.SubjectFlyerCreated, e.Subject)
			require.False(t, e.OccurredAt.IsZero())
			return nil
		})

	events.PublishQuietly(context.Background(), pub, events.Event{Subject: events.SubjectFlyerCreated, Key: "f1"})
}

func TestPublishQuietlySwallowsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := eventsmock.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	require.NotPanics(t, func() {
		events.PublishQuietly(context.Background(), pub, events.Event{Subject: events.SubjectLotteryClaimed})
	})
	require.NotPanics(t, func() {
		events.PublishQuietly(context.Background(), nil, events.Event{Subject: events.SubjectLotteryClaimed})
	})
}

func TestEventMarshal(t *testing.T) {
	b, err := events.Event{Subject: "s", Key: "k", Payload: map[string]int{"n": 1}}.Marshal()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, "s", out["subject"])
	require.Equal(t, "k", out["key"])
	require.Equal(t, map[string]any{"n": float64(1)}, out["payload"])
}
