package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/janken/internal/pkg/events"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestChanSinkDropsWhenFull(t *testing.T) {
	t.Parallel()

	sink := make(events.ChanSink, 1)

	require.NoError(t, sink.Publish(t.Context(), events.Event{Type: events.MatchCreated, MatchID: 1}))

	err := sink.Publish(t.Context(), events.Event{Type: events.MatchJoined, MatchID: 1})
	require.ErrorIs(t, err, events.ErrSinkFull)

	event := <-sink
	assert.Equal(t, events.MatchCreated, event.Type)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := events.LogSink{Logger: zap.New(core)}

	err := sink.Publish(t.Context(), events.Event{
		Type:       events.MatchSettled,
		MatchID:    7,
		Attributes: map[string]string{"winner": "alice"},
		At:         time.Unix(0, 0),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage(events.MatchSettled).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].ContextMap()["winner"])
	assert.Equal(t, uint64(7), entries[0].ContextMap()["match_id"])
}

type failingSink struct{}

func (failingSink) Publish(context.Context, events.Event) error {
	return errors.New("unreachable")
}

func TestMultiPublishesToEverySink(t *testing.T) {
	t.Parallel()

	a := make(events.ChanSink, 1)
	b := make(events.ChanSink, 1)

	err := events.Multi{a, failingSink{}, b}.Publish(t.Context(), events.Event{Type: events.PayoutIssued})
	require.Error(t, err)

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}
