package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/do/v2"
	"github.com/valkey-io/valkey-go"
	"github.com/vreid/janken/internal/pkg/common"
	"go.uber.org/zap"
)

type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Publish(_ context.Context, event Event) error {
	fields := make([]zap.Field, 0, len(event.Attributes)+2)
	fields = append(fields, zap.Uint64("match_id", event.MatchID), zap.Time("at", event.At))

	for k, v := range event.Attributes {
		fields = append(fields, zap.String(k, v))
	}

	s.Logger.Info(event.Type, fields...)

	return nil
}

// ChanSink hands events to a buffered channel and never blocks.
type ChanSink chan Event

func (s ChanSink) Publish(_ context.Context, event Event) error {
	select {
	case s <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s for match %d", ErrSinkFull, event.Type, event.MatchID)
	}
}

type ValkeySink struct {
	client  valkey.Client
	channel string
}

func NewValkeySink(addr, channel string) (*ValkeySink, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", addr, err)
	}

	return &ValkeySink{
		client:  client,
		channel: channel,
	}, nil
}

func (s *ValkeySink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	cmd := s.client.B().Publish().Channel(s.channel).Message(string(data)).Build()

	err = s.client.Do(ctx, cmd).Error()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	return nil
}

func (s *ValkeySink) Close() {
	s.client.Close()
}

type Multi []Sink

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error

	for _, sink := range m {
		err := sink.Publish(ctx, event)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

type EventsService struct {
	Sink Sink

	valkey *ValkeySink
}

func NewEventsService(i do.Injector) (*EventsService, error) {
	loggerService := do.MustInvoke[*common.LoggerService](i)
	valkeyAddr := do.MustInvokeNamed[string](i, "valkey-addr")
	valkeyChannel := do.MustInvokeNamed[string](i, "valkey-channel")
	eventSink := do.MustInvokeNamed[ChanSink](i, "event-sink")

	sinks := Multi{
		LogSink{Logger: loggerService.Logger.Named("events")},
		eventSink,
	}

	result := &EventsService{}

	if valkeyAddr != "" {
		valkeySink, err := NewValkeySink(valkeyAddr, valkeyChannel)
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, valkeySink)
		result.valkey = valkeySink
	}

	result.Sink = sinks

	return result, nil
}

func (s *EventsService) Shutdown() error {
	if s.valkey != nil {
		s.valkey.Close()
	}

	return nil
}
