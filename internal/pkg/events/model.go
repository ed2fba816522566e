package events

import (
	"context"
	"errors"
	"time"
)

const (
	MatchCreated   = "matchCreated"
	MatchJoined    = "matchJoined"
	MatchSettled   = "matchSettled"
	MatchCancelled = "matchCancelled"
	MatchTimedOut  = "matchTimedOut"
	PayoutIssued   = "payoutIssued"
	PayoutFailed   = "payoutFailed"
)

var ErrSinkFull = errors.New("event sink full")

type Event struct {
	Type       string            `json:"type"`
	MatchID    uint64            `json:"match_id"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at"`
}

// Sink receives events after the state change they describe has been committed.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
