package common

import (
	"github.com/benbjohnson/clock"
	"github.com/samber/do/v2"
)

type ClockService struct {
	Clock clock.Clock
}

func NewClockService(_ do.Injector) (*ClockService, error) {
	return &ClockService{
		Clock: clock.New(),
	}, nil
}
