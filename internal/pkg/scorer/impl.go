package scorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/janken/internal/pkg/common"
	"github.com/vreid/janken/internal/pkg/events"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

type ScorerService struct {
	DatabaseService *common.DatabaseService
	Logger          *zap.Logger

	EventSource <-chan events.Event
}

func NewScorerService(i do.Injector) (*ScorerService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	loggerService := do.MustInvoke[*common.LoggerService](i)
	eventSource := do.MustInvokeNamed[<-chan events.Event](i, "event-source")

	result := &ScorerService{
		DatabaseService: databaseService,
		Logger:          loggerService.Logger.Named("scorer"),

		EventSource: eventSource,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Register)

	return result, nil
}

func (s *ScorerService) Register(e *echo.Echo) {
	e.GET("/api/players/:player", s.GetScorecard)
}

func (s *ScorerService) Start() {
	go s.processEvents()
}

func GetKFactor(gamesPlayed int64) float64 {
	if gamesPlayed <= 20 {
		return 128.0
	}

	if gamesPlayed <= 50 {
		return 64.0
	}

	return 32.0
}

func CalculateExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// UpdateRatings applies one result between a and b, where scoreA is 1 for a
// win by a, 0.5 for a tie and 0 for a loss.
func UpdateRatings(a, b Scorecard, scoreA float64) (Scorecard, Scorecard) {
	expectedA := CalculateExpectedScore(a.Rating, b.Rating)

	k := (GetKFactor(a.Count) + GetKFactor(b.Count)) / 2.0

	a.Rating += k * (scoreA - expectedA)
	b.Rating += k * ((1.0 - scoreA) - (1.0 - expectedA))

	a.Count++
	b.Count++

	switch scoreA {
	case 1.0:
		a.Wins++
		b.Losses++
	case 0.0:
		a.Losses++
		b.Wins++
	default:
		a.Ties++
		b.Ties++
	}

	return a, b
}

// HandleEvent rates the players of a revealed or timed-out match.
// Cancelled matches had no opponent and are ignored.
func (s *ScorerService) HandleEvent(event events.Event) error {
	if event.Type != events.MatchSettled && event.Type != events.MatchTimedOut {
		return nil
	}

	initiator := event.Attributes["initiator"]
	opponent := event.Attributes["opponent"]

	if initiator == "" || opponent == "" {
		return nil
	}

	// a tie carries no winner attribute
	scoreInitiator := 0.5

	if winner, ok := event.Attributes["winner"]; ok {
		switch winner {
		case initiator:
			scoreInitiator = 1.0
		case opponent:
			scoreInitiator = 0.0
		default:
			return fmt.Errorf("%w: %q in match %d", ErrUnknownWinner, winner, event.MatchID)
		}
	}

	err := s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(common.ScorerCardsBucket))
		if bucket == nil {
			return ErrScorecardsBucketNotFound
		}

		a, err := loadScorecard(bucket, initiator)
		if err != nil {
			return err
		}

		b, err := loadScorecard(bucket, opponent)
		if err != nil {
			return err
		}

		a, b = UpdateRatings(a, b, scoreInitiator)

		err = storeScorecard(bucket, a)
		if err != nil {
			return err
		}

		return storeScorecard(bucket, b)
	})
	if err != nil {
		return fmt.Errorf("failed to score match %d: %w", event.MatchID, err)
	}

	return nil
}

func (s *ScorerService) Scorecard(player string) (Scorecard, error) {
	var result Scorecard

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(common.ScorerCardsBucket))
		if bucket == nil {
			return ErrScorecardsBucketNotFound
		}

		if bucket.Get([]byte(player)) == nil {
			return ErrPlayerNotFound
		}

		var err error

		result, err = loadScorecard(bucket, player)

		return err
	})

	return result, err
}

func (s *ScorerService) GetScorecard(c echo.Context) error {
	scorecard, err := s.Scorecard(c.Param("player"))
	if errors.Is(err, ErrPlayerNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load scorecard").SetInternal(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, scorecard)
}

func loadScorecard(bucket *bbolt.Bucket, player string) (Scorecard, error) {
	data := bucket.Get([]byte(player))
	if data == nil {
		return NewScorecard(player), nil
	}

	var result Scorecard

	err := json.Unmarshal(data, &result)
	if err != nil {
		return result, fmt.Errorf("failed to decode scorecard of %s: %w", player, err)
	}

	return result, nil
}

func storeScorecard(bucket *bbolt.Bucket, scorecard Scorecard) error {
	data, err := json.Marshal(scorecard)
	if err != nil {
		return fmt.Errorf("failed to encode scorecard: %w", err)
	}

	err = bucket.Put([]byte(scorecard.Player), data)
	if err != nil {
		return fmt.Errorf("failed to put scorecard of %s: %w", scorecard.Player, err)
	}

	return nil
}

func (s *ScorerService) processEvents() {
	for event := range s.EventSource {
		err := s.HandleEvent(event)
		if err != nil {
			s.Logger.Error("failed to handle event", zap.String("type", event.Type), zap.Error(err))
		}
	}
}
