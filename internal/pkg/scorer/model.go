package scorer

import "errors"

const DefaultRating = 1500.0

var (
	ErrScorecardsBucketNotFound = errors.New("scorecards bucket doesn't exist")
	ErrPlayerNotFound           = errors.New("player not found")
	ErrUnknownWinner            = errors.New("winner is not a player of the match")
)

// Scorecard is a player's standing across every decided match.
type Scorecard struct {
	Player string  `json:"player"`
	Rating float64 `json:"rating"`
	Count  int64   `json:"count"`
	Wins   int64   `json:"wins"`
	Losses int64   `json:"losses"`
	Ties   int64   `json:"ties"`
}

func NewScorecard(player string) Scorecard {
	return Scorecard{
		Player: player,
		Rating: DefaultRating,
	}
}
