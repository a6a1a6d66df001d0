package scores

import "time"

// Game statuses as the feed reports them.
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// GameScore is one result row from the feed. CompletedAt is absent until
// the game finishes.
type GameScore struct {
	ExternalID  string     `json:"external_id"`
	League      string     `json:"league"`
	Status      string     `json:"status"`
	HomeScore   int        `json:"home_score"`
	AwayScore   int        `json:"away_score"`
	CompletedAt *time.Time `json:"completed_at"`
}
