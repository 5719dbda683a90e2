package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventPersonalScoreChanged EventType = "personal_score_changed"
	EventLeaderboardChanged   EventType = "leaderboard_changed"
)

// Event represents an immutable domain event.
type Event struct {
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	Actor    ActorID   `json:"actor_id,omitempty"`
	NewScore int64     `json:"new_score,omitempty"`
	OldRank  int       `json:"old_rank,omitempty"`
	NewRank  int       `json:"new_rank,omitempty"`
}

func NewPersonalScoreChanged(actor ActorID, newScore int64, oldRank, newRank int) Event {
	return Event{Type: EventPersonalScoreChanged, Time: time.Now().UTC(), Actor: actor, NewScore: newScore, OldRank: oldRank, NewRank: newRank}
}

func NewLeaderboardChanged() Event {
	return Event{Type: EventLeaderboardChanged, Time: time.Now().UTC()}
}
