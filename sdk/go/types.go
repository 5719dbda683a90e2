package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ApplyResult mirrors the JSON response of a successful score update.
type ApplyResult struct {
	Actor     string `json:"actor_id"`
	NewScore  int64  `json:"new_score"`
	OldRank   int    `json:"old_rank"`
	NewRank   int    `json:"new_rank"`
	Remaining int    `json:"remaining"`
}

// Entry is one leaderboard row.
type Entry struct {
	Actor string `json:"actor_id"`
	Score int64  `json:"score"`
}

// Snapshot is the top-of-leaderboard view.
type Snapshot struct {
	Entries []Entry   `json:"entries"`
	Total   int       `json:"total"`
	TakenAt time.Time `json:"taken_at"`
}

// Position locates one actor on the leaderboard.
type Position struct {
	Actor string `json:"actor_id"`
	Rank  int    `json:"rank"`
	Score int64  `json:"score"`
	Total int    `json:"total"`
}

// Stats aggregates the whole board.
type Stats struct {
	Total  int     `json:"total"`
	Max    int64   `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Event mirrors the WebSocket event frames.
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Actor    string    `json:"actor_id,omitempty"`
	NewScore int64     `json:"new_score,omitempty"`
	OldRank  int       `json:"old_rank,omitempty"`
	NewRank  int       `json:"new_rank,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is the JSON error envelope returned by the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("request failed: status %d", resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyActorID is returned when the actor id is empty.
var ErrEmptyActorID = errors.New("actor id is required")
