package rank

import (
	"context"

	"scoreboard/core"
)

// Entry represents a ranked score entry.
type Entry struct {
	Actor core.ActorID `json:"actor_id"`
	Score int64        `json:"score"`
}

// Board abstracts the ranked store: an ordered structure keyed by score
// descending with actor id as the uniqueness key. Implementations must be
// safe for concurrent readers and writers, and each Upsert must be atomic.
//
// Rank is 0-based and counts actors with strictly greater score, so actors
// tied on score share a rank number. Listing order among ties is ascending
// actor id.
type Board interface {
	Upsert(ctx context.Context, actor core.ActorID, score int64) error
	Remove(ctx context.Context, actor core.ActorID) error
	RankOf(ctx context.Context, actor core.ActorID) (rank int, ok bool, err error)
	ScoreOf(ctx context.Context, actor core.ActorID) (score int64, ok bool, err error)
	TopN(ctx context.Context, n int) ([]Entry, error)
	WindowAround(ctx context.Context, actor core.ActorID, radius int) ([]Entry, error)
	Count(ctx context.Context) (int, error)
}
