package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ActorID uniquely identifies a score-holding actor.
type ActorID string

// ActionKind names a score-changing action. Tokens are bound to exactly one kind.
type ActionKind string

const (
	ActionPrimaryComplete   ActionKind = "primary-action-complete"
	ActionSubGoalComplete   ActionKind = "sub-goal-complete"
	ActionAchievementUnlock ActionKind = "achievement-unlock"
	ActionBonusCollect      ActionKind = "bonus-collect"
	ActionPeriodicCheckin   ActionKind = "periodic-checkin"
)

// ActionKinds lists every recognized action kind.
var ActionKinds = []ActionKind{
	ActionPrimaryComplete,
	ActionSubGoalComplete,
	ActionAchievementUnlock,
	ActionBonusCollect,
	ActionPeriodicCheckin,
}

// KnownActionKind reports whether k belongs to the fixed action kind set.
func KnownActionKind(k ActionKind) bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ActorScore is the durable record of one actor's current score.
// Scores never go negative; a delta that would underflow is rejected upstream.
type ActorScore struct {
	Actor   ActorID   `json:"actor_id"`
	Score   int64     `json:"score"`
	Updated time.Time `json:"updated"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeActorID trims and lowercases actor identifiers.
func NormalizeActorID(id ActorID) (ActorID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty actor id")
	}
	return ActorID(strings.ToLower(s)), nil
}

// ValidateNonce ensures a non-empty nonce with a simple charset check.
func ValidateNonce(nonce string) error {
	s := strings.TrimSpace(nonce)
	if s == "" {
		return errors.New("empty nonce")
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid nonce")
	}
	return nil
}
