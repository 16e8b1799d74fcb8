// Package game holds the types shared by the progression rule engines:
// the error taxonomy and the identifiers that every engine speaks.
package game

import "errors"

// Kind classifies a rule failure so callers can pick a response without
// matching on individual errors.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStateConflict
	KindPolicyViolation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindPolicyViolation:
		return "policy_violation"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is an expected rule outcome. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// ---- Sentinel Errors ----

var (
	// Validation
	ErrInvalidAmount       = newError(KindValidation, "invalid_amount", "Amount must be a positive number")
	ErrInvalidCategory     = newError(KindValidation, "invalid_category", "Unknown stat category")
	ErrInvalidStreakKind   = newError(KindValidation, "invalid_streak_kind", "Unknown activity kind")
	ErrStaleActivity       = newError(KindValidation, "stale_activity", "Activity is older than the last recorded activity")
	ErrInvalidActivityTime = newError(KindValidation, "invalid_activity_time", "Activity time must be set and not in the future")

	// Not found
	ErrSkillNotFound     = newError(KindNotFound, "skill_not_found", "That skill does not exist")
	ErrQuestNotFound     = newError(KindNotFound, "quest_not_found", "That quest does not exist")
	ErrObjectiveNotFound = newError(KindNotFound, "objective_not_found", "That quest objective does not exist")
	ErrMilestoneNotFound = newError(KindNotFound, "milestone_not_found", "That milestone does not exist")

	// State conflicts
	ErrAlreadyUnlocked    = newError(KindStateConflict, "already_unlocked", "You already unlocked this skill")
	ErrAlreadyInProgress  = newError(KindStateConflict, "already_in_progress", "You already have an active quest")
	ErrQuestNotAvailable  = newError(KindStateConflict, "quest_not_available", "This quest is not available to start")
	ErrQuestNotInProgress = newError(KindStateConflict, "quest_not_in_progress", "This quest is not in progress")
	ErrQuestNotRetryable  = newError(KindStateConflict, "quest_not_retryable", "This quest can only be attempted once")
	ErrAlreadyClaimed     = newError(KindStateConflict, "already_claimed", "You already claimed today's bonus")
	ErrConcurrentUpdate   = newError(KindStateConflict, "concurrent_update", "Your progress changed while saving, please try again")

	// Policy violations
	ErrInsufficientPoints  = newError(KindPolicyViolation, "insufficient_points", "Not enough skill points")
	ErrPrerequisitesNotMet = newError(KindPolicyViolation, "prerequisites_not_met", "Unlock the required skills first")
	ErrQuestLocked         = newError(KindPolicyViolation, "quest_prerequisites_not_met", "Complete the required quests first")
	ErrNothingToReset      = newError(KindPolicyViolation, "nothing_to_reset", "You have not spent any skill points yet")
	ErrInsufficientFunds   = newError(KindPolicyViolation, "insufficient_funds", "Not enough XP to buy a streak freeze")
	ErrFreezeCapReached    = newError(KindPolicyViolation, "freeze_cap_reached", "You already hold the maximum number of streak freezes")
	ErrNotEligible         = newError(KindPolicyViolation, "prestige_not_eligible", "Reach the maximum level to prestige")
)

// KindOf returns the Kind of err, or KindInternal when err is not a rule error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// AsError unwraps err into a rule error if it is one.
func AsError(err error) (*Error, bool) {
	var ge *Error
	ok := errors.As(err, &ge)
	return ge, ok
}
