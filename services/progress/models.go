package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tier is one of the three indexing priority groups. Tiers complete
// independently but the backend reports all of them in a single batch.
type Tier string

const (
	TierFast   Tier = "fast"
	TierMedium Tier = "medium"
	TierSlow   Tier = "slow"
)

// tierOrder fixes the order transitions are applied in when several tiers
// change within one poll, keeping downstream triggering deterministic.
var tierOrder = []Tier{TierFast, TierMedium, TierSlow}

// Tiers returns the tiers in their fixed reporting order.
func Tiers() []Tier {
	return append([]Tier(nil), tierOrder...)
}

type TierStatus string

const (
	TierPending   TierStatus = "pending"
	TierRunning   TierStatus = "running"
	TierCompleted TierStatus = "completed"
	TierError     TierStatus = "error"
)

type OverallStatus string

const (
	OverallIdle      OverallStatus = "idle"
	OverallRunning   OverallStatus = "running"
	OverallCompleted OverallStatus = "completed"
	OverallError     OverallStatus = "error"
)

// Report is one atomic backend status batch: every tier's status in a single
// poll response.
type Report struct {
	Status       OverallStatus       `json:"status"`
	GroupStatus  map[Tier]TierStatus `json:"group_status"`
	CurrentGroup Tier                `json:"current_group,omitempty"`
}

// StatusSource supplies backend index-build status reports.
type StatusSource interface {
	IndexStatus(ctx context.Context) (Report, error)
}

// Transition records a single tier's status change between two polls.
type Transition struct {
	Tier     Tier
	Previous TierStatus
	New      TierStatus
}

// TierSnapshot is a tier's last-known state as seen by callers.
type TierSnapshot struct {
	Status      TierStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at,omitzero"`
	CompletedAt time.Time  `json:"completed_at,omitzero"`
}

// Snapshot is the tracker's externally visible state.
type Snapshot struct {
	Overall        OverallStatus         `json:"overall"`
	Tiers          map[Tier]TierSnapshot `json:"tiers"`
	ElapsedSeconds int                   `json:"elapsed_seconds"`
	ShowTimer      bool                  `json:"show_timer"`
	Failure        *SessionError         `json:"failure,omitempty"`
}

// FailureReason distinguishes the two terminal session failures so callers
// can react differently (offer a retry vs. show a fatal message).
type FailureReason string

const (
	FailureTimeout      FailureReason = "timeout"
	FailureBackendError FailureReason = "backend_error"
)

var (
	ErrPollTimeout   = errors.New("index status polling timed out")
	ErrBackendIndex  = errors.New("backend reported an indexing error")
	ErrSessionActive = errors.New("an indexing session is already being tracked")
)

// SessionError is a terminal tracking failure surfaced to the caller.
type SessionError struct {
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("indexing session failed (%s): %s", e.Reason, e.Message)
}

func (e *SessionError) Is(target error) bool {
	switch e.Reason {
	case FailureTimeout:
		return target == ErrPollTimeout
	case FailureBackendError:
		return target == ErrBackendIndex
	}
	return false
}
