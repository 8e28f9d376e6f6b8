package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docsignal/docsignal/logger"
)

const (
	defaultPollInterval    = 1 * time.Second
	defaultMaxPollAttempts = 120
)

// Config tunes the poll loop. Zero values fall back to the defaults of
// 120 attempts at 1-second intervals, roughly a two minute budget.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

type tierState struct {
	status      TierStatus
	startedAt   time.Time
	completedAt time.Time
}

// Tracker owns the staged indexing-progress state machine: per-tier status,
// derived overall status and cumulative elapsed time across start/stop
// cycles. All mutation funnels through StartSession, Poll, Stop and Reset.
type Tracker struct {
	logger       logger.Logger
	source       StatusSource
	onTransition func(Transition)
	interval     time.Duration
	maxAttempts  int
	now          func() time.Time

	mu           sync.Mutex
	tiers        map[Tier]*tierState
	overall      OverallStatus
	cumulative   time.Duration
	sessionStart time.Time
	polling      bool
	showTimer    bool
	failure      *SessionError
	generation   uint64
	cancel       context.CancelFunc
}

// New creates a tracker polling the given source. onTransition, if non-nil,
// receives one event per tier whose status changed since the previous poll,
// always in fast, medium, slow order.
func New(logger logger.Logger, source StatusSource, onTransition func(Transition), cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}

	tiers := make(map[Tier]*tierState, len(tierOrder))
	for _, tier := range tierOrder {
		tiers[tier] = &tierState{status: TierPending}
	}

	return &Tracker{
		logger:       logger,
		source:       source,
		onTransition: onTransition,
		interval:     cfg.PollInterval,
		maxAttempts:  cfg.MaxPollAttempts,
		now:          time.Now,
		tiers:        tiers,
		overall:      OverallIdle,
		showTimer:    true,
	}
}

// StartSession opens a tracking session: the session timer baseline is reset
// (cumulative elapsed time from earlier sessions is preserved) and the poll
// loop starts. Responses belonging to a superseded session are discarded via
// a generation tag captured at dispatch.
func (t *Tracker) StartSession(ctx context.Context) error {
	t.mu.Lock()
	if t.polling {
		t.mu.Unlock()
		return ErrSessionActive
	}
	t.generation++
	generation := t.generation
	t.sessionStart = t.now()
	t.polling = true
	t.showTimer = true
	t.failure = nil
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(runCtx, generation)
	return nil
}

// Poll performs a single status fetch and applies it, emitting a transition
// event for every tier whose status changed. Exposed so the poll loop and
// tests share one code path.
func (t *Tracker) Poll(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	generation := t.generation
	t.mu.Unlock()

	report, err := t.source.IndexStatus(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch index status: %w", err)
	}

	t.apply(generation, report)
	return t.CurrentSnapshot(), nil
}

// Stop halts polling and folds the running session's elapsed time into the
// cumulative total; nothing is zeroed. keepDisplay false additionally hides
// the visible timer text (the total itself is preserved).
func (t *Tracker) Stop(keepDisplay bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(keepDisplay)
}

// Reset is the full teardown backing the destructive delete-all-documents
// operation: cumulative elapsed time returns to zero and every tier returns
// to pending. Normal completion never calls this.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked(true)
	t.generation++
	t.cumulative = 0
	t.overall = OverallIdle
	t.failure = nil
	for _, state := range t.tiers {
		state.status = TierPending
		state.startedAt = time.Time{}
		state.completedAt = time.Time{}
	}
}

// CurrentSnapshot reports the tracker's last-known state.
func (t *Tracker) CurrentSnapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	tiers := make(map[Tier]TierSnapshot, len(t.tiers))
	for tier, state := range t.tiers {
		tiers[tier] = TierSnapshot{
			Status:      state.status,
			StartedAt:   state.startedAt,
			CompletedAt: state.completedAt,
		}
	}

	return Snapshot{
		Overall:        t.overall,
		Tiers:          tiers,
		ElapsedSeconds: int(t.elapsedLocked().Seconds()),
		ShowTimer:      t.showTimer,
		Failure:        t.failure,
	}
}

func (t *Tracker) run(ctx context.Context, generation uint64) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	failedAttempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := t.source.IndexStatus(ctx)
		if err != nil {
			failedAttempts++
			t.logger.Warn("index status poll failed", "attempt", failedAttempts, "err", err.Error())
			if failedAttempts >= t.maxAttempts {
				t.fail(generation, FailureTimeout,
					fmt.Sprintf("no index status after %d attempts", failedAttempts))
				return
			}
			continue
		}
		failedAttempts = 0

		t.apply(generation, report)

		t.mu.Lock()
		stale := generation != t.generation
		overall := t.overall
		t.mu.Unlock()
		if stale {
			return
		}

		switch overall {
		case OverallCompleted:
			t.finish(generation)
			return
		case OverallError:
			t.fail(generation, FailureBackendError, "backend reported an indexing error")
			return
		}
	}
}

// apply diffs one report against the last-known tier states and emits
// transition events in the fixed tier order. Reports tagged with a stale
// generation are discarded rather than applied.
func (t *Tracker) apply(generation uint64, report Report) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		t.logger.Warn("discarding index status report for a superseded session")
		return
	}

	var transitions []Transition
	for _, tier := range tierOrder {
		state := t.tiers[tier]
		newStatus, ok := report.GroupStatus[tier]
		if !ok {
			continue
		}
		// The backend reports failure at the overall level only; pin it on
		// the tier that was running when the report arrived.
		if report.Status == OverallError && state.status == TierRunning {
			newStatus = TierError
		}
		if newStatus == state.status {
			continue
		}

		transitions = append(transitions, Transition{Tier: tier, Previous: state.status, New: newStatus})
		switch newStatus {
		case TierRunning:
			state.startedAt = t.now()
			state.completedAt = time.Time{}
		case TierCompleted, TierError:
			state.completedAt = t.now()
		case TierPending:
			state.startedAt = time.Time{}
			state.completedAt = time.Time{}
		}
		state.status = newStatus
	}

	t.overall = deriveOverall(report.Status, t.tiers)
	t.mu.Unlock()

	if t.onTransition == nil {
		return
	}
	for _, transition := range transitions {
		t.onTransition(transition)
	}
}

func (t *Tracker) finish(generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return
	}
	t.stopLocked(true)
	t.logger.Info("indexing session completed", "elapsed", t.cumulative.String())
}

// fail stops the session with a terminal reason. The display freezes at its
// last-known state so partial progress stays visible.
func (t *Tracker) fail(generation uint64, reason FailureReason, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return
	}
	t.stopLocked(true)
	t.failure = &SessionError{Reason: reason, Message: message}
	t.logger.Error("indexing session failed", "reason", string(reason), "err", message)
}

func (t *Tracker) stopLocked(keepDisplay bool) {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.polling {
		t.cumulative += t.now().Sub(t.sessionStart)
		t.polling = false
	}
	t.showTimer = keepDisplay
}

func (t *Tracker) elapsedLocked() time.Duration {
	if t.polling {
		return t.cumulative + t.now().Sub(t.sessionStart)
	}
	return t.cumulative
}

func deriveOverall(reported OverallStatus, tiers map[Tier]*tierState) OverallStatus {
	if reported == OverallError {
		return OverallError
	}

	anyRunning := false
	allCompleted := true
	for _, state := range tiers {
		switch state.status {
		case TierError:
			return OverallError
		case TierRunning:
			anyRunning = true
			allCompleted = false
		case TierPending:
			allCompleted = false
		}
	}

	if anyRunning {
		return OverallRunning
	}
	if allCompleted {
		return OverallCompleted
	}
	return OverallIdle
}
