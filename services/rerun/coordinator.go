package rerun

import (
	"strings"
	"sync"

	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/progress"
)

// Session is the lifetime of a non-empty search query, from submission until
// it is cleared or replaced by different terms.
type Session struct {
	Terms  string
	Active bool
}

// Coordinator replays the active search exactly once per tier per search
// session, as each indexing tier first reaches completed. The per-tier
// memory only ever moves false to true within a session; it is cleared when
// a new session starts or on a full document wipe, never by tier events.
type Coordinator struct {
	logger  logger.Logger
	onRerun func(tier progress.Tier, terms string)

	mu      sync.Mutex
	session Session
	fired   map[progress.Tier]bool
}

// New creates a coordinator. onRerun is invoked (synchronously, in tier
// event order) each time a rerun is due; it receives the tier that completed
// and the terms to replay.
func New(logger logger.Logger, onRerun func(tier progress.Tier, terms string)) *Coordinator {
	return &Coordinator{
		logger:  logger,
		onRerun: onRerun,
		fired:   make(map[progress.Tier]bool),
	}
}

// SetQuery records the submitted query. Non-empty terms that differ from the
// current session (or arrive when no session is active) start a new session
// and re-arm every tier. Resubmitting identical terms keeps the session and
// its memory. Empty terms clear the session.
func (c *Coordinator) SetQuery(terms string) {
	terms = strings.TrimSpace(terms)

	c.mu.Lock()
	defer c.mu.Unlock()

	if terms == "" {
		c.clearLocked()
		return
	}
	if c.session.Active && c.session.Terms == terms {
		return
	}

	c.session = Session{Terms: terms, Active: true}
	c.fired = make(map[progress.Tier]bool)
	c.logger.Debug("new search session, rerun memory cleared", "terms", terms)
}

// Clear drops the session and the rerun memory. Used when the search box is
// emptied or all documents are deleted.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Coordinator) clearLocked() {
	c.session = Session{}
	c.fired = make(map[progress.Tier]bool)
}

// CurrentSession returns the active session, if any.
func (c *Coordinator) CurrentSession() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// OnTierTransition observes one tier status change. A rerun fires only on a
// genuine transition into completed, while a search is active, for a tier
// that has not yet fired this session. Repeated completed reports and
// completions with no active search do nothing.
func (c *Coordinator) OnTierTransition(transition progress.Transition) {
	c.mu.Lock()

	if !c.session.Active ||
		transition.Previous == progress.TierCompleted ||
		transition.New != progress.TierCompleted ||
		c.fired[transition.Tier] {
		c.mu.Unlock()
		return
	}

	c.fired[transition.Tier] = true
	terms := c.session.Terms
	c.mu.Unlock()

	c.logger.Info("tier completed, replaying active search",
		"tier", string(transition.Tier), "terms", terms)
	c.onRerun(transition.Tier, terms)
}
