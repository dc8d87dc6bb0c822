// Package orchestrator glues the store, git service, and attempt container
// into the business operations exposed over the API: attempt creation,
// follow-up and rewind, script and dev-server dispatch, and the branch
// integration state machine.
package orchestrator

import (
	"log/slog"
	"sync"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/git"
	"github.com/greenroomhq/greenroom/internal/hosting"
	"github.com/greenroomhq/greenroom/internal/workspace"
)

// Orchestrator owns the per-attempt advisory locks that serialize
// check-and-dispatch sequences. Every exclusivity decision (process already
// running, rename preconditions) happens under the attempt's lock so the
// check and the act cannot interleave with another request.
type Orchestrator struct {
	store     *db.Store
	git       *git.Service
	container *workspace.Container
	events    events.Publisher
	logger    *slog.Logger
	remote    string
	hosting   hosting.Provider

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRemote sets the git remote used for pushes and remote comparisons.
func WithRemote(remote string) Option {
	return func(o *Orchestrator) { o.remote = remote }
}

// WithHosting sets the hosting provider used for pull request lookups.
// Without one, PR attach returns a configuration error.
func WithHosting(provider hosting.Provider) Option {
	return func(o *Orchestrator) { o.hosting = provider }
}

// New creates an orchestrator.
func New(store *db.Store, gitSvc *git.Service, container *workspace.Container, publisher events.Publisher, opts ...Option) *Orchestrator {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	o := &Orchestrator{
		store:     store,
		git:       gitSvc,
		container: container,
		events:    publisher,
		logger:    slog.Default(),
		remote:    "origin",
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// attemptLock returns the advisory lock for an attempt, creating it on first
// use. Locks are never removed; the map grows with the set of attempts
// touched since startup, which is bounded by actual usage.
func (o *Orchestrator) attemptLock(attemptID string) *sync.Mutex {
	o.lockMu.Lock()
	defer o.lockMu.Unlock()
	mu, ok := o.locks[attemptID]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[attemptID] = mu
	}
	return mu
}

// Container exposes the workspace container for callers that stream diffs.
func (o *Orchestrator) Container() *workspace.Container {
	return o.container
}
