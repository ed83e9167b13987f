package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/riskoracle/internal/traces"
)

// Registry holds validator risk scores behind a single administrator.
//
// All three fields of state (admin, mapping, last update) are guarded by one
// lock. UpdateRisk holds the write lock across the authorization check, the
// store write and the in-memory apply, so readers never observe a score
// without its timestamp or the reverse.
//
// Registries in several processes may share a store. They agree on the
// administrator, but scores written elsewhere only show up after Open.
type Registry struct {
	mu         sync.RWMutex
	store      Store
	clock      Clock
	listeners  []Listener
	admin      common.Address
	hasAdmin   bool
	scores     map[string]uint8
	lastUpdate time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for last-update timestamps.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithListener registers a listener for accepted writes.
func WithListener(l Listener) Option {
	return func(r *Registry) {
		r.listeners = append(r.listeners, l)
	}
}

// Open creates a registry backed by store and loads its persisted state.
// A store that already carries an administrator yields an active registry.
func Open(ctx context.Context, store Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:  store,
		clock:  time.Now,
		scores: make(map[string]uint8),
	}
	for _, opt := range opts {
		opt(r)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry state: %w", err)
	}
	r.admin = snap.Admin
	r.hasAdmin = snap.HasAdmin
	r.lastUpdate = snap.LastUpdate
	for id, score := range snap.Scores {
		r.scores[id] = score
	}
	return r, nil
}

// Initialize records caller as the administrator. Only the first call takes
// effect; later calls return ErrAlreadyInitialized and change nothing.
func (r *Registry) Initialize(ctx context.Context, caller common.Address) error {
	ctx, span := traces.StartSpan(ctx, "oracle.initialize", traces.Caller(caller.Hex()))
	defer span.End()

	if caller == (common.Address{}) {
		return ErrInvalidCaller
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasAdmin {
		return ErrAlreadyInitialized
	}
	if err := r.store.SetAdmin(ctx, caller); err != nil {
		traces.Fail(span, err)
		if errors.Is(err, ErrAlreadyInitialized) {
			// Another process sharing the store won the race.
			if rerr := r.reloadAdmin(ctx); rerr != nil {
				return fmt.Errorf("%w: %w", err, rerr)
			}
		}
		return err
	}
	r.admin = caller
	r.hasAdmin = true
	return nil
}

// reloadAdmin adopts the administrator recorded in the store. Callers hold
// the write lock.
func (r *Registry) reloadAdmin(ctx context.Context) error {
	snap, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload admin: %w", err)
	}
	r.admin = snap.Admin
	r.hasAdmin = snap.HasAdmin
	return nil
}

// UpdateRisk sets the score of validatorID on behalf of caller. Only the
// administrator may write; anyone else, or anyone at all before Initialize,
// gets ErrUnauthorized with no state change.
func (r *Registry) UpdateRisk(ctx context.Context, caller common.Address, validatorID string, score uint8) error {
	_, err := r.Record(ctx, caller, validatorID, score)
	return err
}

// Record is UpdateRisk that also returns the accepted write, including the
// timestamp it was stored with.
func (r *Registry) Record(ctx context.Context, caller common.Address, validatorID string, score uint8) (Update, error) {
	ctx, span := traces.StartSpan(ctx, "oracle.update_risk",
		traces.ValidatorID(validatorID),
		traces.Caller(caller.Hex()),
		traces.Score(score),
	)
	defer span.End()

	if validatorID == "" {
		return Update{}, ErrInvalidValidator
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasAdmin || caller != r.admin {
		traces.Fail(span, ErrUnauthorized)
		return Update{}, ErrUnauthorized
	}

	at := r.clock()
	if at.Before(r.lastUpdate) {
		at = r.lastUpdate
	}

	if err := r.store.PutScore(ctx, validatorID, score, at); err != nil {
		traces.Fail(span, err)
		return Update{}, fmt.Errorf("failed to persist risk score: %w", err)
	}

	prev, had := r.scores[validatorID]
	r.scores[validatorID] = score
	r.lastUpdate = at

	u := Update{
		ValidatorID: validatorID,
		Score:       score,
		Previous:    prev,
		HadPrevious: had,
		Admin:       r.admin,
		At:          at,
	}
	for _, l := range r.listeners {
		l(u)
	}
	return u, nil
}

// GetRisk returns the score of validatorID, or 0 if none was recorded.
func (r *Registry) GetRisk(validatorID string) uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scores[validatorID]
}

// LastUpdate returns the time of the most recent accepted write, or the zero
// time if there has been none.
func (r *Registry) LastUpdate() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUpdate
}

// Admin returns the administrator and whether one has been recorded.
func (r *Registry) Admin() (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admin, r.hasAdmin
}

// Initialized reports whether an administrator has been recorded.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasAdmin
}

// Entries returns every recorded score ordered by validator id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.scores))
	for id, score := range r.scores {
		entries = append(entries, Entry{ValidatorID: id, Score: score})
	}
	r.mu.RUnlock()

	sortEntries(entries)
	return entries
}

// View is a consistent read of the whole registry.
type View struct {
	Admin       common.Address
	Initialized bool
	Entries     []Entry
	LastUpdate  time.Time
}

// View returns admin, scores and last update as observed under one lock.
func (r *Registry) View() View {
	r.mu.RLock()
	v := View{
		Admin:       r.admin,
		Initialized: r.hasAdmin,
		Entries:     make([]Entry, 0, len(r.scores)),
		LastUpdate:  r.lastUpdate,
	}
	for id, score := range r.scores {
		v.Entries = append(v.Entries, Entry{ValidatorID: id, Score: score})
	}
	r.mu.RUnlock()

	sortEntries(v.Entries)
	return v
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ValidatorID < entries[j].ValidatorID
	})
}

// Ping checks the backing store.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
