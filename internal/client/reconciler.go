package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codygellie/contact-management-app/internal/contacts"
)

const defaultFetchTimeout = 10 * time.Second

// Lister is the read path the reconciler refetches from. Both the REST
// APIClient and the in-process contacts service satisfy it.
type Lister interface {
	List(ctx context.Context, query contacts.PageQuery) (contacts.Page, error)
}

// ReconcilerConfig carries the dependencies and tuning of a reconciler.
type ReconcilerConfig struct {
	Fetcher      Lister
	FetchTimeout time.Duration

	// OnApply observes every entry committed to the cache. Optional.
	OnApply func(ViewCacheEntry)
	// OnError observes refetch failures. Failures are not retried
	// internally; the next notification or an explicit Refresh recovers.
	OnError func(error)

	Logger *zap.Logger
}

// Reconciler keeps one session's paginated views in agreement with the
// store. Any change notification, regardless of variant or issuer,
// invalidates every cached entry and schedules a refetch of the active
// query; partial invalidation is unsound because an insert or delete on
// any page can shift rows, totals and page counts everywhere.
//
// Overlapping refetch triggers for one query coalesce into at most one
// in-flight request plus one pending rerun, and responses apply only in
// sequence order, so a late response can never clobber a newer one.
type Reconciler struct {
	fetcher      Lister
	cache        *ViewCache
	fetchTimeout time.Duration
	onApply      func(ViewCacheEntry)
	onError      func(error)
	logger       *zap.Logger

	mu     sync.Mutex
	active contacts.PageQuery
	epoch  int64
	states map[contacts.PageQuery]*fetchState
}

type fetchState struct {
	inflight bool
	pending  bool
	// pendingEpoch is the epoch of the latest coalesced trigger, which may
	// be newer than the epoch of the request in flight.
	pendingEpoch int64
	nextSeq      int64
	lastApplied  int64
	cancel       context.CancelFunc
}

// NewReconciler returns a reconciler for the given fetcher with page 1,
// default page size and an empty search term as the initial active query.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		fetcher:      cfg.Fetcher,
		cache:        NewViewCache(),
		fetchTimeout: timeout,
		onApply:      cfg.OnApply,
		onError:      cfg.OnError,
		logger:       logger,
		active:       contacts.PageQuery{Page: 1, PageSize: contacts.DefaultPageSize}.Normalize(),
		states:       make(map[contacts.PageQuery]*fetchState),
	}
}

// ActiveQuery returns the query the reconciler currently keeps fresh.
func (r *Reconciler) ActiveQuery() contacts.PageQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Snapshot returns the cached entry for the active query, if any.
func (r *Reconciler) Snapshot() (ViewCacheEntry, bool) {
	r.mu.Lock()
	query := r.active
	r.mu.Unlock()
	return r.cache.Get(query)
}

// HandleNotification reacts to any committed change: every cached entry is
// marked stale and a refetch of the active query is scheduled. The
// issuer's own synchronous mutation result is deliberately not applied to
// the cache; this is the single reconciliation path.
func (r *Reconciler) HandleNotification(contacts.ChangeNotification) {
	r.cache.InvalidateAll()
	r.mu.Lock()
	query := r.active
	epoch := r.epoch
	r.mu.Unlock()
	r.scheduleRefetch(query, epoch)
}

// HandleStatus resynchronizes after every completed (re)connect: missed
// notifications are never replayed, so the only sound recovery is a full
// refetch of the visible query.
func (r *Reconciler) HandleStatus(change StatusChange) {
	if change.Status != StatusConnected {
		return
	}
	r.cache.InvalidateAll()
	r.mu.Lock()
	query := r.active
	epoch := r.epoch
	r.mu.Unlock()
	r.scheduleRefetch(query, epoch)
}

// SetSearch installs a new search term, resetting the page to 1. The epoch
// bump makes any refetch still in flight for the previous term apply to
// nothing: last write wins by term-change order, not by arrival order.
func (r *Reconciler) SetSearch(term string) {
	r.mu.Lock()
	next := contacts.PageQuery{Page: 1, PageSize: r.active.PageSize, Search: term}.Normalize()
	if next == r.active {
		r.mu.Unlock()
		return
	}
	r.cancelInflightLocked()
	r.active = next
	r.epoch++
	epoch := r.epoch
	r.pruneIdleLocked()
	r.mu.Unlock()
	r.scheduleRefetch(next, epoch)
}

// SetPage moves the active view to another page of the current term.
func (r *Reconciler) SetPage(page int) {
	r.mu.Lock()
	next := contacts.PageQuery{Page: page, PageSize: r.active.PageSize, Search: r.active.Search}.Normalize()
	if next == r.active {
		r.mu.Unlock()
		return
	}
	r.active = next
	epoch := r.epoch
	r.pruneIdleLocked()
	r.mu.Unlock()
	r.scheduleRefetch(next, epoch)
}

// Refresh forces a refetch of the active query, e.g. after a refetch
// failure or a user-initiated reload.
func (r *Reconciler) Refresh() {
	r.mu.Lock()
	query := r.active
	epoch := r.epoch
	r.mu.Unlock()
	r.scheduleRefetch(query, epoch)
}

// scheduleRefetch collapses overlapping triggers: if a request for this
// query is already in flight the trigger only marks a pending rerun, so K
// triggers during one flight complete exactly one additional request.
func (r *Reconciler) scheduleRefetch(query contacts.PageQuery, epoch int64) {
	r.mu.Lock()
	state := r.stateLocked(query)
	if state.inflight {
		state.pending = true
		state.pendingEpoch = epoch
		r.mu.Unlock()
		return
	}
	state.inflight = true
	state.nextSeq++
	seq := state.nextSeq
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	state.cancel = cancel
	r.mu.Unlock()

	go r.fetch(ctx, cancel, query, epoch, seq)
}

func (r *Reconciler) fetch(ctx context.Context, cancel context.CancelFunc, query contacts.PageQuery, epoch, seq int64) {
	defer cancel()
	page, err := r.fetcher.List(ctx, query)
	r.finish(query, epoch, seq, page, err)
}

// finish applies a completed refetch. The response is dropped when its
// epoch is stale (the search term changed underneath it) or when a
// higher-sequence response already committed.
func (r *Reconciler) finish(query contacts.PageQuery, epoch, seq int64, page contacts.Page, err error) {
	r.mu.Lock()
	state := r.stateLocked(query)
	state.inflight = false
	state.cancel = nil
	currentEpoch := r.epoch
	// The rerun is gated on the latest trigger's epoch, not the finishing
	// request's: a trigger coalesced behind a superseded fetch is still
	// current if the term it targets is. A pending rerun for a superseded
	// term fetches nothing.
	rerun := state.pending && state.pendingEpoch == currentEpoch
	rerunEpoch := state.pendingEpoch
	state.pending = false
	apply := err == nil && epoch == currentEpoch && seq > state.lastApplied
	if apply {
		state.lastApplied = seq
	}
	if !rerun {
		r.pruneIdleLocked()
	}
	r.mu.Unlock()

	switch {
	case err != nil && epoch == currentEpoch:
		r.logger.Warn("refetch failed", zap.String("search", query.Search),
			zap.Int("page", query.Page), zap.Error(err))
		if r.onError != nil {
			r.onError(err)
		}
	case apply:
		entry := ViewCacheEntry{
			Query:      query,
			Contacts:   page.Contacts,
			Total:      page.Total,
			TotalPages: page.TotalPages,
			Fresh:      true,
			FetchedAt:  time.Now(),
		}
		r.cache.Replace(entry)
		if r.onApply != nil {
			r.onApply(entry)
		}
	}

	if rerun {
		r.scheduleRefetch(query, rerunEpoch)
	}
}

func (r *Reconciler) stateLocked(query contacts.PageQuery) *fetchState {
	state, ok := r.states[query]
	if !ok {
		state = &fetchState{}
		r.states[query] = state
	}
	return state
}

func (r *Reconciler) cancelInflightLocked() {
	for _, state := range r.states {
		if state.cancel != nil {
			state.cancel()
		}
		state.pending = false
	}
}

// pruneIdleLocked drops fetch states with no outstanding work for queries
// the view has moved away from, so a session paging through a large
// directory does not accumulate one entry per page ever visited.
func (r *Reconciler) pruneIdleLocked() {
	for query, state := range r.states {
		if query == r.active || state.inflight || state.pending {
			continue
		}
		delete(r.states, query)
	}
}

// Cache exposes the session's view cache for rendering.
func (r *Reconciler) Cache() *ViewCache {
	return r.cache
}
