package router

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"foreman/internal/logging"
	"foreman/internal/protocol"
	"foreman/internal/worker"
)

// Router holds the worker registry, the role index derived from it, and
// per-action execution metrics, and picks a worker for each command.
type Router struct {
	logger  *slog.Logger
	strict  bool
	metrics *Metrics

	mu      sync.Mutex
	workers []*worker.Worker
	byRole  map[Role][]*worker.Worker

	rr atomic.Uint64
}

// New constructs an empty router. With strict role isolation enabled, quick
// operations never borrow general-purpose workers.
func New(logger *slog.Logger, strict bool) *Router {
	return &Router{
		logger:  logging.NewComponentLogger(logger, "router"),
		strict:  strict,
		metrics: NewMetrics(),
		byRole:  map[Role][]*worker.Worker{},
	}
}

// Metrics exposes the per-action execution counters.
func (r *Router) Metrics() *Metrics { return r.metrics }

// SetWorkers replaces the registry and rebuilds role assignments.
func (r *Router) SetWorkers(workers []*worker.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append([]*worker.Worker(nil), workers...)
	r.rebuildRoles()
}

// ReplaceAt splices a replacement worker into the registry at the given
// index and rebuilds role assignments, so the replacement inherits the same
// specialization slots as its predecessor.
func (r *Router) ReplaceAt(index int, w *worker.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.workers) {
		return
	}
	r.workers[index] = w
	r.rebuildRoles()
}

// Workers returns a snapshot of the registry in insertion order.
func (r *Router) Workers() []*worker.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*worker.Worker(nil), r.workers...)
}

// RolesOf returns the roles currently assigned to the given worker id.
func (r *Router) RolesOf(id string) []Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	var roles []Role
	for role, members := range r.byRole {
		for _, member := range members {
			if member.ID() == id {
				roles = append(roles, role)
				break
			}
		}
	}
	return roles
}

// rebuildRoles regenerates the role index wholesale. Rebuilding rather than
// patching keeps replacement free of partial-update races.
func (r *Router) rebuildRoles() {
	byRole := map[Role][]*worker.Worker{}
	for index, w := range r.workers {
		for _, role := range rolesForIndex(index, len(r.workers)) {
			byRole[role] = append(byRole[role], w)
		}
	}
	r.byRole = byRole
}

// Select picks an idle, healthy worker for the command: first a worker whose
// assigned role matches the action's preferred role, then the
// general-purpose pool in round-robin order. Quick categories skip straight
// to the general pool rather than waiting, unless strict role isolation is
// on. The returned worker is already reserved, so concurrent selections
// never hand out the same worker; the reservation is released when the
// follow-up call completes. Returns nil when no worker is available;
// priority is advisory and does not affect the order.
func (r *Router) Select(cmd protocol.Command, priority Priority) *worker.Worker {
	category := Classify(cmd.Action)
	preferred := category.PreferredRole()

	r.mu.Lock()
	defer r.mu.Unlock()

	if preferred != RoleGeneral {
		if w := firstIdle(r.byRole[preferred]); w != nil {
			return w
		}
		if category.Quick() && r.strict {
			r.logger.Debug("strict isolation: no quick worker free",
				logging.String(logging.FieldAction, cmd.Action),
				logging.String("priority", priority.String()))
			return nil
		}
	}

	return r.nextGeneral()
}

func firstIdle(workers []*worker.Worker) *worker.Worker {
	for _, w := range workers {
		if w.Healthy() && w.Reserve() {
			return w
		}
	}
	return nil
}

// nextGeneral scans the general-purpose list at most once around, starting
// from a rotating index.
func (r *Router) nextGeneral() *worker.Worker {
	general := r.byRole[RoleGeneral]
	if len(general) == 0 {
		return nil
	}
	start := int(r.rr.Add(1)-1) % len(general)
	for i := 0; i < len(general); i++ {
		w := general[(start+i)%len(general)]
		if w.Healthy() && w.Reserve() {
			return w
		}
	}
	return nil
}
