package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/logger"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

// DefaultGracePeriod is how long a user with no handles stays online.
const DefaultGracePeriod = 8 * time.Second

// Scheduler runs fn after d. The returned cancel reports whether fn was
// prevented from running. Implementations must run fn on the same
// goroutine that drives the Tracker.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func() bool)
}

// Cluster counts, across worker processes, how many workers hold a user
// online. Acquire and Release return the count after the change. A nil
// Cluster means this process is the only worker.
type Cluster interface {
	Acquire(ctx context.Context, userID string) (int64, error)
	Release(ctx context.Context, userID string) (int64, error)
}

// Notifier receives presence transitions for broadcast.
type Notifier interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

type pendingOffline struct {
	cancel func() bool
}

// Tracker is the per-user Offline -> Online -> Offline state machine.
// Losing the last handle does not mark the user offline immediately; an
// offline check is scheduled after the grace period and only acts if the
// user still has no handles when it fires.
type Tracker struct {
	registry *Registry
	status   store.StatusStore
	notify   Notifier
	cluster  Cluster
	sched    Scheduler
	grace    time.Duration
	timeout  time.Duration
	log      *zap.Logger

	online  map[string]bool
	pending map[string]*pendingOffline
}

// TrackerConfig wires a Tracker.
type TrackerConfig struct {
	Registry       *Registry
	Status         store.StatusStore
	Notifier       Notifier
	Cluster        Cluster
	Scheduler      Scheduler
	GracePeriod    time.Duration
	PersistTimeout time.Duration
	Logger         *zap.Logger
}

// NewTracker builds a Tracker; zero durations fall back to defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Tracker{
		registry: cfg.Registry,
		status:   cfg.Status,
		notify:   cfg.Notifier,
		cluster:  cfg.Cluster,
		sched:    cfg.Scheduler,
		grace:    cfg.GracePeriod,
		timeout:  cfg.PersistTimeout,
		log:      cfg.Logger.With(zap.String("component", "presence")),
		online:   make(map[string]bool),
		pending:  make(map[string]*pendingOffline),
	}
}

// Join records a new handle for userID. The first handle of an offline user
// persists status=online and announces the user, unless another worker
// already holds the user online. A user coming back inside the grace period
// simply has its pending offline check cancelled.
func (t *Tracker) Join(userID string, h Handle) {
	t.registry.Add(userID, h)
	t.cancelPending(userID)

	if t.online[userID] {
		return
	}
	t.online[userID] = true
	if !t.acquire(userID) {
		t.log.Debug("user already online on another worker", zap.String("user", userID))
		return
	}
	t.persist(userID, store.StatusOnline)
	t.notify.UserOnline(userID)
}

// Leave drops a handle and schedules the offline check if it was the last.
func (t *Tracker) Leave(userID string, h Handle) {
	if !t.registry.Remove(userID, h) {
		return
	}
	t.log.Debug("last handle gone, offline pending",
		zap.String("user", userID), zap.Duration("grace", t.grace))

	t.cancelPending(userID)
	p := &pendingOffline{}
	p.cancel = t.sched.Schedule(t.grace, func() { t.expire(userID, p) })
	t.pending[userID] = p
}

// expire runs when a grace period ends. A superseded timer or a user who
// reacquired a handle makes it a no-op.
func (t *Tracker) expire(userID string, p *pendingOffline) {
	if t.pending[userID] != p {
		return
	}
	delete(t.pending, userID)

	if t.registry.IsOnline(userID) {
		t.log.Debug("user came back before grace period ended", zap.String("user", userID))
		return
	}
	if !t.online[userID] {
		return
	}
	delete(t.online, userID)
	if !t.release(userID) {
		t.log.Debug("user still online on another worker", zap.String("user", userID))
		return
	}
	t.persist(userID, store.StatusOffline)
	t.notify.UserOffline(userID)
}

// acquire reports whether this worker is the first to hold userID online.
// When the cluster count is unavailable the local view decides.
func (t *Tracker) acquire(userID string) bool {
	if t.cluster == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	n, err := t.cluster.Acquire(ctx, userID)
	if err != nil {
		t.log.Warn("cluster acquire failed", zap.String("user", userID), zap.Error(err))
		return true
	}
	return n == 1
}

// release reports whether this worker was the last to hold userID online.
func (t *Tracker) release(userID string) bool {
	if t.cluster == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	n, err := t.cluster.Release(ctx, userID)
	if err != nil {
		t.log.Warn("cluster release failed", zap.String("user", userID), zap.Error(err))
		return true
	}
	return n <= 0
}

func (t *Tracker) cancelPending(userID string) {
	if p, ok := t.pending[userID]; ok {
		p.cancel()
		delete(t.pending, userID)
	}
}

// persist writes the status best-effort; failures never block the broadcast.
func (t *Tracker) persist(userID string, status store.Status) {
	if t.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.status.SetUserStatus(ctx, userID, status); err != nil {
		t.log.Warn("status update failed",
			zap.String("user", userID), zap.String("status", string(status)), zap.Error(err))
	}
}

// Detach gives up this worker's cluster holds when the process stops. Users
// nobody else holds are written offline; no broadcast goes out since the
// local connections are already closing.
func (t *Tracker) Detach() {
	if t.cluster == nil {
		return
	}
	for userID := range t.online {
		t.cancelPending(userID)
		delete(t.online, userID)
		if t.release(userID) {
			t.persist(userID, store.StatusOffline)
		}
	}
}

// IsOnline reports the externally visible state, which stays online during
// the grace period.
func (t *Tracker) IsOnline(userID string) bool {
	return t.online[userID]
}

// OnlineUsers lists users in the online state.
func (t *Tracker) OnlineUsers() []string {
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	return out
}

// Pending reports whether an offline check is outstanding for userID.
func (t *Tracker) Pending(userID string) bool {
	_, ok := t.pending[userID]
	return ok
}
