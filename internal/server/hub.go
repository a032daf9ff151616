// Package server coordinates client registration, event dispatch, presence
// and connection cleanup for the chat system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/delivery"
	"github.com/Tyrowin/nexus-chat-server/internal/logger"
	"github.com/Tyrowin/nexus-chat-server/internal/metrics"
	"github.com/Tyrowin/nexus-chat-server/internal/presence"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/rooms"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

// HubConfig wires a Hub to its collaborators. Status defaults to Users.
// Cluster is left nil when this process is the only worker.
type HubConfig struct {
	Messages       store.MessageStore
	Users          store.UserStore
	Status         store.StatusStore
	Cluster        presence.Cluster
	GracePeriod    time.Duration
	PersistTimeout time.Duration
	Logger         *zap.Logger
}

// inboundEvent is a decoded client frame, or the reason decoding failed.
type inboundEvent struct {
	client *Client
	in     protocol.Inbound
	err    error
}

// Hub manages all WebSocket client connections. Its Run goroutine is the
// only one touching the registry, presence tracker, bindings and rooms;
// everything else hands work to it over channels.
type Hub struct {
	clients    map[presence.Handle]*Client
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	tasks      chan func()
	evict      []*Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	upgrader   websocket.Upgrader

	registry  *presence.Registry
	rooms     *rooms.Channel
	tracker   *presence.Tracker
	lifecycle *presence.Lifecycle
	router    *delivery.Router
	local     delivery.Local
	remote    delivery.Fanout
	log       *zap.Logger
}

// NewHub creates and initializes a new Hub. The returned Hub is ready to
// manage WebSocket connections once Run is started.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Status == nil {
		cfg.Status = cfg.Users
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[presence.Handle]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		tasks:      make(chan func(), 256),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		registry:   presence.NewRegistry(),
		rooms:      rooms.NewChannel(),
		log:        cfg.Logger.With(zap.String("component", "hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originGuard{log: h.log}.check,
	}
	h.local = delivery.Local{Resolver: loopView{h}, Sender: loopView{h}}
	h.router = delivery.NewRouter(delivery.RouterConfig{
		Messages:       cfg.Messages,
		Users:          cfg.Users,
		Fanout:         h,
		PersistTimeout: cfg.PersistTimeout,
		Logger:         cfg.Logger,
	})
	h.tracker = presence.NewTracker(presence.TrackerConfig{
		Registry:       h.registry,
		Status:         cfg.Status,
		Notifier:       h.router,
		Cluster:        cfg.Cluster,
		Scheduler:      presence.AfterFuncScheduler{Enqueue: h.enqueue},
		GracePeriod:    cfg.GracePeriod,
		PersistTimeout: cfg.PersistTimeout,
		Logger:         cfg.Logger,
	})
	h.lifecycle = presence.NewLifecycle(h.tracker, h.rooms)
	return h
}

// UseFanout routes outbound envelopes through f instead of delivering them
// locally. f is expected to hand received envelopes back through Deliver.
// Call before Run.
func (h *Hub) UseFanout(f delivery.Fanout) {
	h.remote = f
}

// Publish implements delivery.Fanout for the router.
func (h *Hub) Publish(ctx context.Context, env delivery.Envelope) error {
	if h.remote != nil {
		return h.remote.Publish(ctx, env)
	}
	return h.local.Publish(ctx, env)
}

// Deliver hands an envelope received from another worker to the loop. Safe
// to call from any goroutine.
func (h *Hub) Deliver(env delivery.Envelope) {
	h.enqueue(func() { h.local.Deliver(env) })
}

// enqueue runs fn on the loop. Work submitted after shutdown is dropped.
func (h *Hub) enqueue(fn func()) {
	select {
	case h.tasks <- fn:
	case <-h.ctx.Done():
	}
}

// query runs fn on the loop and waits for it to finish.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		fn()
		close(finished)
	}
	select {
	case h.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return context.Canceled
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return context.Canceled
	}
}

// OnlineUsers returns the users currently in the online state, including
// those inside their grace period.
func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := h.query(ctx, func() { users = h.tracker.OnlineUsers() })
	return users, err
}

// Stats is a point-in-time view of the hub. Sessions counts the live
// connections of every joined user; Online also lists users still inside
// their grace period.
type Stats struct {
	Connections int            `json:"connections"`
	Online      []string       `json:"online"`
	Sessions    map[string]int `json:"sessions"`
}

// Snapshot returns connection and presence counts from inside the loop.
func (h *Hub) Snapshot(ctx context.Context) (Stats, error) {
	s := Stats{Sessions: map[string]int{}}
	err := h.query(ctx, func() {
		s.Connections = len(h.clients)
		s.Online = h.tracker.OnlineUsers()
		for _, u := range h.registry.Users() {
			s.Sessions[u] = len(h.registry.HandlesOf(u))
		}
	})
	if s.Online == nil {
		s.Online = []string{}
	}
	return s, err
}

// Run starts the hub's main event loop. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.drop(client, "disconnected")

		case ev := <-h.inbound:
			h.handleEvent(ev)

		case fn := <-h.tasks:
			fn()
		}
		h.evictSlow()
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	client.handle = h.lifecycle.Connect()
	client.closed = false
	h.clients[client.handle] = client
	metrics.ConnectionsActive.Inc()
	h.log.Debug("client registered",
		zap.String("addr", client.addr),
		zap.String("handle", string(client.handle)),
		zap.Int("clients", len(h.clients)))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// drop unregisters a client, closes its send channel and runs the
// disconnect transition. Unknown clients are ignored.
func (h *Hub) drop(client *Client, reason string) {
	if client == nil {
		return
	}
	current, ok := h.clients[client.handle]
	if !ok || current != client {
		return
	}
	delete(h.clients, client.handle)
	client.closed = true
	close(client.send)
	metrics.ConnectionsActive.Dec()
	h.lifecycle.Disconnect(client.handle)
	h.log.Debug("client unregistered",
		zap.String("addr", client.addr),
		zap.String("reason", reason),
		zap.Int("clients", len(h.clients)))
}

// evictSlow drops clients whose send buffer overflowed during the last
// iteration.
func (h *Hub) evictSlow() {
	if len(h.evict) == 0 {
		return
	}
	slow := h.evict
	h.evict = nil
	for _, client := range slow {
		h.log.Warn("client removed due to full send buffer", zap.String("addr", client.addr))
		h.drop(client, "slow consumer")
	}
}

// send queues frame on a client without blocking. A full buffer marks the
// client for eviction.
func (h *Hub) send(handle presence.Handle, frame []byte) bool {
	client, ok := h.clients[handle]
	if !ok || client.closed {
		return false
	}
	select {
	case client.send <- frame:
		return true
	default:
		h.evict = append(h.evict, client)
		return false
	}
}

func (h *Hub) reject(client *Client, event string, err error) {
	reason := "invalid"
	if event == "" {
		reason = "malformed"
	}
	metrics.EventsRejected.WithLabelValues(reason).Inc()
	h.log.Debug("rejected frame",
		zap.String("addr", client.addr),
		zap.String("event", event),
		zap.Error(err))

	frame, encErr := protocol.Encode(protocol.EventError, protocol.ErrorPayload{Event: event, Message: err.Error()})
	if encErr != nil {
		return
	}
	h.send(client.handle, frame)
}

// handleEvent applies one client frame. Frames of clients that are already
// gone are ignored. The router logs its own persistence failures.
func (h *Hub) handleEvent(ev inboundEvent) {
	client := ev.client
	if current, ok := h.clients[client.handle]; !ok || current != client {
		return
	}
	if ev.err != nil {
		h.reject(client, "", ev.err)
		return
	}

	in := ev.in
	metrics.EventsReceived.WithLabelValues(in.Event).Inc()

	switch in.Event {
	case protocol.EventJoin:
		h.lifecycle.Join(client.handle, in.ID("userId"))

	case protocol.EventJoinRoom:
		h.rooms.Join(client.handle, in.ID("roomId"))

	case protocol.EventLeaveRoom:
		h.rooms.Leave(client.handle, in.ID("roomId"))

	case protocol.EventSendMessage:
		var msg protocol.DirectMessage
		if err := in.Bind(&msg); err != nil {
			h.reject(client, in.Event, err)
			return
		}
		if msg.From == "" || msg.To == "" {
			h.reject(client, in.Event, errMissingField("from/to"))
			return
		}
		_, _ = h.router.SendDirect(h.ctx, msg)

	case protocol.EventSendGroupMessage:
		var msg protocol.GroupMessage
		if err := in.Bind(&msg); err != nil {
			h.reject(client, in.Event, err)
			return
		}
		if msg.RoomID == "" {
			h.reject(client, in.Event, errMissingField("roomId"))
			return
		}
		_, _ = h.router.SendGroup(h.ctx, msg)

	case protocol.EventDeleteGroupMessage:
		var req protocol.DeleteGroupMessage
		if err := in.Bind(&req); err != nil {
			h.reject(client, in.Event, err)
			return
		}
		_ = h.router.DeleteGroup(h.ctx, req.MessageID, req.RoomID)

	case protocol.EventDeletePrivateMessage:
		var req protocol.DeletePrivateMessage
		if err := in.Bind(&req); err != nil {
			h.reject(client, in.Event, err)
			return
		}
		requester, _ := h.lifecycle.UserOf(client.handle)
		_ = h.router.DeletePrivate(h.ctx, requester, client.handle, req.MessageID, req.To)

	case protocol.EventAvatarUpdated:
		var update protocol.AvatarUpdate
		if err := in.Bind(&update); err != nil {
			h.reject(client, in.Event, err)
			return
		}
		if update.UserID == "" {
			h.reject(client, in.Event, errMissingField("userId"))
			return
		}
		_ = h.router.UpdateAvatar(h.ctx, update)
	}
}

// shutdownClients gracefully closes all active client connections. The
// pumps unwind on their own once the sockets are closed.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	for _, client := range h.clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("error closing client connection", zap.String("addr", client.addr), zap.Error(err))
		}
	}

	h.log.Info("closed client connections", zap.Int("count", len(h.clients)))
	h.tracker.Detach()
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// loopView exposes hub state to delivery.Local. It must only be used from
// the Run goroutine.
type loopView struct{ h *Hub }

func (v loopView) HandlesOf(userID string) []presence.Handle {
	return v.h.registry.HandlesOf(userID)
}

func (v loopView) Members(roomID string) []presence.Handle {
	return v.h.rooms.Members(roomID)
}

func (v loopView) AllHandles() []presence.Handle {
	handles := make([]presence.Handle, 0, len(v.h.clients))
	for handle := range v.h.clients {
		handles = append(handles, handle)
	}
	return handles
}

func (v loopView) Send(handle presence.Handle, frame []byte) bool {
	return v.h.send(handle, frame)
}
