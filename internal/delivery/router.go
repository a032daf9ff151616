package delivery

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/logger"
	"github.com/Tyrowin/nexus-chat-server/internal/metrics"
	"github.com/Tyrowin/nexus-chat-server/internal/presence"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

// Router persists message operations and fans the result out. Persistence
// is always attempted before the broadcast.
type Router struct {
	messages store.MessageStore
	users    store.UserStore
	fanout   Fanout
	timeout  time.Duration
	log      *zap.Logger
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Messages       store.MessageStore
	Users          store.UserStore
	Fanout         Fanout
	PersistTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter builds a Router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Router{
		messages: cfg.Messages,
		users:    cfg.Users,
		fanout:   cfg.Fanout,
		timeout:  cfg.PersistTimeout,
		log:      cfg.Logger.With(zap.String("component", "delivery")),
	}
}

func (r *Router) persist(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	metrics.PersistLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		metrics.PersistFailures.WithLabelValues(op).Inc()
	}
	return err
}

func (r *Router) publish(ctx context.Context, target Target, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.log.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	if err := r.fanout.Publish(ctx, Envelope{Target: target, Frame: frame}); err != nil {
		r.log.Error("publish frame", zap.String("event", event), zap.Error(err))
	}
}

// SendDirect persists a direct or media message and delivers it to every
// handle of the recipient and of the sender. When persistence fails the
// message is still delivered, without an _id, and the failure is returned.
func (r *Router) SendDirect(ctx context.Context, msg protocol.DirectMessage) (*store.Message, error) {
	rec := &store.Message{
		From:      msg.From,
		To:        msg.To,
		Text:      msg.Message,
		Timestamp: msg.Timestamp,
		Kind:      store.Kind(msg.Type),
		MediaKind: store.MediaKind(msg.MediaType),
	}

	var saved *store.Message
	err := r.persist(ctx, "createMessage", func(ctx context.Context) error {
		var err error
		saved, err = r.messages.CreateMessage(ctx, rec)
		return err
	})

	out := msg
	out.ID = ""
	if err != nil {
		r.log.Warn("message not persisted, delivering without id",
			zap.String("from", msg.From), zap.String("to", msg.To), zap.Error(err))
	} else {
		out.ID = saved.ID
	}

	r.publish(ctx, Target{Users: []string{msg.To, msg.From}}, protocol.EventReceiveMessage, out)
	return saved, err
}

// SendGroup persists a group message and delivers it to the connections
// subscribed to the room. Degraded delivery applies as for SendDirect.
func (r *Router) SendGroup(ctx context.Context, msg protocol.GroupMessage) (*store.Message, error) {
	rec := &store.Message{
		From:      msg.From,
		To:        msg.RoomID,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		Kind:      store.KindGroup,
	}

	var saved *store.Message
	err := r.persist(ctx, "createGroupMessage", func(ctx context.Context) error {
		var err error
		saved, err = r.messages.CreateMessage(ctx, rec)
		return err
	})

	out := msg
	out.ID = ""
	if err != nil {
		r.log.Warn("group message not persisted, delivering without id",
			zap.String("room", msg.RoomID), zap.String("from", msg.From), zap.Error(err))
	} else {
		out.ID = saved.ID
	}

	r.publish(ctx, Target{Room: msg.RoomID}, protocol.EventReceiveGroupMessage, out)
	return saved, err
}

func (r *Router) delete(ctx context.Context, messageID string) error {
	err := r.persist(ctx, "deleteMessage", func(ctx context.Context) error {
		return r.messages.DeleteMessage(ctx, messageID)
	})
	if errors.Is(err, store.ErrNotFound) {
		r.log.Debug("delete of unknown message", zap.String("message", messageID))
		return nil
	}
	return err
}

// DeleteGroup deletes a message and notifies the room. Deleting an unknown
// id succeeds and still notifies.
func (r *Router) DeleteGroup(ctx context.Context, messageID, roomID string) error {
	if err := r.delete(ctx, messageID); err != nil {
		r.log.Error("delete group message", zap.String("message", messageID), zap.Error(err))
		return err
	}
	r.publish(ctx, Target{Room: roomID}, protocol.EventGroupMessageDeleted,
		protocol.MessageDeleted{MessageID: messageID})
	return nil
}

// DeletePrivate deletes a direct message and notifies both participants.
// requester is the deleting user's id; when the connection never joined,
// origin alone is notified on that side.
func (r *Router) DeletePrivate(ctx context.Context, requester string, origin presence.Handle, messageID, to string) error {
	if err := r.delete(ctx, messageID); err != nil {
		r.log.Error("delete private message", zap.String("message", messageID), zap.Error(err))
		return err
	}
	target := Target{Users: []string{to}}
	if origin != "" {
		target.Handles = []presence.Handle{origin}
	}
	if requester != "" {
		target.Users = append(target.Users, requester)
	}
	r.publish(ctx, target, protocol.EventPrivateMessageDeleted,
		protocol.MessageDeleted{MessageID: messageID})
	return nil
}

// UpdateAvatar persists a new avatar and announces it to every connection.
// Nothing is broadcast when the write fails.
func (r *Router) UpdateAvatar(ctx context.Context, update protocol.AvatarUpdate) error {
	err := r.persist(ctx, "setAvatar", func(ctx context.Context) error {
		return r.users.SetAvatar(ctx, update.UserID, update.NewAvatar)
	})
	if err != nil {
		r.log.Error("avatar not persisted", zap.String("user", update.UserID), zap.Error(err))
		return err
	}
	r.publish(ctx, Target{All: true}, protocol.EventUserAvatarUpdated, update)
	return nil
}

// UserOnline implements presence.Notifier.
func (r *Router) UserOnline(userID string) {
	metrics.PresenceTransitions.WithLabelValues(string(store.StatusOnline)).Inc()
	metrics.UsersOnline.Inc()
	r.publish(context.Background(), Target{All: true}, protocol.EventUserOnline, userID)
}

// UserOffline implements presence.Notifier.
func (r *Router) UserOffline(userID string) {
	metrics.PresenceTransitions.WithLabelValues(string(store.StatusOffline)).Inc()
	metrics.UsersOnline.Dec()
	r.publish(context.Background(), Target{All: true}, protocol.EventUserOffline, userID)
}
