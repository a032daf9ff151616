// Package relay spreads delivery envelopes across server processes over
// NATS. Every process publishes to one subject and subscribes to it, so an
// event reaches connections wherever they are attached. Whether a user is
// online anywhere is counted in Redis, not here.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/delivery"
	"github.com/Tyrowin/nexus-chat-server/internal/logger"
)

// DefaultSubject is used when Config.Subject is empty.
const DefaultSubject = "nexus.fanout"

// Config describes the NATS connection.
type Config struct {
	Servers       []string
	Name          string
	Subject       string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATS implements delivery.Fanout.
type NATS struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	deliver func(delivery.Envelope)
	log     *zap.Logger
}

// Dial connects to NATS and subscribes; deliver is called on the NATS
// callback goroutine for every envelope and must hand off quickly.
func Dial(cfg Config, deliver func(delivery.Envelope), log *zap.Logger) (*NATS, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(zap.String("component", "relay"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}

	r := &NATS{nc: nc, subject: cfg.Subject, deliver: deliver, log: log}
	sub, err := nc.Subscribe(cfg.Subject, r.handle)
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "subscribe %s", cfg.Subject)
	}
	r.sub = sub
	return r, nil
}

func (r *NATS) handle(msg *nats.Msg) {
	var env delivery.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.log.Warn("dropping malformed envelope", zap.Error(err))
		return
	}
	if len(env.Frame) == 0 {
		r.log.Warn("dropping envelope without frame")
		return
	}
	r.deliver(env)
}

// Publish implements delivery.Fanout.
func (r *NATS) Publish(ctx context.Context, env delivery.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return errors.Wrapf(r.nc.Publish(r.subject, data), "publish %s", r.subject)
}

// Close drains the subscription and the connection.
func (r *NATS) Close() error {
	if r.sub != nil {
		_ = r.sub.Drain()
	}
	return r.nc.Drain()
}
