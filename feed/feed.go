// Package feed consumes the realtime change feed for a scope's entities and
// forwards normalized events to the board engine. The transport is Redis
// pub/sub with one channel per scope and entity type; payloads are validated
// here so only the closed insert/update/delete union reaches the engine.
package feed

import (
	"context"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"choreboard/domain"
)

// wireEvent is the loosely typed payload the backend publishes. It is
// normalized into a domain.ChangeEvent before leaving this package.
type wireEvent struct {
	Kind       string                 `json:"kind"`
	EntityType string                 `json:"entityType"`
	ID         string                 `json:"id"`
	Row        sonic.NoCopyRawMessage `json:"row,omitempty"`
	Time       int64                  `json:"time,omitempty"`
}

func channelName(scope, entityType string) string {
	return "changes:" + scope + ":" + entityType
}

// Config holds the feed transport settings.
type Config struct {
	Client         *redis.Client
	Logger         *log.Logger
	ReconnectDelay time.Duration
}

// Feed subscribes to change notifications for one entity type.
type Feed[E domain.Entity[E]] struct {
	cfg        Config
	entityType string
}

func New[E domain.Entity[E]](cfg Config, entityType string) *Feed[E] {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Feed[E]{cfg: cfg, entityType: entityType}
}

type subscription struct{ cancel context.CancelFunc }

func (s *subscription) Close() error {
	s.cancel()
	return nil
}

// Subscribe starts delivering normalized change events for the scope.
// onHealth reports connect/disconnect transitions; a dropped connection is
// retried until the subscription is closed. Events are delivered in feed
// order on a single goroutine.
func (f *Feed[E]) Subscribe(scope string, onEvent func(domain.ChangeEvent[E]), onHealth func(bool)) (io.Closer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	go f.run(ctx, scope, onEvent, onHealth)
	return &subscription{cancel: cancel}, nil
}

func (f *Feed[E]) run(ctx context.Context, scope string, onEvent func(domain.ChangeEvent[E]), onHealth func(bool)) {
	channel := channelName(scope, f.entityType)
	logger := f.cfg.Logger.WithFields(log.Fields{"scope": scope, "channel": channel})
	for {
		sub := f.cfg.Client.Subscribe(ctx, channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Error("change feed subscribe failed")
			onHealth(false)
			if !sleepCtx(ctx, f.cfg.ReconnectDelay) {
				return
			}
			continue
		}
		onHealth(true)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				f.dispatch(logger, msg.Payload, onEvent)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("change feed channel closed, reconnecting")
		onHealth(false)
		if !sleepCtx(ctx, f.cfg.ReconnectDelay) {
			return
		}
	}
}

// dispatch normalizes one raw payload. Malformed payloads are logged and
// dropped; they never reach the engine.
func (f *Feed[E]) dispatch(logger *log.Entry, payload string, onEvent func(domain.ChangeEvent[E])) {
	var wire wireEvent
	if err := sonic.UnmarshalString(payload, &wire); err != nil {
		logger.WithError(err).Error("unable to parse change event")
		return
	}
	kind := domain.ChangeKind(wire.Kind)
	if !kind.Valid() || wire.ID == "" {
		logger.WithFields(log.Fields{"kind": wire.Kind, "id": wire.ID}).Error("dropping malformed change event")
		return
	}
	if wire.EntityType != "" && wire.EntityType != f.entityType {
		return
	}
	ev := domain.ChangeEvent[E]{Kind: kind, ID: wire.ID}
	if kind != domain.ChangeDelete {
		if len(wire.Row) == 0 {
			logger.WithField("id", wire.ID).Error("change event missing row payload")
			return
		}
		var row E
		if err := sonic.Unmarshal(wire.Row, &row); err != nil {
			logger.WithError(err).WithField("id", wire.ID).Error("unable to decode row payload")
			return
		}
		ev.Row = row.WithEntityID(wire.ID)
	}
	onEvent(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
