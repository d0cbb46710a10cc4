package feed

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"choreboard/domain"
)

// Publisher turns successful row writes into change feed messages. It plays
// the role the managed backend's replication log plays in production and
// satisfies storage.Notifier. Publish failures are logged, never escalated:
// a lost notification degrades freshness, not correctness.
type Publisher struct {
	client *redis.Client
	logger *log.Logger
}

func NewPublisher(client *redis.Client, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) Notify(ctx context.Context, scope, entityType string, kind domain.ChangeKind, id string, row any) {
	wire := wireEvent{
		Kind:       string(kind),
		EntityType: entityType,
		ID:         id,
		Time:       time.Now().UnixMilli(),
	}
	if row != nil {
		data, err := sonic.Marshal(row)
		if err != nil {
			p.logger.WithError(err).WithField("id", id).Error("unable to encode change event row")
			return
		}
		wire.Row = data
	}
	payload, err := sonic.Marshal(wire)
	if err != nil {
		p.logger.WithError(err).WithField("id", id).Error("unable to encode change event")
		return
	}
	if err := p.client.Publish(ctx, channelName(scope, entityType), payload).Err(); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{"scope": scope, "id": id}).Error("change event publish failed")
	}
}
