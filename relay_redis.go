package guestws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRelayPrefix  = "guestws:"
	defaultRelayTimeout = 2 * time.Second
)

// relayEnvelope wraps a notification with the publishing instance so subscribers can
// tell several watchers of the same identity apart.
type relayEnvelope struct {
	InstanceID   string       `json:"instance_id"`
	Identity     string       `json:"identity"`
	Notification Notification `json:"notification"`
}

// RedisPublisher is the subset of *redis.Client the relay needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisRelay republishes every notification it receives on a Redis pub/sub channel.
// Register Handle as a consumer.
type RedisRelay struct {
	logger     Logger
	client     RedisPublisher
	channel    string
	identity   string
	instanceID string
	timeout    time.Duration
}

func NewRedisRelay(logger Logger, client RedisPublisher, prefix, identity string) *RedisRelay {
	if prefix == "" {
		prefix = defaultRelayPrefix
	}
	return &RedisRelay{
		logger:     logger.WithField("component", "redis_relay"),
		client:     client,
		channel:    prefix + "notifications",
		identity:   identity,
		instanceID: uuid.New().String(),
		timeout:    defaultRelayTimeout,
	}
}

func (r *RedisRelay) Channel() string { return r.channel }

func (r *RedisRelay) InstanceID() string { return r.instanceID }

// Handle publishes n. Failures are logged; a relay never breaks dispatch.
func (r *RedisRelay) Handle(n Notification) {
	if err := r.Publish(context.Background(), n); err != nil {
		r.logger.Errorf("cannot relay %s notification: %s", n.Kind, err)
	}
}

func (r *RedisRelay) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(relayEnvelope{
		InstanceID:   r.instanceID,
		Identity:     r.identity,
		Notification: n,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.Publish(ctx, r.channel, data).Err()
}
