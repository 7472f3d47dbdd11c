package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultQoS byte = 1

const (
	publishTimeout      = 5 * time.Second
	disconnectQuiesce   = 250
	defaultConnectTries = 5
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	MaxRetries  int
}

// publishClient is the subset of mqtt.Client used for publishing.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events to <prefix>/<event type>.
type MQTTPublisher struct {
	client publishClient
	prefix string
	log    *zap.Logger
}

// NewMQTTPublisher wraps an already-connected client.
func NewMQTTPublisher(client publishClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    zap.L().With(zap.String("component", "events")),
	}
}

// ConnectMQTT dials the broker with exponential backoff and returns a publisher.
// The connection is closed when ctx is done.
func ConnectMQTT(ctx context.Context, cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	tries := cfg.MaxRetries
	if tries <= 0 {
		tries = defaultConnectTries
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			zap.L().Warn("events: broker connect failed",
				zap.String("broker", cfg.BrokerURL),
				zap.Error(token.Error()),
			)
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(tries-1)), ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "events: connect to %s", cfg.BrokerURL)
	}

	zap.L().Info("events: connected to broker", zap.String("broker", cfg.BrokerURL))

	p := NewMQTTPublisher(client, cfg.TopicPrefix)
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	return p, nil
}

// Topic returns the topic an event type is published on.
func (p *MQTTPublisher) Topic(typ string) string {
	if p.prefix == "" {
		return typ
	}
	return p.prefix + "/" + typ
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}

	token := p.client.Publish(p.Topic(evt.Type), defaultQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "events: publish")
	case <-time.After(publishTimeout):
		return eris.Errorf("events: publish %s timed out", evt.Type)
	}
	if err := token.Error(); err != nil {
		return eris.Wrapf(err, "events: publish %s", evt.Type)
	}

	p.log.Debug("event published", zap.String("topic", p.Topic(evt.Type)))
	return nil
}

// Close disconnects from the broker if still connected.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesce)
		p.log.Info("broker connection closed")
	}
}

// Emit publishes evt and logs failures. Callers invoke it after releasing
// their own locks.
func Emit(ctx context.Context, pub Publisher, evt Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil {
		zap.L().Warn("events: publish failed",
			zap.String("type", evt.Type),
			zap.Error(err),
		)
	}
}
