package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/logger"
)

// Publisher mirrors control-action and stream-session lifecycle events to
// an MQTT broker for external dashboards. QoS 0, fire and forget.
type Publisher struct {
	client mqtt.Client
	prefix string
}

// NewPublisher connects to the broker; a broker that is down at startup
// is a hard error so misconfiguration surfaces immediately.
func NewPublisher(brokerURL string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("pm2gate-%d", time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("Connected to MQTT broker", "broker", brokerURL)
	return &Publisher{
		client: client,
		prefix: "pm2gate",
	}, nil
}

func (p *Publisher) PublishAction(ctx context.Context, rec domain.ActionRecord) error {
	event := map[string]interface{}{
		"type":    "action",
		"payload": rec,
	}
	return p.publish(rec.Process, event)
}

func (p *Publisher) PublishSession(ctx context.Context, process, event, sessionID string) error {
	payload := map[string]interface{}{
		"type": "session",
		"payload": map[string]string{
			"process": process,
			"event":   event,
			"session": sessionID,
		},
	}
	return p.publish(process, payload)
}

func (p *Publisher) publish(process string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Topic: pm2gate/events/{process}
	topic := fmt.Sprintf("%s/events/%s", p.prefix, process)
	p.client.Publish(topic, 0, false, data)
	return nil
}
