// Package notify delivers prayer alerts to screens and speakers over MQTT
// and to browsers over websockets.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	NotificationTopic = "athan/notifications"
	AudioTopic        = "athan/audio"
	PrayerTimesTopic  = "athan/prayer-times"

	publishQoS     = 1
	publishTimeout = 5 * time.Second
	disconnectWait = 250
)

// Broker is a connected MQTT client the sinks publish through.
type Broker struct {
	client mqtt.Client
}

var messagePubHandler mqtt.MessageHandler = func(client mqtt.Client, msg mqtt.Message) {
	log.Debug().Str("topic", msg.Topic()).Bytes("payload", msg.Payload()).Msg("received mqtt message")
}

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	log.Info().Msg("connected to MQTT broker")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("MQTT connection lost")
}

// Connect dials brokerURL (e.g. tcp://localhost:1883). The client
// reconnects on its own after the first successful connection.
func Connect(brokerURL, clientID string) (*Broker, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetDefaultPublishHandler(messagePubHandler)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().Str("broker", brokerURL).Str("client_id", clientID).Msg("MQTT client initialized")
	return &Broker{client: client}, nil
}

// Connected reports whether the connection to the broker is currently up.
func (b *Broker) Connected() bool {
	return b != nil && b.client != nil && b.client.IsConnectionOpen()
}

// Publish sends payload as JSON to topic and waits for the broker to
// acknowledge it.
func (b *Broker) Publish(ctx context.Context, topic string, payload any) error {
	if !b.Connected() {
		return fmt.Errorf("publish to %s: MQTT broker not connected", topic)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	token := b.client.Publish(topic, publishQoS, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).Msg("message published via MQTT")
	return nil
}

func (b *Broker) Close() {
	if b == nil || b.client == nil {
		return
	}
	b.client.Disconnect(disconnectWait)
	log.Info().Msg("MQTT client disconnected")
}
