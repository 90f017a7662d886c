// Package telemetry publishes player activity and server status to an MQTT
// broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/voxelgate/internal/config"
	"github.com/energizer-project/voxelgate/internal/events"
	"github.com/energizer-project/voxelgate/internal/protocol"
	"github.com/energizer-project/voxelgate/internal/util"
)

// MQTT topics
const (
	TopicAdmin   = "voxelgate/admin"
	TopicStatus  = "voxelgate/status"
	TopicPlayers = "voxelgate/players"
	TopicChat    = "voxelgate/chat"
	TopicPlugin  = "voxelgate/plugin"
	TopicLogin   = "voxelgate/login"
)

// AppVersion is reported in every message.
const AppVersion = "1.0.0"

// publisher is the part of mqtt.Client the handler uses.
type publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTHandler forwards bus events to the broker.
type MQTTHandler struct {
	mu sync.Mutex

	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	pub      publisher

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates the handler from the mqtt section of cfg.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	handler := newHandler(mqttCfg, eventBus, systemMetadata(sysInfo))

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("voxelgate-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	handler.pub = handler.client

	return handler, nil
}

func newHandler(cfg config.MQTTConfig, eventBus *events.EventBus, metadata map[string]interface{}) *MQTTHandler {
	return &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: metadata,
	}
}

func systemMetadata(sysInfo util.SystemInfo) map[string]interface{} {
	return map[string]interface{}{
		"hostname":     sysInfo.Hostname,
		"os":           sysInfo.OS,
		"cpu_model":    sysInfo.CPUModel,
		"cpu_cores":    sysInfo.CPUCores,
		"memory_mb":    sysInfo.TotalMemory,
		"app_version":  AppVersion,
		"game_version": protocol.VersionName,
	}
}

func buildTLSConfig(mqttCfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	// mTLS: load client certificate
	if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if mqttCfg.CAFile != "" {
		pem, err := os.ReadFile(mqttCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", mqttCfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// Start connects to the broker, forwards events until ctx is cancelled and
// then disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.eventBus.UnsubscribeAll("mqtt")
	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.SubscribeAll("mqtt", h.onEvent)
}

// topicFor routes an event type to its topic. Events with no topic are not
// published.
func topicFor(t events.EventType) (string, bool) {
	switch t {
	case events.EventPlayerJoin, events.EventPlayerLeave, events.EventPlayerKicked:
		return TopicPlayers, true
	case events.EventPlayerChat, events.EventBroadcast:
		return TopicChat, true
	case events.EventPluginMessage:
		return TopicPlugin, true
	case events.EventLoginFailed:
		return TopicLogin, true
	case events.EventServerStatus:
		return TopicStatus, true
	case events.EventConfigChanged:
		return TopicAdmin, true
	}
	return "", false
}

func (h *MQTTHandler) onEvent(ctx context.Context, event events.Event) error {
	topic, ok := topicFor(event.Type)
	if !ok {
		return nil
	}
	h.publish(topic, map[string]interface{}{
		"event":   string(event.Type),
		"payload": event.Payload,
	})
	return nil
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	h.mu.Lock()
	pub := h.pub
	h.mu.Unlock()

	if pub == nil || !pub.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := pub.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// PublishHeartbeat publishes a liveness message with the given status.
func (h *MQTTHandler) PublishHeartbeat(status interface{}) {
	h.publish(TopicAdmin, map[string]interface{}{
		"event":  "heartbeat",
		"status": status,
	})
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// IsConnected reports whether the broker connection is up.
func (h *MQTTHandler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pub != nil && h.pub.IsConnected()
}
