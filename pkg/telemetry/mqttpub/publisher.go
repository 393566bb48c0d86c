// Package mqttpub streams telemetry samples and fault records to an MQTT
// broker for off-board logging and gait-lab tooling.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/opensourceleg/go-osl/internal/log"
	"github.com/opensourceleg/go-osl/pkg/safety"
	"github.com/opensourceleg/go-osl/pkg/telemetry"
)

// Config selects the broker and topic layout.
type Config struct {
	Broker   string `json:"broker"` // e.g. "tcp://localhost:1883"
	ClientID string `json:"client_id"`

	TopicSamples string `json:"topic_samples"` // e.g. "osl/knee/samples"
	TopicFaults  string `json:"topic_faults"`  // e.g. "osl/knee/faults"

	// Decimate publishes every Nth sample. At a 1 kHz loop, 10 gives the
	// broker 100 Hz. Zero means every sample.
	Decimate int `json:"decimate"`
}

// Publisher drains a Recorder subscription into MQTT. It runs entirely off
// the control thread; a slow or absent broker costs samples, never ticks.
type Publisher struct {
	cfg    Config
	client mqtt.Client
}

// New connects to the broker.
func New(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	log.Info("connected to mqtt broker", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return &Publisher{cfg: cfg, client: client}, nil
}

// Run publishes samples from the subscription until ctx is canceled or the
// channel closes. Call in a goroutine.
func (p *Publisher) Run(ctx context.Context, samples <-chan telemetry.Sample) {
	decimate := p.cfg.Decimate
	if decimate < 1 {
		decimate = 1
	}

	var n int
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			n++
			if n%decimate != 0 {
				continue
			}
			payload, err := json.Marshal(s)
			if err != nil {
				log.Error("sample marshal error", "error", err)
				continue
			}
			if token := p.client.Publish(p.cfg.TopicSamples, 0, false, payload); token.Wait() && token.Error() != nil {
				log.Warn("mqtt publish error", "topic", p.cfg.TopicSamples, "error", token.Error())
			}
		}
	}
}

// PublishFault sends a fault record, retained so late subscribers see the
// most recent fault.
func (p *Publisher) PublishFault(rec safety.FaultRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error("fault marshal error", "error", err)
		return
	}
	if token := p.client.Publish(p.cfg.TopicFaults, 1, true, payload); token.Wait() && token.Error() != nil {
		log.Warn("mqtt publish error", "topic", p.cfg.TopicFaults, "error", token.Error())
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
