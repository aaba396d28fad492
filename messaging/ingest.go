package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"trackcore/config"
	"trackcore/realtime"
)

// Ingest bridges driver apps that report positions over MQTT into the
// hub's publish path. Topic layout is fleet/<driverID>/location; the topic
// segment wins over any driverId in the body so a device cannot spoof
// another driver by accident.
type Ingest struct {
	cfg  *config.MQTTConfig
	hub  *realtime.Hub
	conn mqtt.Client
}

func NewIngest(cfg *config.MQTTConfig, hub *realtime.Hub) *Ingest {
	return &Ingest{cfg: cfg, hub: hub}
}

func (in *Ingest) Start() error {
	if in.cfg.Broker == "" {
		return fmt.Errorf("no mqtt broker configured")
	}
	broker := fmt.Sprintf("tcp://%s:%d", in.cfg.Broker, in.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(in.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	in.conn = client

	sub := client.Subscribe(in.cfg.IngestTopic, 1, in.handleMessage)
	sub.Wait()
	if err := sub.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", in.cfg.IngestTopic, err)
	}
	log.Printf("messaging: mqtt ingest listening on %s", in.cfg.IngestTopic)
	return nil
}

func (in *Ingest) Stop() {
	if in.conn != nil && in.conn.IsConnected() {
		in.conn.Disconnect(250)
	}
}

func (in *Ingest) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	driverID := driverFromTopic(msg.Topic())
	if driverID == "" {
		log.Printf("messaging: ingest topic %q has no driver segment", msg.Topic())
		return
	}

	var ev realtime.DriverLocationEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		log.Printf("messaging: ingest decode from %s: %v", msg.Topic(), err)
		return
	}
	ev.DriverID = driverID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	in.hub.PublishDriverLocation(&ev)
}

// driverFromTopic extracts the driver id from fleet/<driverID>/location.
func driverFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
