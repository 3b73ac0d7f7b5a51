package report

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	json "github.com/goccy/go-json"
	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/qspi"
)

// MQTT publishes each annotation as a JSON Record to a broker topic with
// QoS 0.
type MQTT struct {
	client  *mqtt.Client
	flags   mqtt.PacketFlags
	pubVar  mqtt.VariablesPublish
	timeout time.Duration
	conn    net.Conn
}

// MQTTConfig configures the annotation publisher.
type MQTTConfig struct {
	// Broker address as host:port.
	Broker   string
	ClientID string
	Topic    string
	// Timeout for connecting and for each publish. Zero means 5 seconds.
	Timeout time.Duration
}

// DialMQTT connects to the broker and returns a publisher.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	if cfg.Topic == "" {
		return nil, errors.New("report: empty mqtt topic")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "qspidecode"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Broker)
	if err != nil {
		return nil, err
	}
	m, err := newMQTT(ctx, conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func newMQTT(ctx context.Context, conn net.Conn, cfg MQTTConfig) (*MQTT, error) {
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return nil, err
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, r io.Reader) error {
			// Publish only, discard anything the broker sends our way.
			_, err := io.Copy(io.Discard, r)
			return err
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(cfg.ClientID))
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	err = client.Connect(ctx, conn, &varconn)
	if err != nil {
		return nil, err
	}
	return &MQTT{
		client:  client,
		flags:   flags,
		pubVar:  mqtt.VariablesPublish{TopicName: []byte(cfg.Topic)},
		timeout: cfg.Timeout,
		conn:    conn,
	}, nil
}

func (m *MQTT) Annotate(a qspi.Annotation) error {
	payload, err := json.Marshal(NewRecord(a))
	if err != nil {
		return err
	}
	m.conn.SetDeadline(time.Now().Add(m.timeout))
	m.pubVar.PacketIdentifier++
	return m.client.PublishPayload(m.flags, m.pubVar, payload)
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	err := m.client.Disconnect(errors.New("qspi: decode finished"))
	return errors.Join(err, m.conn.Close())
}
