package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/induction/core/monitoring"
	coremqtt "github.com/kilianp07/induction/core/mqtt"
	"github.com/kilianp07/induction/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool        `json:"enabled"`
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	AuthMethod  string      `json:"auth_method"`
	QoS         byte        `json:"qos"`
	Retain      bool        `json:"retain"`
	LWTTopic    string      `json:"lwt_topic"`
	LWTPayload  string      `json:"lwt_payload"`
	LWTQoS      byte        `json:"lwt_qos"`
	LWTRetain   bool        `json:"lwt_retain"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// pahoClient is the subset of paho.Client used by PahoClient.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Planner availability payloads published retained on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusTopic returns the topic carrying the planner availability.
func StatusTopic(prefix string) string { return prefix + "/planner/status" }

// PahoClient implements coremqtt.Client using Eclipse Paho.
type PahoClient struct {
	cli        pahoClient
	qos        byte
	retain     bool
	status     string
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var _ coremqtt.Client = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{
		logger:     logger,
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}

	pc.status = statusTopic(cfg)
	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if pc.status != "" {
			c.Publish(pc.status, 1, true, StatusOnline)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	switch {
	case cfg.LWTTopic != "":
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	case cfg.TopicPrefix != "":
		opts.SetWill(StatusTopic(cfg.TopicPrefix), StatusOffline, 1, true)
	}
	return opts, nil
}

// statusTopic is the availability topic maintained by the client, empty
// when an explicit last will replaces it.
func statusTopic(cfg Config) string {
	if cfg.LWTTopic != "" || cfg.TopicPrefix == "" {
		return ""
	}
	return StatusTopic(cfg.TopicPrefix)
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// Publish sends payload to topic, retrying with exponential backoff.
// The final failure is reported to the monitor.
func (p *PahoClient) Publish(topic string, payload []byte) error {
	if p.cli == nil {
		return coremqtt.ErrNotConnected
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return publishErr
}

// Disconnect marks the planner offline and closes the connection. A clean
// disconnect does not fire the last will.
func (p *PahoClient) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if p.status != "" {
		if !p.cli.Publish(p.status, 1, true, StatusOffline).WaitTimeout(time.Second) {
			p.logger.Warnf("offline status not acknowledged")
		}
	}
	p.cli.Disconnect(250)
}
