package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/induction/core/monitoring"
	coremqtt "github.com/kilianp07/induction/core/mqtt"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0644); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.WriteFile(caFile, certPEM, 0644); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	return
}

func useMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 {
		t.Fatalf("no certs loaded")
	}
	if tlsCfg.RootCAs == nil {
		t.Fatalf("no root CAs")
	}
	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatalf("expected error for missing files")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", AuthMethod: "tls"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "" {
		t.Fatalf("username set for tls auth")
	}
}

func TestPublishQoSAndRetain(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: 1, Retain: true})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Publish("depot/MUT/schedule", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].qos != 1 || !mc.published[0].retained {
		t.Fatalf("qos or retain not applied: %+v", mc.published)
	}
	if mc.published[0].topic != "depot/MUT/schedule" {
		t.Fatalf("unexpected topic %s", mc.published[0].topic)
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	cli, err := NewPahoClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	cli.Disconnect()
	if !mc.disconnected {
		t.Fatalf("disconnect not forwarded")
	}
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestPlannerStatusTopic(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "planner", TopicPrefix: "metro"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if mc.opts.WillTopic != "metro/planner/status" || string(mc.opts.WillPayload) != StatusOffline || !mc.opts.WillRetained {
		t.Fatalf("default will not set: %s %q", mc.opts.WillTopic, mc.opts.WillPayload)
	}
	cli.Disconnect()
	want := []publishCall{
		{topic: "metro/planner/status", qos: 1, retained: true, payload: StatusOnline},
		{topic: "metro/planner/status", qos: 1, retained: true, payload: StatusOffline},
	}
	if len(mc.published) != 2 || mc.published[0] != want[0] || mc.published[1] != want[1] {
		t.Fatalf("unexpected status publishes: %+v", mc.published)
	}
	if !mc.disconnected {
		t.Fatalf("disconnect not forwarded")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	useMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Publish("t", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries")
	}
}

type recordMonitor struct {
	coremon.NopMonitor
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}

func TestPublishErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	useMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.Publish("depot/MUT/alerts", []byte("x")); err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["topic"] != "depot/MUT/alerts" || mon.tags["module"] != "mqtt" {
		t.Fatalf("tags not set")
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	var cli PahoClient
	if err := cli.Publish("t", nil); err != coremqtt.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// mockClient implements paho.Client for tests
type mockClient struct {
	opts         *paho.ClientOptions
	published    []publishCall
	publishErrs  []error
	disconnected bool
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	m.published = append(m.published, publishCall{topic, qos, retained, body})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }
