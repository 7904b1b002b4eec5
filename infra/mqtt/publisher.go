package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/induction/core/events"
	coremon "github.com/kilianp07/induction/core/monitoring"
	coremqtt "github.com/kilianp07/induction/core/mqtt"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/infra/logger"
	"github.com/kilianp07/induction/internal/eventbus"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// DefaultTopicPrefix is the root of every planning topic.
const DefaultTopicPrefix = "depot"

// ScheduleMessage is the payload published on <prefix>/<depot>/schedule.
// Assignments reflect manual overrides.
type ScheduleMessage struct {
	ScheduleID  string               `json:"scheduleId"`
	DepotID     string               `json:"depotId"`
	Date        string               `json:"date"`
	Status      schedule.Status      `json:"status"`
	Event       schedule.EntryKind   `json:"event"`
	Assignments schedule.Assignments `json:"assignments"`
	Bays        map[string]string    `json:"bays"`
	Cleaning    []string             `json:"cleaning"`
	Version     int                  `json:"version"`
	At          time.Time            `json:"at"`
}

// AlertMessage is the payload published on <prefix>/<depot>/alerts when a
// planning run produced no schedule.
type AlertMessage struct {
	DepotID string              `json:"depotId"`
	Date    string              `json:"date"`
	Code    schedule.ResultCode `json:"code,omitempty"`
	Reason  string              `json:"reason"`
	At      time.Time           `json:"at"`
}

// ScheduleTopic returns the topic carrying the schedule of a depot.
func ScheduleTopic(prefix, depotID string) string {
	return fmt.Sprintf("%s/%s/schedule", prefix, depotID)
}

// AlertTopic returns the topic carrying planning alerts of a depot.
func AlertTopic(prefix, depotID string) string {
	return fmt.Sprintf("%s/%s/alerts", prefix, depotID)
}

// StartSchedulePublisher subscribes to the event bus and mirrors schedule
// changes and failed runs to MQTT. It stops when the context is canceled
// or the bus is closed.
func StartSchedulePublisher(ctx context.Context, bus eventbus.EventBus, client Client, prefix string) {
	if bus == nil || client == nil {
		return
	}
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	log := logger.New("mqtt_publisher")
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		defer coremon.Recover(map[string]string{"module": "mqtt_publisher"})
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				topic, payload, err := encode(prefix, ev)
				if err != nil {
					log.Errorf("encode event: %v", err)
					continue
				}
				if topic == "" {
					continue
				}
				if err := client.Publish(topic, payload); err != nil {
					log.Errorf("publish %s: %v", topic, err)
				}
			}
		}
	}()
}

func encode(prefix string, ev eventbus.Event) (string, []byte, error) {
	switch e := ev.(type) {
	case events.ScheduleEvent:
		if e.Schedule == nil {
			return "", nil, nil
		}
		s := e.Schedule
		msg := ScheduleMessage{
			ScheduleID:  s.ID,
			DepotID:     s.DepotID,
			Date:        s.Date.Format(time.DateOnly),
			Status:      s.Status,
			Event:       e.Entry.Kind,
			Assignments: s.Effective(),
			Bays:        s.Bays,
			Cleaning:    s.Cleaning,
			Version:     s.Version,
			At:          e.Entry.At,
		}
		b, err := json.Marshal(msg)
		return ScheduleTopic(prefix, s.DepotID), b, err
	case events.RunEvent:
		if e.Schedule != nil {
			return "", nil, nil
		}
		msg := AlertMessage{DepotID: e.DepotID, Date: e.Date.Format(time.DateOnly), Code: e.Code, Reason: e.Reason, At: e.At}
		if msg.Reason == "" && e.Err != nil {
			msg.Reason = e.Err.Error()
		}
		b, err := json.Marshal(msg)
		return AlertTopic(prefix, e.DepotID), b, err
	}
	return "", nil, nil
}

// MockClient records published messages. It is used in tests and when no
// broker is configured for a dry run.
type MockClient struct {
	mu       sync.Mutex
	Messages map[string][][]byte
	Fail     error
}

// NewMockClient creates a new MockClient.
func NewMockClient() *MockClient {
	return &MockClient{Messages: make(map[string][][]byte)}
}

// Publish records the payload or returns the configured failure.
func (m *MockClient) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.Messages[topic] = append(m.Messages[topic], append([]byte(nil), payload...))
	return nil
}

// Last returns the most recent payload sent to topic.
func (m *MockClient) Last(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Messages[topic]
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}
