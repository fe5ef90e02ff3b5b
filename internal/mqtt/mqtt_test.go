package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/valve-supervisor/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventClosePulse,
		Attempt:   2,
		Counters:  logic.Counters{FakeClose: 2, CloseAttempts: 2},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"valve":{"timestamp":"2026-02-02T22:18:12Z","event":"CLOSE_PULSE","attempt":2,"fake_close":2,"close_attempts":2}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadAllEventTypes(t *testing.T) {
	types := []logic.EventType{
		logic.EventBreakDetected,
		logic.EventBreakCleared,
		logic.EventValveOpen,
		logic.EventValveClosed,
		logic.EventTriggerAsserted,
		logic.EventTriggerCleared,
		logic.EventClosePulse,
		logic.EventAttemptsExhausted,
	}

	for _, et := range types {
		t.Run(string(et), func(t *testing.T) {
			payload, err := FormatPayload(logic.Event{Timestamp: time.Now(), Type: et})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Valve.Event != string(et) {
				t.Errorf("expected event %s, got %s", et, parsed.Valve.Event)
			}
		})
	}
}

func TestFormatPayloadOmitsZeroAttempt(t *testing.T) {
	payload, err := FormatPayload(logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventValveOpen,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["valve"]["attempt"]; exists {
		t.Error("VALVE_OPEN should not have attempt field")
	}
	if _, exists := parsed["valve"]["fake_close"]; !exists {
		t.Error("counters should always be present")
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	payload, err := FormatPayload(logic.Event{
		Timestamp: time.Date(2026, 2, 2, 12, 0, 0, 0, loc),
		Type:      logic.EventValveClosed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Valve.Timestamp != "2026-02-02T10:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Valve.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "valve/supervisor/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "valve/supervisor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
		Event:     SystemShutdown,
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T12:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPayload(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: SystemStartup, RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     SystemOffline,
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     SystemReconnected,
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	events := []logic.Event{
		{Timestamp: time.Now(), Type: logic.EventValveOpen},
		{Timestamp: time.Now(), Type: logic.EventClosePulse, Attempt: 1},
	}
	for _, e := range events {
		if err := f.Publish(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := f.EventTypes()
	if len(got) != 2 || got[0] != logic.EventValveOpen || got[1] != logic.EventClosePulse {
		t.Errorf("unexpected events: %v", got)
	}
	if len(f.Payloads) != 2 {
		t.Errorf("expected 2 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(logic.Event{Type: logic.EventValveOpen}); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{Event: SystemHeartbeat}); err == nil {
		t.Error("expected publish system error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: SystemStartup, Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: SystemHeartbeat})

	if names := f.SystemEventNames(); len(names) != 2 || names[0] != SystemStartup || names[1] != SystemHeartbeat {
		t.Fatalf("unexpected system events: %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("first event should have Retained=true")
	}
	if f.SystemEvents[1].Retained {
		t.Error("second event should have Retained=false")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Event{Type: logic.EventValveOpen})
	f.PublishSystem(SystemEvent{Event: SystemStartup})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Events) != 0 || len(f.Payloads) != 0 || len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("expected recorded events cleared")
	}
	if f.Closed || f.IsConnected() {
		t.Error("expected flags cleared")
	}
}

// stubToken completes immediately with err.
type stubToken struct{ err error }

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t stubToken) Error() error { return t.err }

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// stubClient records publishes. Methods not overridden panic via the nil
// embedded interface.
type stubClient struct {
	paho.Client

	mu   sync.Mutex
	sent []sent
	err  error

	// onPublish, if set, runs after each recorded publish.
	onPublish func(n int)
}

func (c *stubClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return stubToken{err: c.err}
	}
	c.sent = append(c.sent, sent{topic: topic, qos: qos, retained: retained, payload: string(payload.([]byte))})
	n := len(c.sent)
	hook := c.onPublish
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return stubToken{}
}

func (c *stubClient) Disconnect(uint) {}

func newStubPublisher(c *stubClient) *RealPublisher {
	fixed := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	return &RealPublisher{
		client: c,
		buf:    newRingBuffer(4),
		now:    func() time.Time { return fixed },
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	if err := p.Publish(logic.Event{Type: logic.EventValveOpen}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: SystemStartup, Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Buffered() != 2 {
		t.Fatalf("expected 2 buffered, got %d", p.Buffered())
	}
	if len(c.sent) != 0 {
		t.Fatalf("nothing should be sent while disconnected, got %d", len(c.sent))
	}

	// First connection replays in order without RECONNECTED
	p.onConnect()
	if !p.IsConnected() {
		t.Error("expected connected after onConnect")
	}
	if p.Buffered() != 0 {
		t.Errorf("expected buffer drained, got %d", p.Buffered())
	}
	if len(c.sent) != 2 {
		t.Fatalf("expected 2 replayed, got %d", len(c.sent))
	}
	if c.sent[0].topic != Topic || c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("unexpected event message: %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 || !c.sent[1].retained {
		t.Errorf("unexpected system message: %+v", c.sent[1])
	}
}

func TestRealPublisherReconnectPublishesReconnected(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	p.onConnect()
	p.onConnectionLost(errors.New("EOF"))
	if p.IsConnected() {
		t.Error("expected disconnected after connection lost")
	}

	p.Publish(logic.Event{Type: logic.EventClosePulse, Attempt: 1})
	p.onConnect()

	if len(c.sent) != 2 {
		t.Fatalf("expected replay plus RECONNECTED, got %d", len(c.sent))
	}
	if c.sent[0].topic != Topic {
		t.Errorf("expected buffered event first, got %s", c.sent[0].topic)
	}
	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if c.sent[1].payload != expected {
		t.Errorf("unexpected reconnect payload:\ngot:  %s\nwant: %s", c.sent[1].payload, expected)
	}
}

func TestRealPublisherReplayKeepsOrder(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	p.Publish(logic.Event{Type: logic.EventValveOpen})
	p.Publish(logic.Event{Type: logic.EventTriggerAsserted})

	// A publish racing the replay must queue behind the buffered messages
	c.onPublish = func(n int) {
		if n == 1 {
			if p.IsConnected() {
				t.Error("should not report connected while replaying")
			}
			p.Publish(logic.Event{Type: logic.EventClosePulse, Attempt: 1})
		}
	}
	p.onConnect()

	if len(c.sent) != 3 {
		t.Fatalf("expected 3 sent, got %d", len(c.sent))
	}
	for i, want := range []string{"VALVE_OPEN", "TRIGGER_ASSERTED", "CLOSE_PULSE"} {
		if !strings.Contains(c.sent[i].payload, `"event":"`+want+`"`) {
			t.Errorf("message %d: got %s, want %s", i, c.sent[i].payload, want)
		}
	}
	if !p.IsConnected() || p.Buffered() != 0 {
		t.Errorf("after replay: connected=%v buffered=%d", p.IsConnected(), p.Buffered())
	}
}

func TestRealPublisherLostDuringReplay(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	p.Publish(logic.Event{Type: logic.EventValveOpen})
	c.onPublish = func(int) {
		p.onConnectionLost(errors.New("EOF"))
		p.Publish(logic.Event{Type: logic.EventValveClosed})
	}
	p.onConnect()

	if p.IsConnected() {
		t.Error("should stay disconnected after losing the connection mid-replay")
	}
	if p.Buffered() != 1 {
		t.Errorf("expected the later event kept for the next session, got %d", p.Buffered())
	}
}

func TestRealPublisherFailedSendIsBuffered(t *testing.T) {
	c := &stubClient{err: errors.New("not connected")}
	p := newStubPublisher(c)
	p.connected = true

	if err := p.Publish(logic.Event{Type: logic.EventValveOpen}); err == nil {
		t.Fatal("expected publish error")
	}
	if p.Buffered() != 1 {
		t.Errorf("expected failed message buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherClose(t *testing.T) {
	p := newStubPublisher(&stubClient{})
	p.onConnect()
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsConnected() {
		t.Error("expected disconnected after Close")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(logic.Event{Type: logic.EventValveOpen}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: SystemStartup}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if p.(ConnectionStatus).IsConnected() {
		t.Error("NopPublisher should never report connected")
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
