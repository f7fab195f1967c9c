package authkit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "login_success", AccountID: "acct-1", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "login_success" || event.AccountID != "acct-1" {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}
	d.Close()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.Events():
		default:
			t.Fatalf("event %d not drained before close returned", i)
		}
	}
}

// blockingSink parks the dispatcher worker until released.
type blockingSink struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	s.started <- struct{}{}
	<-s.release
}

func TestDispatcherDropsUnderBackpressure(t *testing.T) {
	sink := &blockingSink{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()

	// First event is picked up by the worker and blocks inside the sink.
	d.Emit(ctx, AuditEvent{EventType: "a"})
	<-sink.started

	// Second fills the buffer, third has nowhere to go.
	d.Emit(ctx, AuditEvent{EventType: "b"})
	d.Emit(ctx, AuditEvent{EventType: "c"})

	if got := d.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	close(sink.release)
	d.Close()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config should not start a dispatcher")
	}

	// Nil receivers are safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count should be 0")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		EventType: "login_rejected",
		AccountID: "acct-1",
		Error:     "invalid_credentials",
		Metadata:  map[string]string{"remember": "false"},
	})

	line := buf.String()
	if line == "" || line[len(line)-1] != '\n' {
		t.Fatalf("output %q not newline terminated", line)
	}

	var decoded AuditEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.EventType != "login_rejected" || decoded.Error != "invalid_credentials" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestEngineEmitsAuditEvents(t *testing.T) {
	sink := NewChannelSink(32)
	_, client := newTestRedis(t)

	cfg := testConfig()
	dir := newMockDirectory()
	mailer := &mockMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithDirectory(dir).
		WithEmailSender(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	ctx = WithUserAgent(ctx, "test-agent")

	if _, err := engine.Login(ctx, "nobody", "whatever pass", false); err != nil {
		t.Fatalf("login: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != "login_rejected" {
			t.Fatalf("event type = %s", event.EventType)
		}
		if event.Success {
			t.Fatal("rejected login should not be marked success")
		}
		if event.IP != "203.0.113.9" || event.UserAgent != "test-agent" {
			t.Fatalf("context fields = %q / %q", event.IP, event.UserAgent)
		}
		if event.Error != "invalid_credentials" {
			t.Fatalf("error code = %q", event.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("no audit event delivered")
	}
}
