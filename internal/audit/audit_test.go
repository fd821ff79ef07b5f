package audit

import (
	"errors"
	"testing"
	"time"
)

func TestLoggerRecordsEvents(t *testing.T) {
	l := NewLogger(10)

	l.LogSession("s1", "open")
	l.LogDecrypt("s1", true, nil, 120*time.Millisecond)
	l.LogAggregate("s1", false, errors.New("query failed"), time.Millisecond)
	l.LogExport("s1", true, nil)

	events := l.Events()
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}

	if events[0].EventType != EventTypeSession || events[0].Operation != "open" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if !events[1].Success || events[1].EventType != EventTypeDecrypt {
		t.Errorf("unexpected decrypt event: %+v", events[1])
	}
	if events[2].Success || events[2].Error != "query failed" {
		t.Errorf("failure event did not capture the error: %+v", events[2])
	}
	if events[3].EventType != EventTypeExport || !events[3].Success {
		t.Errorf("unexpected export event: %+v", events[3])
	}
}

func TestLoggerBoundsRetention(t *testing.T) {
	l := NewLogger(5)
	for i := 0; i < 20; i++ {
		l.LogSession("s", "open")
	}
	if got := len(l.Events()); got != 5 {
		t.Errorf("retained %d events, want 5", got)
	}
}

func TestEventsReturnsCopy(t *testing.T) {
	l := NewLogger(5)
	l.LogSession("s1", "open")

	events := l.Events()
	events[0] = nil

	if l.Events()[0] == nil {
		t.Error("mutating the returned slice affected the logger")
	}
}
