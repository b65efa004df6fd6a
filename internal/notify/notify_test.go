package notify

import (
	"testing"
	"time"
)

func TestNotifyOverwrites(t *testing.T) {
	c := NewCenter(0)
	c.Notify("provider", "fetch failed")
	first, _ := c.Current()
	c.Notify("validation", "invalid temperature")

	n, ok := c.Current()
	if !ok {
		t.Fatal("expected a notification")
	}
	if n.Kind != "validation" || n.Message != "invalid temperature" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.ID == first.ID {
		t.Fatal("expected a fresh id")
	}

	// Dismissing an overwritten notification is a no-op.
	if c.Dismiss(first.ID) {
		t.Fatal("expected stale dismiss to fail")
	}
	if !c.Dismiss(n.ID) {
		t.Fatal("expected dismiss to succeed")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("expected no notification")
	}
}

func TestNotifyAutoDismiss(t *testing.T) {
	c := NewCenter(20 * time.Millisecond)
	c.Notify("auth", "sign-in failed")

	if _, ok := c.Current(); !ok {
		t.Fatal("expected a notification")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Current(); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected notification to be dismissed automatically")
}
