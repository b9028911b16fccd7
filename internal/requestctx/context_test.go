package requestctx

import (
	"context"
	"testing"
)

func TestNewFallsBackToDevice(t *testing.T) {
	rc := New(" dev-1 ", "", "s1", "10.0.0.1")
	if rc.UserID != "dev-1" {
		t.Fatalf("expected user fallback to device, got %q", rc.UserID)
	}
	if rc.RateKey() != "device:dev-1" {
		t.Fatalf("unexpected rate key %q", rc.RateKey())
	}
}

func TestRateKeyUsesClientIPWithoutDevice(t *testing.T) {
	rc := New("", "", "", "10.0.0.9")
	if rc.RateKey() != "ip:10.0.0.9" {
		t.Fatalf("unexpected rate key %q", rc.RateKey())
	}
	var empty *Context
	if empty.RateKey() != "" {
		t.Fatalf("nil context should have empty key")
	}
}

func TestContextRoundTrip(t *testing.T) {
	rc := New("dev", "user", "", "")
	ctx := WithContext(context.Background(), rc)
	got, ok := FromContext(ctx)
	if !ok || got != rc {
		t.Fatalf("expected context to round trip")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected missing context")
	}
}
