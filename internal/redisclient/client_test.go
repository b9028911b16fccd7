package redisclient

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kruthika/companion/internal/config"
)

func TestNewParsesURLAndPings(t *testing.T) {
	server := miniredis.RunT(t)

	client := New(config.RedisConfig{URL: "redis://" + server.Addr(), DB: 2, PoolSize: 4})
	defer client.Close()

	if client.Options().DB != 2 || client.Options().PoolSize != 4 {
		t.Fatalf("unexpected options: %+v", client.Options())
	}
	if err := Ping(context.Background(), client); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewFallsBackToRawAddress(t *testing.T) {
	server := miniredis.RunT(t)

	client := New(config.RedisConfig{URL: server.Addr()})
	defer client.Close()

	if err := Ping(context.Background(), client); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := server.Get("k"); err != nil || got != "v" {
		t.Fatalf("expected value stored, got %q (%v)", got, err)
	}
}

func TestPingFailsWhenServerDown(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	client := New(config.RedisConfig{URL: addr})
	defer client.Close()
	if err := Ping(context.Background(), client); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestNewTreatsPathAsUnixSocket(t *testing.T) {
	client := New(config.RedisConfig{URL: "/var/run/redis.sock"})
	defer client.Close()

	if got := client.Options().Network; got != "unix" {
		t.Fatalf("expected unix network, got %q", got)
	}
	if got := client.Options().Addr; got != "/var/run/redis.sock" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	server := miniredis.RunT(t)
	client := New(config.RedisConfig{URL: "redis://" + server.Addr()})
	defer client.Close()

	check := HealthCheck(client)
	if err := check(context.Background()); err != nil {
		t.Fatalf("healthy server: %v", err)
	}
	server.Close()
	if err := check(context.Background()); err == nil {
		t.Fatalf("expected error after shutdown")
	}
	if err := HealthCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestMaintHandshakeDetection(t *testing.T) {
	ctx := context.Background()
	if !isMaintHandshake(redis.NewStatusCmd(ctx, "client", "maint_notifications", "on")) {
		t.Fatalf("expected handshake to be detected")
	}
	if isMaintHandshake(redis.NewStatusCmd(ctx, "client", "setname", "x")) {
		t.Fatalf("unexpected match for CLIENT SETNAME")
	}
	if isMaintHandshake(redis.NewStatusCmd(ctx, "ping")) {
		t.Fatalf("unexpected match for PING")
	}
}
