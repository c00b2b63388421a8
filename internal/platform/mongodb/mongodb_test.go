package mongodb

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestClientOptions(t *testing.T) {
	co, err := ClientOptions(Options{
		URI:            "mongodb://localhost:27017",
		ConnectTimeout: 2 * time.Second,
		AppName:        "records-server",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if co.ConnectTimeout == nil || *co.ConnectTimeout != 2*time.Second {
		t.Errorf("expected connect timeout 2s, got %v", co.ConnectTimeout)
	}
	if co.ServerSelectionTimeout == nil || *co.ServerSelectionTimeout != 2*time.Second {
		t.Errorf("expected server selection timeout 2s, got %v", co.ServerSelectionTimeout)
	}
	if co.AppName == nil || *co.AppName != "records-server" {
		t.Errorf("expected app name, got %v", co.AppName)
	}
}

func TestClientOptions_InvalidURI(t *testing.T) {
	if _, err := ClientOptions(Options{URI: "postgres://localhost"}); err == nil {
		t.Error("expected error for non-mongo scheme")
	}
}

func TestConnect_Integration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, db, err := Connect(ctx, Options{URI: uri, Database: "records_connect_test", ConnectTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(context.Background())
	if db.Name() != "records_connect_test" {
		t.Errorf("unexpected database %s", db.Name())
	}
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := Connect(ctx, Options{URI: "mongodb://127.0.0.1:1", Database: "x", ConnectTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
