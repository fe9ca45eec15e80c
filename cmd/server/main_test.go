package main

import (
	"context"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/config"
	"github.com/Wyydra/huddle/internal/core/domain"
)

func TestOpenStoreMemory(t *testing.T) {
	s, closeStore, err := openStore(context.Background(), config.StoreConfig{Backend: config.BackendMemory})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	m, _ := domain.NewMeeting("host", time.Now())
	if err := s.CreateMeeting(context.Background(), *m); err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	if _, _, err := openStore(context.Background(), config.StoreConfig{Backend: "etcd"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCallNeedsMeeting(t *testing.T) {
	cmd := newCallCmd()
	cfg = config.Default()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --meeting or --create")
	}
}
