package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"monitora-dashboard/internal/client"
	"monitora-dashboard/internal/dashboard"
	"monitora-dashboard/internal/db"
)

func TestSinkStopsBeforeDatabaseCloses(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}

	sk := newSink(nil, database, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go sk.Run(ctx)

	sk.Listen(dashboard.Update{
		Page:     dashboard.PageDashboard,
		Resource: client.ResourceMetrics,
		Err:      errors.New("connection refused"),
		At:       time.Now(),
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		failures, err := database.RecentFailures(10)
		if err != nil {
			t.Fatalf("RecentFailures: %v", err)
		}
		if len(failures) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("failure was not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		sk.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not exit after cancel")
	}

	// the sink is gone, so closing the database now cannot race a write
	sk.Listen(dashboard.Update{Resource: client.ResourceMetrics, Err: errors.New("late")})
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sk.updates) != 1 {
		t.Errorf("late update consumed by a stopped sink")
	}
}
