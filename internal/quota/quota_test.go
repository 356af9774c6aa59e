package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/casewatch/models"
)

func TestAdmitDoesNotMutate(t *testing.T) {
	s := NewSession("s", 10)
	for i := 0; i < 10; i++ {
		s.Record()
	}
	for i := 0; i < 3; i++ {
		if s.Admit() {
			t.Fatalf("expected session at limit to be rejected")
		}
	}
	if s.Count() != 10 || s.Remaining() != 0 {
		t.Fatalf("admit changed the session: count=%d", s.Count())
	}
}

func TestAdmitUpToLimit(t *testing.T) {
	s := NewSession("s", 10)
	for i := 0; i < 10; i++ {
		if !s.Admit() {
			t.Fatalf("admission %d rejected", i+1)
		}
		s.Record()
	}
	if s.Admit() {
		t.Fatalf("expected 11th admission rejected")
	}
}

func TestReserveIsAtomic(t *testing.T) {
	s := NewSession("s", 10)
	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Reserve(context.Background()) {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	if granted != 10 || s.Count() != 10 {
		t.Fatalf("expected exactly 10 reservations, got %d (count %d)", granted, s.Count())
	}
}

func TestDefaultLimit(t *testing.T) {
	if NewSession("s", 0).Limit() != DefaultLimit {
		t.Fatalf("expected default limit")
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(3, time.Hour)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	a := r.Create()
	b := r.Create()
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct ids")
	}
	got, err := r.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("expected session back, got %v %v", got, err)
	}
	if got.Limit() != 3 || got.Count() != 0 {
		t.Fatalf("unexpected new session state")
	}

	r.End(b.ID())
	if _, err := r.Get(b.ID()); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ended session gone, got %v", err)
	}

	r.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := r.Get(a.ID()); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected expired session gone, got %v", err)
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(10, time.Minute)
	base := time.Now()
	r.now = func() time.Time { return base }
	r.Create()
	r.Create()
	r.now = func() time.Time { return base.Add(30 * time.Second) }
	r.Create()

	r.now = func() time.Time { return base.Add(90 * time.Second) }
	if n := r.Sweep(); n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one live session, got %d", r.Len())
	}
}
