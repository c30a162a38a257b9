package dedup

import (
	"context"
	"sync"
	"testing"

	"support_server/core/domain"
)

func TestMemoryStoreClaimOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := domain.ProcessedThreadRecord{ThreadID: "t1", MessageID: "m1"}

	ok, err := s.Claim(ctx, rec)
	if err != nil || !ok {
		t.Fatalf("first Claim = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.Claim(ctx, rec)
	if err != nil || ok {
		t.Fatalf("second Claim = %v, %v; want false, nil", ok, err)
	}

	processed, err := s.IsProcessed(ctx, "m1")
	if err != nil || !processed {
		t.Fatalf("IsProcessed = %v, %v; want true, nil", processed, err)
	}
}

func TestMemoryStoreReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := domain.ProcessedThreadRecord{ThreadID: "t1", MessageID: "m1"}

	if ok, _ := s.Claim(ctx, rec); !ok {
		t.Fatal("claim failed")
	}
	if err := s.Release(ctx, "m1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if processed, _ := s.IsProcessed(ctx, "m1"); processed {
		t.Fatal("message still processed after release")
	}
	if ok, _ := s.Claim(ctx, rec); !ok {
		t.Fatal("reclaim after release failed")
	}
}

func TestMemoryStoreConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := domain.ProcessedThreadRecord{ThreadID: "t1", MessageID: "m1"}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.Claim(ctx, rec)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for ok := range wins {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}
