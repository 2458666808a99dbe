package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

func TestJobStore_SaveListDelete(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	now := time.Now()

	late := &domain.ConfirmationJob{ID: "b", TxID: "tx2", NotBefore: now.Add(time.Minute), State: domain.JobScheduled}
	early := &domain.ConfirmationJob{ID: "a", TxID: "tx1", NotBefore: now, State: domain.JobScheduled}

	if err := store.Save(ctx, late); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, early); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Save replaces by id.
	early.Attempts = 3
	store.Save(ctx, early)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "a" || jobs[0].Attempts != 3 {
		t.Errorf("unexpected first job %+v", jobs[0])
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of missing job should succeed, got %v", err)
	}

	jobs, _ = store.List(ctx)
	if len(jobs) != 1 || jobs[0].ID != "b" {
		t.Errorf("expected only job b, got %+v", jobs)
	}
}

func TestJobStore_Claim(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	ok, err := store.Claim(ctx, "missing", time.Minute)
	if err != nil || ok {
		t.Fatalf("claim of missing job: ok=%v err=%v", ok, err)
	}

	job := &domain.ConfirmationJob{ID: "a", TxID: "tx1", State: domain.JobScheduled}
	store.Save(ctx, job)

	if ok, _ := store.Claim(ctx, "a", time.Minute); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := store.Claim(ctx, "a", time.Minute); ok {
		t.Fatal("second claim should fail while the lease is held")
	}

	// Saving the running state keeps the lease.
	job.State = domain.JobRunning
	store.Save(ctx, job)
	if ok, _ := store.Claim(ctx, "a", time.Minute); ok {
		t.Fatal("running save must not release the lease")
	}

	// Scheduling a retry releases it.
	job.State = domain.JobRetryScheduled
	store.Save(ctx, job)
	if ok, _ := store.Claim(ctx, "a", time.Minute); !ok {
		t.Fatal("claim should succeed after the retry was saved")
	}

	store.Save(ctx, &domain.ConfirmationJob{ID: "b", TxID: "tx2", State: domain.JobScheduled})
	store.Claim(ctx, "b", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if ok, _ := store.Claim(ctx, "b", time.Minute); !ok {
		t.Fatal("claim should succeed after the lease expired")
	}
}

func TestJobStore_Get(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	store.Save(ctx, &domain.ConfirmationJob{ID: "a", TxID: "tx1", Attempts: 2})

	got, err := store.Get(ctx, "a")
	if err != nil || got.Attempts != 2 {
		t.Fatalf("Get: %+v %v", got, err)
	}
	store.Delete(ctx, "a")
	if _, err := store.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestJobStore_InvalidInput(t *testing.T) {
	if err := NewJobStore().Save(context.Background(), &domain.ConfirmationJob{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeEventStore_AppendAndGet(t *testing.T) {
	store := NewTradeEventStore()
	ctx := context.Background()
	now := time.Now()

	store.Append(ctx, &domain.TradeEvent{TradeID: "t1", Stage: domain.StageLanded, OccurredAt: now.Add(time.Second)})
	store.Append(ctx, &domain.TradeEvent{TradeID: "t1", Stage: domain.StagePending, OccurredAt: now})
	store.Append(ctx, &domain.TradeEvent{TradeID: "t2", Stage: domain.StagePending, OccurredAt: now})

	events, err := store.GetByTradeID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByTradeID failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Stage != domain.StagePending || events[1].Stage != domain.StageLanded {
		t.Errorf("unexpected order: %s, %s", events[0].Stage, events[1].Stage)
	}

	if err := store.Append(ctx, &domain.TradeEvent{TradeID: "t3"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing stage, got %v", err)
	}
}
