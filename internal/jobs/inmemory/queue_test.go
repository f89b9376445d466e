package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.PipelineJob {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	ctx := context.Background()

	store := NewStore()
	queue := NewQueue(10, store)
	defer queue.Close()

	handler := func(ctx context.Context, job *jobs.PipelineJob) (string, error) {
		return "cleanup done", nil
	}
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.PipelineJob{Kind: jobs.JobKindCleanup}
	if err := queue.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Publish() did not assign a job ID")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Result != "cleanup done" {
		t.Errorf("Result = %q, want handler message", done.Result)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}
}

func TestQueueRecordsFailureWithoutRetry(t *testing.T) {
	ctx := context.Background()

	store := NewStore()
	queue := NewQueue(10, store)
	defer queue.Close()

	attempts := 0
	handler := func(ctx context.Context, job *jobs.PipelineJob) (string, error) {
		attempts++
		return "", errors.New("stage 2 blew up")
	}
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.PipelineJob{Kind: jobs.JobKindCategorization}
	if err := queue.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "stage 2 blew up" {
		t.Errorf("Error = %q, want handler error", failed.Error)
	}

	// Give a hypothetical retry a moment to (not) happen.
	time.Sleep(50 * time.Millisecond)
	if attempts != 1 {
		t.Errorf("handler ran %d times, want 1 (no automatic retries)", attempts)
	}
}

func TestQueuePublishAfterClose(t *testing.T) {
	ctx := context.Background()

	queue := NewQueue(1, NewStore())
	if err := queue.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	err := queue.Publish(ctx, &jobs.PipelineJob{Kind: jobs.JobKindCleanup})
	if err == nil {
		t.Error("Publish() after Close should fail")
	}
}

func TestQueueStopWaitsForInFlightJob(t *testing.T) {
	ctx := context.Background()

	store := NewStore()
	queue := NewQueue(10, store)

	release := make(chan struct{})
	handler := func(ctx context.Context, job *jobs.PipelineJob) (string, error) {
		<-release
		return "finished", nil
	}
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.PipelineJob{Kind: jobs.JobKindCleanup}
	if err := queue.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	waitForStatus(t, store, job.JobID, jobs.JobStatusRunning)

	stopDone := make(chan error, 1)
	go func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopDone <- queue.Stop(stopCtx)
	}()

	close(release)
	if err := <-stopDone; err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	done, err := store.GetJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if done.Status != jobs.JobStatusCompleted {
		t.Errorf("in-flight job status = %s, want completed", done.Status)
	}
}
