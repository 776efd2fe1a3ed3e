package queue

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/manicule/manicule/internal/pubsub"
	"github.com/manicule/manicule/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedRepo(t *testing.T, db *store.DB) *store.Repository {
	t.Helper()
	owner, err := db.UpsertInstallation("acme", 1001, "Organization")
	if err != nil {
		t.Fatal(err)
	}
	repo, err := db.EnsureRepository(owner.ID, "acme", "widgets")
	if err != nil {
		t.Fatal(err)
	}
	return repo
}

type stubDownloader struct {
	path  string
	err   error
	calls int
}

func (s *stubDownloader) Download(_ context.Context, _ *store.IndexJob) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.path, nil
}

type stubRunner struct {
	err   error
	calls int
	paths []string
}

func (s *stubRunner) Run(_ context.Context, _ int64, path string) error {
	s.calls++
	s.paths = append(s.paths, path)
	return s.err
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEnqueueAndGuards(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	q := NewQueue(db, nil, discard())

	job, err := q.Enqueue(repo, 1001, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.RepoID != repo.ID || job.MaxAttempts != 3 {
		t.Fatalf("job = %+v", job)
	}

	// A second enqueue while the first is pending is rejected.
	if _, err := q.Enqueue(repo, 1001, 3, false); !errors.Is(err, ErrIndexingInProgress) {
		t.Fatalf("err = %v, want ErrIndexingInProgress", err)
	}

	// Once the repository is fully indexed, further enqueues are rejected
	// even with no active job.
	if err := db.CompleteJob(job.ID); err != nil {
		t.Fatal(err)
	}
	for _, s := range []store.IndexStatus{store.StatusDownloading, store.StatusDownloaded, store.StatusIndexing, store.StatusCompleted} {
		if err := db.SetIndexStatus(repo.ID, s, ""); err != nil {
			t.Fatal(err)
		}
	}
	done, err := db.GetRepository(repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(done, 1001, 3, false); !errors.Is(err, ErrAlreadyIndexed) {
		t.Fatalf("err = %v, want ErrAlreadyIndexed", err)
	}
}

func TestEnqueuePublishesWakeup(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	broker := pubsub.NewBroker[store.IndexJob]()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wake := broker.Subscribe(ctx)

	q := NewQueue(db, broker, discard())
	job, err := q.Enqueue(repo, 1001, 3, true)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-wake:
		if evt.Payload.ID != job.ID || !evt.Payload.Hybrid {
			t.Fatalf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no wakeup published")
	}
}

func newTestPool(db *store.DB, dl Downloader, r *stubRunner) *Pool {
	return NewPool(db, dl, r, nil, discard())
}

func TestProcessHappyPath(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	q := NewQueue(db, nil, discard())
	if _, err := q.Enqueue(repo, 1001, 3, false); err != nil {
		t.Fatal(err)
	}

	dl := &stubDownloader{path: filepath.Join(t.TempDir(), "stage")}
	runner := &stubRunner{}
	p := newTestPool(db, dl, runner)

	job, err := db.ClaimJob(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	p.process(context.Background(), discard(), job)

	if dl.calls != 1 || runner.calls != 1 {
		t.Fatalf("downloader=%d runner=%d calls", dl.calls, runner.calls)
	}
	if runner.paths[0] != dl.path {
		t.Errorf("runner got path %q, want %q", runner.paths[0], dl.path)
	}

	got, err := db.GetRepository(repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IndexStatus != store.StatusCompleted {
		t.Errorf("index status = %q", got.IndexStatus)
	}
	if got.LastIndexedAt == nil {
		t.Error("last_indexed_at not set")
	}

	done, err := db.ListJobs(store.JobDone)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 {
		t.Errorf("done jobs = %d", len(done))
	}
}

func TestProcessFailureReschedules(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	q := NewQueue(db, nil, discard())
	if _, err := q.Enqueue(repo, 1001, 3, false); err != nil {
		t.Fatal(err)
	}

	dl := &stubDownloader{err: errors.New("tree fetch failed")}
	p := newTestPool(db, dl, &stubRunner{})

	job, err := db.ClaimJob(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	p.process(context.Background(), discard(), job)

	got, err := db.GetRepository(repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IndexStatus != store.StatusFailed {
		t.Errorf("index status = %q", got.IndexStatus)
	}
	if got.ErrorMessage == "" {
		t.Error("error message not recorded")
	}

	pending, err := db.ListJobs(store.JobPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending jobs = %d, want rescheduled job", len(pending))
	}
	if pending[0].LastError == "" {
		t.Error("last error not recorded on reschedule")
	}
}

func TestProcessDeadLettersAfterMaxAttempts(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	q := NewQueue(db, nil, discard())
	if _, err := q.Enqueue(repo, 1001, 1, false); err != nil {
		t.Fatal(err)
	}

	var deadLettered *store.IndexJob
	dl := &stubDownloader{err: errors.New("permanent failure")}
	p := NewPool(db, dl, &stubRunner{}, nil, discard(),
		WithDeadLetterFunc(func(job *store.IndexJob, _ string) { deadLettered = job }))

	job, err := db.ClaimJob(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	p.process(context.Background(), discard(), job)

	dead, err := db.ListJobs(store.JobDead)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 {
		t.Fatalf("dead jobs = %d", len(dead))
	}
	if deadLettered == nil || deadLettered.ID != job.ID {
		t.Error("dead letter callback not invoked")
	}

	// The slot is free for a manual re-trigger.
	got, err := db.GetRepository(repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(got, 1001, 3, false); err != nil {
		t.Fatalf("re-enqueue after dead letter: %v", err)
	}
}

func TestFailedRepoCanBeRequeuedAndComplete(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	q := NewQueue(db, nil, discard())
	if _, err := q.Enqueue(repo, 1001, 3, false); err != nil {
		t.Fatal(err)
	}

	dl := &stubDownloader{err: errors.New("flaky network")}
	runner := &stubRunner{}
	p := newTestPool(db, dl, runner)

	job, err := db.ClaimJob(time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	p.process(context.Background(), discard(), job)

	// Second attempt succeeds after the transient failure clears.
	dl.err = nil
	dl.path = t.TempDir()
	p.now = func() time.Time { return time.Now().Add(time.Minute) }

	job, err = db.ClaimJob(p.now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if job.Attempts != 2 {
		t.Fatalf("attempts = %d", job.Attempts)
	}
	p.process(context.Background(), discard(), job)

	got, err := db.GetRepository(repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IndexStatus != store.StatusCompleted {
		t.Errorf("index status = %q", got.IndexStatus)
	}
}

func TestAbandonedRunningJobIsReclaimed(t *testing.T) {
	db := openTestDB(t)
	repo := seedRepo(t, db)
	q := NewQueue(db, nil, discard())
	if _, err := q.Enqueue(repo, 1001, 3, false); err != nil {
		t.Fatal(err)
	}

	// A worker claims the job and its process dies before finishing. The
	// repository is now blocked: the job is neither claimable nor done.
	if _, err := db.ClaimJob(time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(repo, 1001, 3, false); !errors.Is(err, ErrIndexingInProgress) {
		t.Fatalf("err = %v, want ErrIndexingInProgress", err)
	}

	dl := &stubDownloader{path: t.TempDir()}
	runner := &stubRunner{}
	p := NewPool(db, dl, runner, nil, discard(),
		WithWorkers(1), WithPollInterval(10*time.Millisecond), WithLeaseWindow(time.Minute))
	// A fresh pool starting well past the lease window.
	p.now = func() time.Time { return time.Now().Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		done, err := db.ListJobs(store.JobDone)
		if err != nil {
			t.Fatal(err)
		}
		if len(done) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned job was never reclaimed and completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if active, err := db.HasActiveJob(repo.ID); err != nil || active {
		t.Fatalf("repository should no longer be blocked, active=%v err=%v", active, err)
	}
}

func TestSecurePath(t *testing.T) {
	cases := map[string]bool{
		"src/app.ts":       true,
		"deep/a/b/c.go":    true,
		"../escape.go":     false,
		"/abs.go":          false,
		"a/../../break.go": false,
		"a\\b.go":          false,
	}
	for rel, ok := range cases {
		_, err := securePath("/staging/root", rel)
		if ok && err != nil {
			t.Errorf("securePath(%q) unexpected error: %v", rel, err)
		}
		if !ok && err == nil {
			t.Errorf("securePath(%q) should fail", rel)
		}
	}
}
