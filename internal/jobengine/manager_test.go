package jobengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"silexa/mcp-supervisor/internal/installer"
	"silexa/mcp-supervisor/internal/registry"
)

type stubInstaller struct {
	result installer.Result
	err    error
	delay  chan struct{}
}

func (s stubInstaller) Install(ctx context.Context, slug string, logger installer.Logger) (installer.Result, error) {
	logger.Log(installer.StageValidation, installer.LogInfo, "starting")
	logger.Progress(installer.StageValidation, 100)
	if s.delay != nil {
		select {
		case <-s.delay:
		case <-ctx.Done():
			return installer.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

type stubIntegrator struct {
	entry registry.ServerEntry
	err   error
}

func (s stubIntegrator) Register(slug string, result installer.Result, sourceKind registry.SourceKind, uri string) (registry.ServerEntry, error) {
	return s.entry, s.err
}

func waitForTerminal(t *testing.T, m *Manager, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if snap.Status == StatusCompleted || snap.Status == StatusFailed || snap.Status == StatusCancelled {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return Snapshot{}
}

func TestCreateStartCompletes(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()

	id := m.Create("demo", registry.SourceJSPackage, "example-mcp", stubInstaller{result: installer.Result{EntryCommand: "node"}})
	if err := m.Start(context.Background(), id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := waitForTerminal(t, m, id)
	if snap.Status != StatusCompleted {
		t.Fatalf("Status = %s, want Completed", snap.Status)
	}
	if snap.OverallProgress != 100 {
		t.Errorf("OverallProgress = %v, want 100", snap.OverallProgress)
	}
	if len(snap.Logs) == 0 {
		t.Error("expected at least one log entry")
	}
}

func TestStartFailsOverCapacity(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()
	m.maxConcurrency = 1

	blockCh := make(chan struct{})
	id1 := m.Create("a", registry.SourceGit, "uri", stubInstaller{delay: blockCh})
	if err := m.Start(context.Background(), id1); err != nil {
		t.Fatal(err)
	}

	id2 := m.Create("b", registry.SourceGit, "uri", stubInstaller{})
	if err := m.Start(context.Background(), id2); err == nil {
		t.Fatal("expected capacity error")
	}
	close(blockCh)
	waitForTerminal(t, m, id1)
}

func TestInstallerFailureMarksJobFailed(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()

	id := m.Create("demo", registry.SourceGit, "uri", stubInstaller{err: fmt.Errorf("boom")})
	if err := m.Start(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	snap := waitForTerminal(t, m, id)
	if snap.Status != StatusFailed {
		t.Fatalf("Status = %s, want Failed", snap.Status)
	}
	if snap.Err == "" {
		t.Error("expected error message recorded")
	}
}

func TestCancelMarksJobCancelled(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()

	blockCh := make(chan struct{})
	id := m.Create("demo", registry.SourceGit, "uri", stubInstaller{delay: blockCh})
	if err := m.Start(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if err := m.Cancel(id); err != nil {
		t.Fatal(err)
	}
	snap := waitForTerminal(t, m, id)
	if snap.Status != StatusCancelled {
		t.Fatalf("Status = %s, want Cancelled", snap.Status)
	}
}

func TestCancelPendingJobTransitionsDirectly(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()
	m.maxConcurrency = 1

	blockCh := make(chan struct{})
	running := m.Create("a", registry.SourceGit, "uri", stubInstaller{delay: blockCh})
	if err := m.Start(context.Background(), running); err != nil {
		t.Fatal(err)
	}

	pending := m.Create("b", registry.SourceGit, "uri", stubInstaller{})
	if err := m.Cancel(pending); err != nil {
		t.Fatal(err)
	}
	snap, err := m.Get(pending)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != StatusCancelled {
		t.Fatalf("Status = %s, want Cancelled", snap.Status)
	}
	if snap.EndedAt.IsZero() {
		t.Error("expected EndedAt to be set")
	}

	close(blockCh)
	waitForTerminal(t, m, running)
}

func TestFinalizeInvokesIntegrator(t *testing.T) {
	wantEntry := registry.ServerEntry{Slug: "demo"}
	m := NewManager(stubIntegrator{entry: wantEntry})
	defer m.Close()

	id := m.Create("demo", registry.SourceJSPackage, "example-mcp", stubInstaller{result: installer.Result{EntryCommand: "node"}})
	if err := m.Start(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, m, id)

	entry, err := m.Finalize(id)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if entry.Slug != "demo" {
		t.Errorf("entry.Slug = %q", entry.Slug)
	}
}

func TestFinalizeRejectsNonCompletedJob(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()

	id := m.Create("demo", registry.SourceGit, "uri", stubInstaller{})
	if _, err := m.Finalize(id); err == nil {
		t.Fatal("expected error finalizing a pending job")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()

	m.Create("a", registry.SourceGit, "uri", stubInstaller{})
	id2 := m.Create("b", registry.SourceGit, "uri", stubInstaller{})
	if err := m.Start(context.Background(), id2); err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, m, id2)

	completed := StatusCompleted
	snaps := m.List(&completed)
	if len(snaps) != 1 || snaps[0].ID != id2 {
		t.Fatalf("List(Completed) = %+v", snaps)
	}
}

func TestReapRemovesOldTerminalJobs(t *testing.T) {
	m := NewManager(stubIntegrator{})
	defer m.Close()
	m.retention = time.Millisecond

	id := m.Create("demo", registry.SourceGit, "uri", stubInstaller{})
	if err := m.Start(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, m, id)
	time.Sleep(5 * time.Millisecond)

	m.reap()
	if _, err := m.Get(id); err == nil {
		t.Fatal("expected job to have been reaped")
	}
}
