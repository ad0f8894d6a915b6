package supervisor

import (
	"testing"
	"time"

	"silexa/mcp-supervisor/internal/layout"
	"silexa/mcp-supervisor/internal/registry"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *FakeSpawner, layout.Layout) {
	t.Helper()
	dataDir := t.TempDir()
	l := layout.New(dataDir)
	store, err := registry.Open(l.RegistryPath())
	if err != nil {
		t.Fatal(err)
	}
	sup := New(store, l)
	fake := &FakeSpawner{}
	sup.spawn = fake
	return sup, fake, l
}

func seedEntry(t *testing.T, sup *Supervisor, slug string, restartPolicy registry.RestartPolicy, maxRestarts int) {
	t.Helper()
	entry := registry.ServerEntry{
		Slug: slug,
		Name: slug,
		Source: registry.Source{Kind: registry.SourceGit, URI: "https://example.com/" + slug},
		Runtime: registry.Runtime{Kind: registry.RuntimeNode},
		Entry: registry.Entry{
			Transport: registry.TransportStdio,
			Command:   "node",
			Args:      []string{"server.js"},
		},
		Health: registry.Health{
			ProbeKind:     registry.TransportStdio,
			IntervalSec:   30,
			TimeoutSec:    10,
			RestartPolicy: restartPolicy,
			MaxRestarts:   maxRestarts,
		},
	}
	if err := sup.store.Upsert(entry); err != nil {
		t.Fatal(err)
	}
}

func TestStartTransitionsToRunning(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)

	child := NewFakeChild(1234)
	fake.Enqueue(child)

	if err := sup.Start("demo"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := sup.Info("demo")
		if err != nil {
			t.Fatal(err)
		}
		if info.State == StateRunning {
			if info.PID != 1234 {
				t.Errorf("PID = %d, want 1234", info.PID)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("process did not reach Running")
}

func TestStartThreadsPerEntryHealthInterval(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)

	child := NewFakeChild(1234)
	fake.Enqueue(child)

	if err := sup.Start("demo"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sup.mu.RLock()
	proc := sup.procs["demo"]
	sup.mu.RUnlock()

	proc.mu.Lock()
	got := proc.HealthIntervalSec
	proc.mu.Unlock()
	if got != 30 {
		t.Errorf("HealthIntervalSec = %d, want 30 (from seeded entry)", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)
	fake.Enqueue(NewFakeChild(1))

	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}
	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}
	if len(fake.spawned) != 1 {
		t.Errorf("spawned %d times, want 1", len(fake.spawned))
	}
}

func TestStopWaitsForAcknowledgement(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)

	child := NewFakeChild(1)
	fake.Enqueue(child)
	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}

	waitForState(t, sup, "demo", StateRunning)

	done := make(chan struct{})
	go func() {
		_ = sup.Stop("demo", 2*time.Second)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned before child exited")
	case <-time.After(50 * time.Millisecond):
	}
	child.Exit(nil)
	<-done

	info, err := sup.Info("demo")
	if err != nil {
		t.Fatal(err)
	}
	if info.State != StateStopped {
		t.Errorf("State = %s, want Stopped", info.State)
	}
	if info.PID != 0 {
		t.Errorf("PID = %d, want 0", info.PID)
	}
}

func TestStopForceKillsAfterGrace(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)

	child := NewFakeChild(1)
	fake.Enqueue(child)
	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}
	waitForState(t, sup, "demo", StateRunning)

	if err := sup.Stop("demo", 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	child.mu.Lock()
	killed := child.killed
	child.mu.Unlock()
	if killed == 0 {
		t.Error("expected forced kill after grace elapsed")
	}
}

func TestRestartPolicyNeverStaysStoppedAfterExit(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartNever, 5)

	child := NewFakeChild(1)
	fake.Enqueue(child)
	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}
	waitForState(t, sup, "demo", StateRunning)

	child.Exit(nil)
	waitForState(t, sup, "demo", StateStopped)

	if len(fake.spawned) != 1 {
		t.Errorf("spawned %d times, want 1 (restartPolicy=never)", len(fake.spawned))
	}
}

func TestSetEnvAppliesOnNextStart(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)

	if err := sup.SetEnv("demo", map[string]string{"FOO": "bar"}); err != nil {
		t.Fatal(err)
	}

	entry, err := sup.store.Find("demo")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Entry.Env["FOO"] != "bar" {
		t.Errorf("registry entry.env = %v", entry.Entry.Env)
	}

	fake.Enqueue(NewFakeChild(1))
	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}
	waitForState(t, sup, "demo", StateRunning)

	if len(fake.spawned) != 1 || fake.spawned[0].Env["FOO"] != "bar" {
		t.Errorf("spawned entry = %+v", fake.spawned)
	}
}

func TestStatsCountsByState(t *testing.T) {
	sup, fake, _ := newTestSupervisor(t)
	defer sup.Shutdown(time.Second)
	seedEntry(t, sup, "demo", registry.RestartAlways, 5)

	fake.Enqueue(NewFakeChild(1))
	if err := sup.Start("demo"); err != nil {
		t.Fatal(err)
	}
	waitForState(t, sup, "demo", StateRunning)

	stats := sup.Stats()
	if stats.TotalProcesses != 1 {
		t.Errorf("TotalProcesses = %d", stats.TotalProcesses)
	}
	if stats.Running != 1 {
		t.Errorf("Running = %d", stats.Running)
	}
	if stats.TotalStarts != 1 {
		t.Errorf("TotalStarts = %d", stats.TotalStarts)
	}
}

func waitForState(t *testing.T, sup *Supervisor, slug string, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, err := sup.Info(slug)
		if err != nil {
			t.Fatal(err)
		}
		if info.State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("slug %q did not reach state %s in time", slug, want)
}
