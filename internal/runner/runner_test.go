package runner

import (
	"context"
	"testing"
)

func TestExecCapturesOutput(t *testing.T) {
	r := Exec{}
	result, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2"}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "out\n" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if result.Stderr != "err\n" {
		t.Errorf("Stderr = %q", result.Stderr)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestExecReportsNonZeroExit(t *testing.T) {
	r := Exec{}
	result, err := r.Run(context.Background(), "sh", []string{"-c", "exit 7"}, Options{})
	if err != nil {
		t.Fatalf("non-zero exit should not be a Go error, got %v", err)
	}
	if result.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", result.ExitCode)
	}
}

func TestExecHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Exec{}
	_, err := r.Run(ctx, "sleep", []string{"5"}, Options{})
	if err == nil {
		t.Fatal("expected error for already-cancelled context")
	}
}

func TestExecUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := Exec{}
	result, err := r.Run(context.Background(), "pwd", nil, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := trimNewline(result.Stdout); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func TestFakeReturnsRegisteredResponse(t *testing.T) {
	f := NewFake()
	f.On("git", []string{"clone", "x"}, Result{Stdout: "done"}, nil)
	result, err := f.Run(context.Background(), "git", []string{"clone", "x"}, Options{Dir: "/tmp"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Stdout != "done" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if len(f.Calls) != 1 || f.Calls[0].Opts.Dir != "/tmp" {
		t.Errorf("call not recorded correctly: %+v", f.Calls)
	}
}

func TestFakeUnregisteredCallFails(t *testing.T) {
	f := NewFake()
	_, err := f.Run(context.Background(), "git", []string{"status"}, Options{})
	if err == nil {
		t.Fatal("expected error for unregistered invocation")
	}
}
