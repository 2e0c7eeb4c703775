package runner

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestResolveExecutableMissing(t *testing.T) {
	_, err := ResolveExecutable("llama-server-missing", t.TempDir())
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("expected ErrExecutableNotFound, got %v", err)
	}
	if _, err := ResolveExecutable("   ", ""); !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("blank name: expected ErrExecutableNotFound, got %v", err)
	}
}

func TestResolveExecutableInAppDir(t *testing.T) {
	dir := t.TempDir()
	want := writeExecutable(t, dir, "llama-server")

	got, err := ResolveExecutable("llama-server", dir)
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if got != want {
		t.Errorf("ResolveExecutable = %q, want %q", got, want)
	}
}

func TestResolveExecutablePrefersAppDirOverPath(t *testing.T) {
	appDir := t.TempDir()
	pathDir := t.TempDir()
	want := writeExecutable(t, appDir, "llama-server")
	writeExecutable(t, pathDir, "llama-server")
	t.Setenv("PATH", pathDir)

	got, err := ResolveExecutable("llama-server", appDir)
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if got != want {
		t.Errorf("ResolveExecutable = %q, want app dir copy %q", got, want)
	}
}

func TestResolveExecutableFromPath(t *testing.T) {
	pathDir := t.TempDir()
	want := writeExecutable(t, pathDir, "llama-server")
	t.Setenv("PATH", pathDir)

	got, err := ResolveExecutable("llama-server", t.TempDir())
	if err != nil {
		t.Fatalf("ResolveExecutable: %v", err)
	}
	if !strings.EqualFold(got, want) {
		t.Errorf("ResolveExecutable = %q, want %q", got, want)
	}
}

func TestResolveExecutableAbsolute(t *testing.T) {
	dir := t.TempDir()
	want := writeExecutable(t, dir, "server")
	got, err := ResolveExecutable(want, "")
	if err != nil || got != want {
		t.Fatalf("ResolveExecutable(%q) = %q, %v", want, got, err)
	}
	if _, err := ResolveExecutable(filepath.Join(dir, "nope"), ""); !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("missing absolute path: %v", err)
	}
}

func TestResolveExecutableIgnoresDirsAndPlainFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "llama-server-dir"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveExecutable("llama-server-dir", dir); !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("a directory must not resolve as the executable: %v", err)
	}

	if runtime.GOOS == "windows" {
		return
	}
	other := t.TempDir()
	if err := os.WriteFile(filepath.Join(other, "plain"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveExecutable("plain", other); !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("non-executable file resolved: %v", err)
	}
}

func TestGracefulStopSendsSIGTERM(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SIGTERM test not applicable on Windows")
	}

	// Start a sleep process and verify graceful stop terminates it.
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}

	doneCh := make(chan struct{})
	go func() {
		cmd.Wait()
		close(doneCh)
	}()

	sub := &Subprocess{
		cmd:    cmd,
		label:  "test",
		logger: discardLogger(),
		doneCh: doneCh,
	}

	if err := sub.GracefulStop(5 * time.Second); err != nil {
		t.Fatalf("GracefulStop: %v", err)
	}

	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		t.Fatal("process still running after GracefulStop")
	}
	if !sub.WasStopped() {
		t.Error("WasStopped should be true")
	}
}

func TestGracefulStopNilProcess(t *testing.T) {
	sub := &Subprocess{
		label:  "test",
		logger: discardLogger(),
		doneCh: make(chan struct{}),
	}
	if err := sub.GracefulStop(time.Second); err != nil {
		t.Fatalf("GracefulStop on nil process: %v", err)
	}
}

func TestSplitLines(t *testing.T) {
	input := "one\r\ntwo\n\nthree"
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Split(splitLines)
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	want := []string{"one", "two", "", "three"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestSplitLinesCapsLongLines(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+10) + "\nafter\n"
	sc := bufio.NewScanner(strings.NewReader(long))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	sc.Split(splitLines)
	var lens []int
	for sc.Scan() {
		lens = append(lens, len(sc.Bytes()))
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	if len(lens) != 3 || lens[0] != maxLineBytes || lens[1] != 10 || lens[2] != 5 {
		t.Errorf("line lengths = %v", lens)
	}
}

func TestDecodeLine(t *testing.T) {
	if got := decodeLine([]byte("plain ✓")); got != "plain ✓" {
		t.Errorf("utf-8 line changed: %q", got)
	}
	if got := decodeLine([]byte("caf\xe9")); got != "café" {
		t.Errorf("latin-1 line = %q, want café", got)
	}
}
