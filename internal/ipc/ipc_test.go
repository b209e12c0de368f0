package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nitrogen-cast/nitrogen/internal/controller"
)

type fakeCommander struct {
	snapshot   *controller.Snapshot
	stopErr    error
	pauseErr   error
	resumeErr  error
	stopCalls  int
	pauseCalls int
}

func (f *fakeCommander) Status() *controller.Snapshot { return f.snapshot }
func (f *fakeCommander) Stop() error                  { f.stopCalls++; return f.stopErr }
func (f *fakeCommander) Pause() error                 { f.pauseCalls++; return f.pauseErr }
func (f *fakeCommander) Resume() error                 { return f.resumeErr }

func startTestServer(t *testing.T, ctrl Commander) (string, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nitrogen.sock")
	srv := New(path, ctrl)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return path, func() {
		srv.Close()
		<-done
	}
}

func sendCommand(t *testing.T, path, command string) Response {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestStatusCommandReturnsSnapshot(t *testing.T) {
	fake := &fakeCommander{snapshot: &controller.Snapshot{TargetFPS: 60}}
	path, stop := startTestServer(t, fake)
	defer stop()

	resp := sendCommand(t, path, "status")
	if !resp.OK || resp.Snapshot == nil || resp.Snapshot.TargetFPS != 60 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestStopCommandInvokesController(t *testing.T) {
	fake := &fakeCommander{}
	path, stop := startTestServer(t, fake)
	defer stop()

	resp := sendCommand(t, path, "stop --force")
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	if fake.stopCalls != 1 {
		t.Fatalf("expected Stop to be called once, got %d", fake.stopCalls)
	}
}

func TestPauseCommandPropagatesError(t *testing.T) {
	fake := &fakeCommander{pauseErr: errTest("no session running")}
	path, stop := startTestServer(t, fake)
	defer stop()

	resp := sendCommand(t, path, "pause")
	if resp.OK {
		t.Fatal("expected pause to fail")
	}
	if resp.Error == "" {
		t.Fatal("expected error message in response")
	}
}

func TestUnrecognizedCommand(t *testing.T) {
	fake := &fakeCommander{}
	path, stop := startTestServer(t, fake)
	defer stop()

	resp := sendCommand(t, path, "frobnicate")
	if resp.OK {
		t.Fatal("expected unrecognized command to fail")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
