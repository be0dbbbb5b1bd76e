package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
)

// syncBuffer is a bytes.Buffer safe for the output-copying goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func shell(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return path
}

// waitDone waits for the reaper, failing the test after a generous bound.
func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestSupervisor_NotStarted(t *testing.T) {
	s := New(Config{})

	if s.IsAlive() {
		t.Error("IsAlive() = true before launch")
	}
	st := s.Status()
	if st.State != NotStarted || st.PID != 0 || st.Reason != "" {
		t.Errorf("Status() = %+v", st)
	}
	if got := s.Describe(); got != "not_started" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestSupervisor_Inhibit(t *testing.T) {
	store := journal.NewMemoryStorage(4)
	s := New(Config{}, WithJournal(journal.New(store, nil)))

	s.Inhibit(context.Background(), "binary unavailable")

	st := s.Status()
	if st.State != NotStarted || st.Reason != "binary unavailable" {
		t.Errorf("Status() = %+v", st)
	}
	if s.IsAlive() {
		t.Error("IsAlive() = true while inhibited")
	}
	events, _ := store.Recent(context.Background(), 1)
	if len(events) != 1 || events[0].Kind != journal.KindProxyInhibited {
		t.Errorf("events = %+v", events)
	}
}

func TestSupervisor_LaunchErrors(t *testing.T) {
	dir := t.TempDir()
	notExecutable := filepath.Join(dir, "v2ray")
	if err := os.WriteFile(notExecutable, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		executable string
		reason     string
	}{
		{name: "missing", executable: filepath.Join(dir, "absent"), reason: ReasonExecutableMissing},
		{name: "not executable", executable: notExecutable, reason: ReasonSpawnFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{})

			_, err := s.Launch(context.Background(), tt.executable, "config.json")
			var le *LaunchError
			if !errors.As(err, &le) {
				t.Fatalf("Launch() error = %v, want LaunchError", err)
			}
			if le.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", le.Reason, tt.reason)
			}

			st := s.Status()
			if st.State != NotStarted || st.Reason != tt.reason {
				t.Errorf("Status() = %+v", st)
			}
			if s.IsAlive() {
				t.Error("IsAlive() = true after failed launch")
			}

			if _, err := s.Launch(context.Background(), tt.executable, "config.json"); !errors.Is(err, ErrAlreadyLaunched) {
				t.Errorf("second Launch() error = %v, want ErrAlreadyLaunched", err)
			}
		})
	}
}

func TestSupervisor_ExitWithCode(t *testing.T) {
	sh := shell(t)
	s := New(Config{Args: []string{"-c", "exit 3"}})

	proc, err := s.Launch(context.Background(), sh, "config.json")
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if proc.PID <= 0 {
		t.Errorf("PID = %d", proc.PID)
	}
	waitDone(t, proc)

	if s.IsAlive() {
		t.Error("IsAlive() = true after exit")
	}
	st := s.Status()
	if st.State != Exited || st.ExitCode != 3 {
		t.Errorf("Status() = %+v, want exited with 3", st)
	}
	if st.ExitedAt.IsZero() || st.ExitedAt.Before(st.StartedAt) {
		t.Errorf("ExitedAt = %v, StartedAt = %v", st.ExitedAt, st.StartedAt)
	}
	if got := s.Describe(); got != "exited with code 3" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestSupervisor_KilledBySignalIsCrashed(t *testing.T) {
	sh := shell(t)
	s := New(Config{Args: []string{"-c", "kill -9 $$"}})

	proc, err := s.Launch(context.Background(), sh, "config.json")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, proc)

	st := s.Status()
	if st.State != Crashed {
		t.Errorf("State = %s, want crashed", st.State)
	}
	if st.Signal == "" || st.ExitCode != -1 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestSupervisor_RunningAndStop(t *testing.T) {
	sh := shell(t)
	store := journal.NewMemoryStorage(8)
	s := New(Config{Args: []string{"-c", "exec sleep 30"}}, WithJournal(journal.New(store, nil)))

	proc, err := s.Launch(context.Background(), sh, "config.json")
	if err != nil {
		t.Fatal(err)
	}

	if !s.IsAlive() {
		t.Fatal("IsAlive() = false while running")
	}
	if got := s.Describe(); !strings.HasPrefix(got, "running (pid ") {
		t.Errorf("Describe() = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitDone(t, proc)

	if s.IsAlive() {
		t.Error("IsAlive() = true after Stop")
	}
	// A process stopped by keeper is not a crash.
	if st := s.Status(); st.State != Exited {
		t.Errorf("State = %s, want exited", st.State)
	}

	events, _ := store.Recent(context.Background(), 0)
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, string(e.Kind))
	}
	got := strings.Join(kinds, ",")
	if !strings.Contains(got, string(journal.KindProxyStopped)) || !strings.Contains(got, string(journal.KindProxyLaunched)) {
		t.Errorf("journal kinds = %s", got)
	}

	// Stop after exit is a no-op.
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSupervisor_StopKillsAfterDeadline(t *testing.T) {
	sh := shell(t)
	s := New(Config{Args: []string{"-c", "trap '' TERM; while :; do sleep 1; done"}, WaitDelay: 100 * time.Millisecond})

	proc, err := s.Launch(context.Background(), sh, "config.json")
	if err != nil {
		t.Fatal(err)
	}
	// Give the shell time to install the trap.
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitDone(t, proc)

	if s.IsAlive() {
		t.Error("IsAlive() = true after kill")
	}
}

func TestSupervisor_ForwardsOutput(t *testing.T) {
	sh := shell(t)
	var out syncBuffer
	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Writer: &out})
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{Args: []string{"-c", "echo started with {config}; echo oops >&2; printf tail"}}, WithLogger(logger))
	proc, err := s.Launch(context.Background(), sh, "/etc/v2ray.json")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, proc)

	logs := out.String()
	for _, want := range []string{
		`"msg":"started with /etc/v2ray.json"`,
		`"msg":"oops"`,
		`"stream":"stderr"`,
		`"msg":"tail"`,
		`"component":"v2ray"`,
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %s:\n%s", want, logs)
		}
	}
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs([]string{"run", "-c", "{config}", "--extra={config}"}, "cfg.json")
	want := "run -c cfg.json --extra=cfg.json"
	if strings.Join(got, " ") != want {
		t.Errorf("expandArgs() = %v, want %s", got, want)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		NotStarted: "not_started",
		Launching:  "launching",
		Running:    "running",
		Exited:     "exited",
		Crashed:    "crashed",
		State(42):  "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestStatusSummary(t *testing.T) {
	tests := []struct {
		st    Status
		want  string
		alive bool
	}{
		{st: Status{State: Running, PID: 42}, want: "running (pid 42)", alive: true},
		{st: Status{State: Exited, ExitCode: 1}, want: "exited with code 1"},
		{st: Status{State: Crashed, Signal: "killed"}, want: "crashed: killed"},
		{st: Status{State: Crashed}, want: "crashed"},
		{st: Status{State: NotStarted, Reason: "binary unavailable"}, want: "not_started: binary unavailable"},
		{st: Status{State: Launching}, want: "launching"},
	}
	for _, tt := range tests {
		if got := tt.st.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
		if got := tt.st.Alive(); got != tt.alive {
			t.Errorf("%s: Alive() = %v, want %v", tt.want, got, tt.alive)
		}
	}
}

func TestSupervisor_ExitRecordedOnce(t *testing.T) {
	sh := shell(t)
	store := journal.NewMemoryStorage(16)
	s := New(Config{Args: []string{"-c", "exit 2"}}, WithJournal(journal.New(store, nil)))

	proc, err := s.Launch(context.Background(), sh, "config.json")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, proc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Status()
			_ = s.IsAlive()
		}()
	}
	wg.Wait()

	events, _ := store.Recent(context.Background(), 0)
	exits := 0
	for _, e := range events {
		if e.Kind == journal.KindProxyExited {
			exits++
		}
	}
	if exits != 1 {
		t.Errorf("exit recorded %d times, want 1", exits)
	}
}
