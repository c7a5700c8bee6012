package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	ps "github.com/mitchellh/go-ps"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/reminders"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

func withConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := userConfigDirFunc
	t.Cleanup(func() { userConfigDirFunc = old })
	userConfigDirFunc = func() (string, error) { return dir, nil }
	return dir
}

func withProcess(t *testing.T, executable string) {
	t.Helper()
	old := findProcessFunc
	t.Cleanup(func() { findProcessFunc = old })
	findProcessFunc = func(pid int) (ps.Process, error) {
		if executable == "" {
			return nil, nil
		}
		return &mockProcess{pid: pid, executable: executable}, nil
	}
}

func TestTrayConfigDir(t *testing.T) {
	dir := withConfigDir(t)
	trayDir := filepath.Join(dir, constants.TrayAppIdentifier)

	got, err := TrayConfigDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != trayDir {
		t.Errorf("expected %s, got %s", trayDir, got)
	}

	if err := os.MkdirAll(trayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	settings := filepath.Join(trayDir, "settings.json")
	if err := os.WriteFile(settings, []byte(`{"settings": {"lockfile_dir": "/custom/daylit/dir"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := TrayConfigDir(); got != "/custom/daylit/dir" {
		t.Errorf("expected custom dir, got %s", got)
	}

	if err := os.WriteFile(settings, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := TrayConfigDir(); got != trayDir {
		t.Errorf("expected fallback to %s for unreadable settings, got %s", trayDir, got)
	}
}

func TestReadLockfile(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		executable string
		wantErr    bool
	}{
		{"two-part format", "8080|12345", "daylit-tray", true},
		{"garbage", "invalid", "daylit-tray", true},
		{"empty secret", "8080|12345|", "daylit-tray", true},
		{"empty port", "|12345|s3cret", "daylit-tray", true},
		{"port out of range", "99999|12345|s3cret", "daylit-tray", true},
		{"bad pid", "8080|abc|s3cret", "daylit-tray", true},
		{"process gone", "8080|12345|s3cret", "", true},
		{"wrong executable", "8080|12345|s3cret", "other-app", true},
		{"valid", "8080|12345|s3cret\n", "daylit-tray", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withProcess(t, tt.executable)
			path := filepath.Join(t.TempDir(), constants.NotifierLockfileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			ep, err := readLockfile(path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got endpoint %+v", ep)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ep.port != 8080 || ep.secret != "s3cret" {
				t.Errorf("unexpected endpoint %+v", ep)
			}
		})
	}
}

func TestReadLockfileMissing(t *testing.T) {
	_, err := readLockfile(filepath.Join(t.TempDir(), "missing.lock"))
	if !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("expected ErrTrayNotRunning, got %v", err)
	}
}

func TestFormatText(t *testing.T) {
	tests := []struct {
		p    reminders.Payload
		want string
	}{
		{reminders.Payload{Title: "Meal time", Body: "Lunch"}, "Meal time: Lunch"},
		{reminders.Payload{Title: "Meal time"}, "Meal time"},
		{reminders.Payload{Body: "Lunch"}, "Lunch"},
	}
	for _, tt := range tests {
		if got := FormatText(tt.p); got != tt.want {
			t.Errorf("FormatText(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

// setupTray starts a fake tray listener and writes its lockfile.
func setupTray(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}

	dir := withConfigDir(t)
	withProcess(t, "daylit-tray")
	trayDir := filepath.Join(dir, constants.TrayAppIdentifier)
	if err := os.MkdirAll(trayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := strconv.Itoa(port) + "|4242|test-secret"
	if err := os.WriteFile(filepath.Join(trayDir, constants.NotifierLockfileName), []byte(lock), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDeliver(t *testing.T) {
	got := make(chan WebhookPayload, 1)
	setupTray(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-Daylit-Secret") != "test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got <- p
		w.WriteHeader(http.StatusOK)
	})

	err := New().Deliver(context.Background(), reminders.Payload{
		Type:  models.NotificationHabit,
		Title: "Habits",
		Body:  "Check off today's habits.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := <-got
	if p.Text != "Habits: Check off today's habits." {
		t.Errorf("unexpected text %q", p.Text)
	}
	if p.DurationMs != constants.NotificationDurationMs {
		t.Errorf("unexpected duration %d", p.DurationMs)
	}
}

func TestNotifyRetries(t *testing.T) {
	var calls atomic.Int32
	setupTray(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	n := New()
	n.retryDelay = time.Millisecond
	if err := n.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestNotifyGivesUp(t *testing.T) {
	var calls atomic.Int32
	setupTray(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	n := New()
	n.retryDelay = time.Millisecond
	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if int(calls.Load()) != constants.NotifyMaxRetries {
		t.Errorf("expected %d attempts, got %d", constants.NotifyMaxRetries, calls.Load())
	}
}

func TestNotifyWithoutTray(t *testing.T) {
	withConfigDir(t)
	if err := New().Notify(context.Background(), "hello"); !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("expected ErrTrayNotRunning, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	withConfigDir(t)
	if err := Check(); !errors.Is(err, ErrTrayNotRunning) {
		t.Errorf("expected ErrTrayNotRunning, got %v", err)
	}

	setupTray(t, func(w http.ResponseWriter, r *http.Request) {})
	if err := Check(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
