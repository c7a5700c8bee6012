// Package notifier delivers fired reminders to the daylit tray app.
//
// The tray app writes "port|pid|secret" to a lockfile in its config
// directory and listens for JSON posts on 127.0.0.1:port carrying the
// secret in the X-Daylit-Secret header.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/reminders"
)

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess
)

var ErrTrayNotRunning = errors.New("daylit-tray is not running")

type WebhookPayload struct {
	Text       string `json:"text"`
	DurationMs uint32 `json:"duration_ms"`
}

// endpoint is a validated tray listener.
type endpoint struct {
	port   int
	secret string
}

func (e endpoint) url() string {
	return "http://127.0.0.1:" + strconv.Itoa(e.port)
}

// Notifier posts reminders to the tray webhook, retrying transient
// failures a few times.
type Notifier struct {
	client     *http.Client
	retries    int
	retryDelay time.Duration
}

func New() *Notifier {
	return &Notifier{
		client:     &http.Client{Timeout: 5 * time.Second},
		retries:    constants.NotifyMaxRetries,
		retryDelay: constants.NotifyRetryDelay,
	}
}

// Deliver shows p through the tray app.
func (n *Notifier) Deliver(ctx context.Context, p reminders.Payload) error {
	return n.Notify(ctx, FormatText(p))
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	dir, err := TrayConfigDir()
	if err != nil {
		return err
	}
	ep, err := readLockfile(filepath.Join(dir, constants.NotifierLockfileName))
	if err != nil {
		return err
	}

	payload := WebhookPayload{Text: text, DurationMs: constants.NotificationDurationMs}
	var lastErr error
	for attempt := 1; attempt <= n.retries; attempt++ {
		lastErr = n.post(ctx, ep, payload)
		if lastErr == nil {
			return nil
		}
		logger.Debug("Tray notification attempt failed", "attempt", attempt, "error", lastErr)
		if attempt == n.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay):
		}
	}
	return fmt.Errorf("notify tray after %d attempts: %w", n.retries, lastErr)
}

// Check reports whether a tray app is listening.
func Check() error {
	dir, err := TrayConfigDir()
	if err != nil {
		return err
	}
	_, err = readLockfile(filepath.Join(dir, constants.NotifierLockfileName))
	return err
}

// FormatText renders a reminder as the single line the tray shows.
func FormatText(p reminders.Payload) string {
	switch {
	case p.Title == "":
		return p.Body
	case p.Body == "":
		return p.Title
	default:
		return p.Title + ": " + p.Body
	}
}

// TrayConfigDir returns the directory holding the tray lockfile. The tray's
// settings.json may point it elsewhere with settings.lockfile_dir.
func TrayConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	trayDir := filepath.Join(configDir, constants.TrayAppIdentifier)

	data, err := os.ReadFile(filepath.Join(trayDir, "settings.json"))
	if err != nil {
		return trayDir, nil
	}
	var store struct {
		Settings struct {
			LockfileDir string `json:"lockfile_dir"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(data, &store); err != nil {
		logger.Debug("Ignoring unreadable tray settings", "error", err)
		return trayDir, nil
	}
	if store.Settings.LockfileDir != "" {
		return store.Settings.LockfileDir, nil
	}
	return trayDir, nil
}

// readLockfile parses the tray lockfile and checks that its pid belongs to a
// running daylit-tray process.
func readLockfile(path string) (endpoint, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return endpoint{}, ErrTrayNotRunning
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return endpoint{}, errors.New("lockfile is malformed")
	}

	port, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return endpoint{}, errors.New("invalid port number in lockfile")
	}
	if port < 1 || port > 65535 {
		return endpoint{}, fmt.Errorf("port number %d is outside valid range (1-65535)", port)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return endpoint{}, errors.New("invalid process ID in lockfile")
	}
	secret := strings.TrimSpace(parts[2])
	if secret == "" {
		return endpoint{}, errors.New("secret in lockfile is empty")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return endpoint{}, ErrTrayNotRunning
	}
	if !strings.HasPrefix(process.Executable(), "daylit-tray") {
		return endpoint{}, fmt.Errorf("process with PID %d is not daylit-tray (is %s)", pid, process.Executable())
	}

	return endpoint{port: port, secret: secret}, nil
}

func (n *Notifier) post(ctx context.Context, ep endpoint, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Daylit-Secret", ep.secret)

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
}
