package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Hook processes store events.
type Hook interface {
	// Name returns the hook's identifier.
	Name() string
	// Matches returns true if the hook should handle this event type.
	Matches(t EventType) bool
	// IsBlocking returns true if Emit should wait for this hook.
	IsBlocking() bool
	// Handle processes an event.
	Handle(ev Event) error
}

// baseHook provides shared fields for all hook implementations.
type baseHook struct {
	name     string
	events   []EventType
	blocking bool
}

func (h *baseHook) Name() string     { return h.name }
func (h *baseHook) IsBlocking() bool { return h.blocking }
func (h *baseHook) Matches(t EventType) bool {
	if len(h.events) == 0 {
		return true
	}
	for _, ev := range h.events {
		if ev == t {
			return true
		}
	}
	return false
}

// ShellHookTimeout bounds a single shell hook run.
const ShellHookTimeout = 30 * time.Second

// ShellHook runs a shell command with the event in its environment.
//
// Environment variables set:
//   - PATTERNMEM_EVENT_TYPE: the event type string
//   - PATTERNMEM_EVENT_JSON: JSON-encoded event
//   - PATTERNMEM_PATTERN_ID: affected pattern (winner for pattern.resolved)
//   - PATTERNMEM_CONTRIBUTOR_ID: contributor of the affected pattern
//   - PATTERNMEM_OLD_ID: replaced pattern, for pattern.superseded
//   - PATTERNMEM_SIGNATURE: context signature, for pattern.inserted
type ShellHook struct {
	baseHook
	Command string
}

func NewShellHook(name, command string, events []EventType, blocking bool) *ShellHook {
	return &ShellHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		Command:  command,
	}
}

func (h *ShellHook) Handle(ev Event) error {
	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShellHookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
	cmd.Env = append(os.Environ(), shellEnv(ev, eventJSON)...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s failed: %w", h.name, err)
	}
	return nil
}

func shellEnv(ev Event, eventJSON []byte) []string {
	env := []string{
		"PATTERNMEM_EVENT_TYPE=" + string(ev.Type),
		"PATTERNMEM_EVENT_JSON=" + string(eventJSON),
		"PATTERNMEM_PATTERN_ID=" + ev.PatternID(),
		"PATTERNMEM_CONTRIBUTOR_ID=" + ev.ContributorID(),
	}
	if old := ev.str("old_id"); old != "" {
		env = append(env, "PATTERNMEM_OLD_ID="+old)
	}
	if sig := ev.str("context_signature"); sig != "" {
		env = append(env, "PATTERNMEM_SIGNATURE="+sig)
	}
	return env
}

// WebhookHook POSTs the event as JSON to a URL.
type WebhookHook struct {
	baseHook
	URL    string
	client *http.Client
}

func NewWebhookHook(name, url string, events []EventType, blocking bool) *WebhookHook {
	return &WebhookHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		URL:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Handle POSTs the event. The event type and pattern id are also sent as
// X-Patternmem-Event and X-Patternmem-Pattern so receivers can route without
// parsing the body.
func (h *WebhookHook) Handle(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", h.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Patternmem-Event", string(ev.Type))
	if id := ev.PatternID(); id != "" {
		req.Header.Set("X-Patternmem-Pattern", id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s failed: %w", h.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s returned status %d", h.name, resp.StatusCode)
	}
	return nil
}

// LogHook logs events at the configured level. Always non-blocking.
type LogHook struct {
	baseHook
	logger Logger
	level  string // "debug", "info", "warn"
}

// FullLogger extends Logger with the levels LogHook can write at.
type FullLogger interface {
	Logger
	Info(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
}

func NewLogHook(name string, events []EventType, logger Logger, level string) *LogHook {
	if level == "" {
		level = "info"
	}
	return &LogHook{
		baseHook: baseHook{name: name, events: events, blocking: false},
		logger:   logger,
		level:    level,
	}
}

func (h *LogHook) Handle(ev Event) error {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keyvals := make([]interface{}, 0, len(keys)*2+2)
	keyvals = append(keyvals, "event_type", string(ev.Type))
	for _, k := range keys {
		keyvals = append(keyvals, k, ev.Data[k])
	}

	msg := "Pattern event"
	if !strings.HasPrefix(string(ev.Type), "pattern.") {
		msg = "Snapshot event"
	}

	if fl, ok := h.logger.(FullLogger); ok {
		switch h.level {
		case "debug":
			fl.Debug(msg, keyvals...)
		case "warn":
			fl.Warn(msg, keyvals...)
		default:
			fl.Info(msg, keyvals...)
		}
	} else {
		h.logger.Warn(msg, keyvals...)
	}
	return nil
}

// Spec describes a hook declared in configuration.
type Spec struct {
	Name     string
	Type     string // shell, webhook, log
	Events   []string
	Blocking bool
	Command  string
	URL      string
	Level    string
}

// Build turns a configured hook into a Hook.
func Build(spec Spec, logger Logger) (Hook, error) {
	events := make([]EventType, 0, len(spec.Events))
	for _, e := range spec.Events {
		events = append(events, EventType(e))
	}

	switch spec.Type {
	case "shell":
		if spec.Command == "" {
			return nil, fmt.Errorf("hook %s: shell hook requires command", spec.Name)
		}
		return NewShellHook(spec.Name, spec.Command, events, spec.Blocking), nil
	case "webhook":
		if spec.URL == "" {
			return nil, fmt.Errorf("hook %s: webhook hook requires url", spec.Name)
		}
		return NewWebhookHook(spec.Name, spec.URL, events, spec.Blocking), nil
	case "log":
		if logger == nil {
			return nil, fmt.Errorf("hook %s: log hook requires a logger", spec.Name)
		}
		return NewLogHook(spec.Name, events, logger, spec.Level), nil
	default:
		return nil, fmt.Errorf("hook %s: unknown hook type %q", spec.Name, spec.Type)
	}
}
