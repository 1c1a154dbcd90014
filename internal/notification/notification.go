// Package notification delivers formatted alert text to external
// channels. Sinks are dumb pipes: the alert engine owns cooldowns,
// pacing, and retry policy.
package notification

import (
	"context"
	"fmt"
	"os"
	"sync"

	"futures-radar-bot/internal/logging"
)

// Sink delivers one message to one destination. A sink with multiple
// destinations (several Telegram chats) receives one Send call per
// destination so the dispatcher can pace them individually.
type Sink interface {
	Name() string
	IsEnabled() bool
	Destinations() []string
	Send(ctx context.Context, destination, text string) error
}

// Manager holds the configured sinks.
type Manager struct {
	mu    sync.RWMutex
	sinks []Sink
	log   *logging.Logger
}

func NewManager() *Manager {
	return &Manager{log: logging.Default().WithComponent("notification")}
}

func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
	m.log.Info("sink registered", "sink", s.Name(), "enabled", s.IsEnabled())
}

// Sinks returns all registered sinks.
func (m *Manager) Sinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out
}

// Enabled returns only the sinks that are currently enabled.
func (m *Manager) Enabled() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Sink
	for _, s := range m.sinks {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sinks))
	enabled := 0
	for _, s := range m.sinks {
		names = append(names, s.Name())
		if s.IsEnabled() {
			enabled++
		}
	}
	return map[string]interface{}{
		"sinks":   names,
		"enabled": enabled,
	}
}

// ConsoleSink writes messages to stdout. Used by the staging simulator.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink { return &ConsoleSink{} }

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) IsEnabled() bool { return true }

func (c *ConsoleSink) Destinations() []string { return []string{"stdout"} }

func (c *ConsoleSink) Send(_ context.Context, _, text string) error {
	_, err := fmt.Fprintf(os.Stdout, "%s\n\n", text)
	return err
}
