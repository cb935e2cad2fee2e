package mux

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType names a lifecycle event the engine raises during a run.
type EventType string

const (
	EventClusterRendered  EventType = "cluster_rendered"
	EventCueIndexed       EventType = "cue_indexed"
	EventSegmentOpened    EventType = "segment_opened"
	EventSegmentClosed    EventType = "segment_closed"
	EventSplitRolled      EventType = "split_rolled"
	EventWarningIssued    EventType = "warning_issued"
)

// Event carries event-specific data to registered Hooks.
type Event struct {
	Type EventType
	At   time.Time
	Data map[string]any
}

// Hook receives raised events. Distinct hook implementations might log,
// update metrics, or notify an external process (the CLI's --identify /
// progress-reporting surface).
type Hook interface {
	ID() string
	Handle(Event)
}

// HookManager fans an event out to every Hook registered for its type.
// The mux engine is single-threaded cooperative: no preemption, no
// locking on the hot path. Hooks run synchronously on the caller's
// goroutine rather than through a worker pool, so a hook observes
// consistent state at the moment its event fires; the mutex only
// guards concurrent Register/Unregister calls made during setup.
type HookManager struct {
	mu    sync.RWMutex
	hooks map[EventType][]Hook
	log   *slog.Logger
}

func NewHookManager(log *slog.Logger) *HookManager {
	if log == nil {
		log = slog.Default()
	}
	return &HookManager{hooks: make(map[EventType][]Hook), log: log}
}

// Register adds hook for eventType.
func (hm *HookManager) Register(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("mux: cannot register nil hook")
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.hooks[eventType] = append(hm.hooks[eventType], hook)
	return nil
}

// Unregister removes a hook by ID from eventType, reporting whether it
// was found.
func (hm *HookManager) Unregister(eventType EventType, id string) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hooks := hm.hooks[eventType]
	for i, h := range hooks {
		if h.ID() == id {
			hm.hooks[eventType] = append(hooks[:i], hooks[i+1:]...)
			return true
		}
	}
	return false
}

// Trigger raises ev to every hook registered for ev.Type.
func (hm *HookManager) Trigger(ev Event) {
	hm.mu.RLock()
	hooks := append([]Hook(nil), hm.hooks[ev.Type]...)
	hm.mu.RUnlock()
	for _, h := range hooks {
		h.Handle(ev)
	}
}

// LogHook is a trivial Hook that writes every event through a slog.Logger;
// cmd/mkvmux registers one for warning_issued events on every run.
type LogHook struct {
	id  string
	log *slog.Logger
}

func NewLogHook(id string, log *slog.Logger) *LogHook { return &LogHook{id: id, log: log} }

func (h *LogHook) ID() string { return h.id }

func (h *LogHook) Handle(ev Event) {
	h.log.Info("mux event", "type", ev.Type, "data", ev.Data)
}
