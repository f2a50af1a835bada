package services

import (
	"sync"
	"time"

	"github.com/pandeptwidyaop/modbackup/internal/models"
)

// EventHub fans progress events out to per-run subscribers.
type EventHub struct {
	mu      sync.RWMutex
	streams map[string][]chan models.Event
	done    map[string]bool
}

func NewEventHub() *EventHub {
	return &EventHub{
		streams: make(map[string][]chan models.Event),
		done:    make(map[string]bool),
	}
}

// Subscribe returns a channel receiving events for runID. The channel is
// closed when the run completes. Subscribing to a finished run returns a
// closed channel.
func (h *EventHub) Subscribe(runID string) chan models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.Event, 100)
	if h.done[runID] {
		close(ch)
		return ch
	}
	h.streams[runID] = append(h.streams[runID], ch)
	return ch
}

func (h *EventHub) Unsubscribe(runID string, ch chan models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	streams := h.streams[runID]
	for i, s := range streams {
		if s == ch {
			h.streams[runID] = append(streams[:i], streams[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.streams[runID]) == 0 {
		delete(h.streams, runID)
	}
}

// Publish delivers ev to every subscriber of ev.RunID. Slow subscribers
// drop events instead of blocking the run.
func (h *EventHub) Publish(ev models.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.streams[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Complete sends a final event and closes every subscriber of runID.
func (h *EventHub) Complete(runID, message string) {
	h.Publish(models.Event{RunID: runID, Stage: "done", Message: message, Done: true})

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.streams[runID] {
		close(ch)
	}
	delete(h.streams, runID)
	h.done[runID] = true
}
