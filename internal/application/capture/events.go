package capture

import (
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
)

type EventType string

const (
	EventState        EventType = "state"
	EventTick         EventType = "tick"
	EventItemProgress EventType = "item_progress"
	EventProgress     EventType = "progress"
	EventWarning      EventType = "warning"
	EventError        EventType = "error"
)

// Event описывает изменение сессии съемки для транспорта (WebSocket).
type Event struct {
	SessionID string              `json:"session_id"`
	Type      EventType           `json:"type"`
	State     State               `json:"state"`
	StepIndex int                 `json:"step_index"`
	Elapsed   int                 `json:"elapsed_seconds,omitempty"`
	Item      *port.ItemProgress  `json:"item,omitempty"`
	Batch     *port.BatchProgress `json:"batch,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// EventSink receives session events. Publish is called with the sequencer lock held
// and must not block.
type EventSink interface {
	Publish(event Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// Ticker abstracts time.Ticker so recordings can be driven manually in tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
