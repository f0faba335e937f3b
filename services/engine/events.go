package engine

import "time"

type EventType int

const (
	EventEntry EventType = iota
	EventPartialExit
	EventExit
)

func (t EventType) String() string {
	switch t {
	case EventEntry:
		return "entry"
	case EventPartialExit:
		return "partial_exit"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

type Event struct {
	Time    time.Time         `json:"time"`
	Index   int               `json:"index"`
	Type    EventType         `json:"type"`
	Details map[string]string `json:"details,omitempty"`
}

type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// Count returns how many events of typ were logged.
func (l *EventLog) Count(typ EventType) int {
	n := 0
	for _, e := range l.Events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
