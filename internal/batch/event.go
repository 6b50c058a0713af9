package batch

import "github.com/decklens/decklens/internal/pipeline"

// EventKind discriminates the batch event variants.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
	EventError    EventKind = "error"
	EventComplete EventKind = "complete"
)

// Event is one entry of the batch event stream. Exactly one payload field is
// set, chosen by Kind. The stream is append-only and ends with exactly one
// complete event.
type Event struct {
	Kind     EventKind
	Progress *ProgressPayload
	Result   *ResultPayload
	Error    *ErrorPayload
	Complete *CompletePayload
}

// ProgressPayload is emitted when an image begins processing.
type ProgressPayload struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// ResultPayload is emitted when an image completes successfully. Index is
// the original input position, not arrival order.
type ResultPayload struct {
	Index    int                      `json:"index"`
	Filename string                   `json:"filename"`
	Decklist *pipeline.DecklistResult `json:"decklist"`
}

// ErrorPayload is emitted when one image fails. Sibling images continue.
type ErrorPayload struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Type     string `json:"error_type"`
}

// CompletePayload closes the stream with batch totals.
type CompletePayload struct {
	Total           int      `json:"total"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	AverageAccuracy *float64 `json:"average_accuracy"`
	ProcessingTime  float64  `json:"processing_time_seconds"`
}

func progressEvent(current, total int, filename, status string) Event {
	return Event{Kind: EventProgress, Progress: &ProgressPayload{
		Current: current, Total: total, Filename: filename, Status: status,
	}}
}

func resultEvent(index int, filename string, decklist *pipeline.DecklistResult) Event {
	return Event{Kind: EventResult, Result: &ResultPayload{
		Index: index, Filename: filename, Decklist: decklist,
	}}
}

func errorEvent(index int, filename, msg, kind string) Event {
	return Event{Kind: EventError, Error: &ErrorPayload{
		Index: index, Filename: filename, Error: msg, Type: kind,
	}}
}
