package chat

import "sync"

type StreamState int

const (
	StreamIdle StreamState = iota
	StreamStreaming
	StreamFinished
	StreamErrored
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamStreaming:
		return "streaming"
	case StreamFinished:
		return "finished"
	case StreamErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// StreamOutcome tracks one completion stream. Finished and Errored are
// terminal; the first terminal transition wins.
type StreamOutcome struct {
	mu    sync.Mutex
	state StreamState
	err   error
}

func (o *StreamOutcome) Start() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StreamIdle {
		return false
	}
	o.state = StreamStreaming
	return true
}

// Finish moves a streaming outcome to Finished. It reports false when the
// stream never started or already ended.
func (o *StreamOutcome) Finish() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StreamStreaming {
		return false
	}
	o.state = StreamFinished
	return true
}

func (o *StreamOutcome) Fail(err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StreamFinished || o.state == StreamErrored {
		return false
	}
	o.state = StreamErrored
	o.err = err
	return true
}

func (o *StreamOutcome) State() StreamState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *StreamOutcome) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
