package messages

import (
	"encoding/json"
	"fmt"

	"shadow-ai/src/config"
	"shadow-ai/src/parse"
)

// Event is the base interface for everything published on the bus.
type Event interface {
	Type() string
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(Event)
}

// Event type names as seen by subscribers
const (
	TypeProcessingStarted = "processing-started"
	TypeProblemExtracted  = "problem-extracted"
	TypeProcessingStatus  = "processing-status"
	TypeSolutionReady     = "solution-ready"
	TypeSolutionError     = "solution-error"
	TypeNoScreenshots     = "processing-no-screenshots"
	TypeDebugStarted      = "debug-started"
	TypeDebugReady        = "debug-ready"
	TypeDebugError        = "debug-error"
	TypeAPIKeyInvalid     = "api-key-invalid"
	TypeScreenshotTaken   = "screenshot-taken"
	TypeScreenshotDeleted = "screenshot-deleted"
	TypeResetView         = "reset-view"
	TypeViewChanged       = "view-changed"
	TypeConfigUpdated     = "config-updated"
	TypeWindowVisibility  = "window-visibility"
)

// ProcessingStarted - a solve cycle has begun
type ProcessingStarted struct{}

func (ProcessingStarted) Type() string { return TypeProcessingStarted }

// ProblemExtracted - the problem was read from the screenshots
type ProblemExtracted struct {
	parse.ProblemInfo
}

func (ProblemExtracted) Type() string { return TypeProblemExtracted }

// ProcessingStatus - progress of the active cycle, 0-100
type ProcessingStatus struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

func (ProcessingStatus) Type() string { return TypeProcessingStatus }

type SolutionReady struct {
	parse.Solution
}

func (SolutionReady) Type() string { return TypeSolutionReady }

type SolutionError struct {
	Message string `json:"message"`
}

func (SolutionError) Type() string { return TypeSolutionError }

// NoScreenshots - nothing to process, or a cycle was cancelled
type NoScreenshots struct{}

func (NoScreenshots) Type() string { return TypeNoScreenshots }

type DebugStarted struct{}

func (DebugStarted) Type() string { return TypeDebugStarted }

type DebugReady struct {
	parse.Debug
}

func (DebugReady) Type() string { return TypeDebugReady }

type DebugError struct {
	Message string `json:"message"`
}

func (DebugError) Type() string { return TypeDebugError }

// APIKeyInvalid - no usable client; the user must configure a key
type APIKeyInvalid struct{}

func (APIKeyInvalid) Type() string { return TypeAPIKeyInvalid }

type ScreenshotTaken struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Preview string `json:"preview,omitempty"`
}

func (ScreenshotTaken) Type() string { return TypeScreenshotTaken }

type ScreenshotDeleted struct {
	Path string `json:"path"`
}

func (ScreenshotDeleted) Type() string { return TypeScreenshotDeleted }

// ResetView - the renderer should return to an empty queue
type ResetView struct{}

func (ResetView) Type() string { return TypeResetView }

type ViewChanged struct {
	View string `json:"view"`
}

func (ViewChanged) Type() string { return TypeViewChanged }

// ConfigUpdated carries the new config with the API key redacted.
type ConfigUpdated struct {
	Config config.Config `json:"config"`
}

func (ConfigUpdated) Type() string { return TypeConfigUpdated }

type WindowVisibility struct {
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity"`
}

func (WindowVisibility) Type() string { return TypeWindowVisibility }

// Envelope is the wire form of an event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Wrap encodes ev into an Envelope.
func Wrap(ev Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	if string(payload) == "{}" {
		payload = nil
	}
	return Envelope{Type: ev.Type(), Payload: payload}, nil
}

var factories = map[string]func() Event{
	TypeProcessingStarted: func() Event { return &ProcessingStarted{} },
	TypeProblemExtracted:  func() Event { return &ProblemExtracted{} },
	TypeProcessingStatus:  func() Event { return &ProcessingStatus{} },
	TypeSolutionReady:     func() Event { return &SolutionReady{} },
	TypeSolutionError:     func() Event { return &SolutionError{} },
	TypeNoScreenshots:     func() Event { return &NoScreenshots{} },
	TypeDebugStarted:      func() Event { return &DebugStarted{} },
	TypeDebugReady:        func() Event { return &DebugReady{} },
	TypeDebugError:        func() Event { return &DebugError{} },
	TypeAPIKeyInvalid:     func() Event { return &APIKeyInvalid{} },
	TypeScreenshotTaken:   func() Event { return &ScreenshotTaken{} },
	TypeScreenshotDeleted: func() Event { return &ScreenshotDeleted{} },
	TypeResetView:         func() Event { return &ResetView{} },
	TypeViewChanged:       func() Event { return &ViewChanged{} },
	TypeConfigUpdated:     func() Event { return &ConfigUpdated{} },
	TypeWindowVisibility:  func() Event { return &WindowVisibility{} },
}

// Decode returns the typed event held by the envelope, as a pointer.
func (e Envelope) Decode() (Event, error) {
	f, ok := factories[e.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	ev := f()
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Type, err)
		}
	}
	return ev, nil
}
