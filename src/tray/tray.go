// Package tray shows the resident in the system tray and mirrors the
// processing status in its tooltip.
package tray

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/getlantern/systray"

	"shadow-ai/src/messages"
)

const DefaultTooltip = "Shadow AI"

// Actions are invoked from menu clicks. Nil actions hide their item.
type Actions struct {
	Screenshot   func()
	Solve        func()
	Reset        func()
	ToggleWindow func()
	Quit         func()
}

type Tray struct {
	actions Actions

	mu      sync.Mutex
	ready   bool
	tooltip string
	about   string
}

func New(a Actions) *Tray {
	return &Tray{actions: a, tooltip: DefaultTooltip}
}

// Run blocks on the tray event loop; it must be called from the main
// goroutine on some platforms.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit ends Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetAbout adds an informational line, such as the control port, to the
// menu.
func (t *Tray) SetAbout(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.about = text
}

func (t *Tray) onReady() {
	systray.SetIcon(iconPNG())
	systray.SetTitle(DefaultTooltip)

	t.mu.Lock()
	t.ready = true
	systray.SetTooltip(t.tooltip)
	about := t.about
	t.mu.Unlock()

	if about != "" {
		item := systray.AddMenuItem(about, "")
		item.Disable()
		systray.AddSeparator()
	}

	t.addItem("Take Screenshot", "Capture the screen into the queue", t.actions.Screenshot)
	t.addItem("Solve", "Process queued screenshots", t.actions.Solve)
	t.addItem("Reset", "Clear queues and return to the queue view", t.actions.Reset)
	t.addItem("Show/Hide Window", "Toggle the overlay window", t.actions.ToggleWindow)
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")
	go func() {
		<-mQuit.ClickedCh
		log.Printf("tray: quit requested")
		if t.actions.Quit != nil {
			t.actions.Quit()
		}
		systray.Quit()
	}()
}

func (t *Tray) addItem(title, tip string, action func()) {
	if action == nil {
		return
	}
	item := systray.AddMenuItem(title, tip)
	go func() {
		for range item.ClickedCh {
			log.Printf("tray: %s clicked", title)
			action()
		}
	}()
}

func (t *Tray) onExit() {
	log.Printf("tray: exited")
}

// SetStatus updates the tooltip, or remembers it until the tray is up.
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == t.tooltip {
		return
	}
	t.tooltip = text
	if t.ready {
		systray.SetTooltip(text)
	}
}

// Follow mirrors events into the tooltip until ctx is done or the channel
// closes.
func (t *Tray) Follow(ctx context.Context, events <-chan messages.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if text, ok := StatusText(ev); ok {
				t.SetStatus(text)
			}
		}
	}
}

// StatusText maps an event to tooltip text. Events that do not change the
// status return false.
func StatusText(ev messages.Event) (string, bool) {
	switch e := ev.(type) {
	case messages.ProcessingStarted:
		return DefaultTooltip + ": processing...", true
	case messages.ProcessingStatus:
		if e.Progress > 0 {
			return fmt.Sprintf("%s: %s (%d%%)", DefaultTooltip, e.Message, e.Progress), true
		}
		return DefaultTooltip + ": " + e.Message, true
	case messages.ProblemExtracted:
		return DefaultTooltip + ": problem extracted", true
	case messages.SolutionReady:
		return DefaultTooltip + ": solution ready", true
	case messages.SolutionError:
		return DefaultTooltip + ": " + e.Message, true
	case messages.DebugStarted:
		return DefaultTooltip + ": debugging...", true
	case messages.DebugReady:
		return DefaultTooltip + ": debug analysis ready", true
	case messages.DebugError:
		return DefaultTooltip + ": " + e.Message, true
	case messages.APIKeyInvalid:
		return DefaultTooltip + ": API key missing or invalid", true
	case messages.NoScreenshots, messages.ResetView:
		return DefaultTooltip, true
	}
	return "", false
}
