// Package runtimeinit assembles the resident from its parts.
package runtimeinit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"shadow-ai/src/appstate"
	"shadow-ai/src/bus"
	"shadow-ai/src/clipboard"
	"shadow-ai/src/config"
	"shadow-ai/src/control"
	"shadow-ai/src/eventloop"
	"shadow-ai/src/hotkey"
	"shadow-ai/src/llm"
	"shadow-ai/src/messages"
	"shadow-ai/src/pipeline"
	"shadow-ai/src/screenshot"
	"shadow-ai/src/store"
	"shadow-ai/src/window"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(enableFileLogging bool, dir string)

	// Capturer defaults to the real screen.
	Capturer screenshot.Capturer
	// LLM overrides the adapter options derived from settings when set.
	LLM *llm.Options
}

// App holds the wired resident.
type App struct {
	Settings *config.Settings
	Config   *config.Store
	Window   *window.Controller
	Store    *store.Store
	Adapter  *llm.Adapter
	State    *appstate.State
	Bus      *bus.Bus
	Pipeline *pipeline.Processor
	Loop     *eventloop.Loop
	Control  *control.Server

	wg sync.WaitGroup
}

// Bootstrap loads settings and config and builds every component. Nothing
// runs until Start.
func Bootstrap(opts Options) (*App, error) {
	settings, err := config.LoadSettingsWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if opts.SetupLogging != nil {
		opts.SetupLogging(settings.EnableFileLogging, settings.DataDir)
	}
	log.Printf("runtime: data dir %s", settings.DataDir)

	cfgStore := config.NewStore(settings.ConfigPath())
	cfg := cfgStore.Load()
	log.Printf("runtime: provider=%s language=%s key set=%t", cfg.APIProvider, cfg.Language, cfg.APIKey != "")

	b := bus.New()
	win := window.New(b, cfgStore.Opacity())

	capturer := opts.Capturer
	if capturer == nil {
		capturer = screenshot.ScreenCapturer{}
	}
	shots, err := store.New(settings.DataDir, capturer, win)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare screenshot store: %w", err)
	}

	llmOpts := llm.Options{
		Timeout:           settings.RequestTimeout(),
		MaxRetries:        settings.MaxRetries,
		RequestsPerSecond: settings.RequestsPerSecond,
		Burst:             settings.Burst,
	}
	if opts.LLM != nil {
		llmOpts = *opts.LLM
	}
	adapter := llm.NewAdapter(cfgStore, llmOpts)

	state := appstate.New()
	state.OnViewChange(func(v appstate.View) {
		b.Publish(messages.ViewChanged{View: string(v)})
	})

	proc := pipeline.New(shots, adapter, cfgStore, state, b)
	loop := eventloop.New(eventloop.Deps{
		Store:     shots,
		Processor: proc,
		Config:    cfgStore,
		Keys:      adapter,
		Window:    win,
		State:     state,
		Publisher: b,
	})
	srv := control.NewServer(control.PortRange{Start: settings.ControlPortStart, End: settings.ControlPortEnd}, loop, b)

	return &App{
		Settings: settings,
		Config:   cfgStore,
		Window:   win,
		Store:    shots,
		Adapter:  adapter,
		State:    state,
		Bus:      b,
		Pipeline: proc,
		Loop:     loop,
		Control:  srv,
	}, nil
}

// Start launches the background parts: the event loop, the control
// server, config watching and client reloads. It returns once the
// control server is listening.
func (a *App) Start(ctx context.Context) error {
	if err := a.Control.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}

	a.goRun(func() {
		if err := a.Loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("runtime: event loop stopped: %v", err)
		}
	})
	a.goRun(func() { a.Adapter.Run(ctx) })
	a.goRun(func() {
		if err := a.Config.Watch(ctx); err != nil {
			log.Printf("runtime: config watch stopped: %v", err)
		}
	})
	changes, unsubscribe := a.Config.Subscribe()
	a.goRun(func() {
		defer unsubscribe()
		a.publishConfigChanges(ctx, changes)
	})

	if a.Settings.CopyCodeToClipboard {
		if err := a.startClipboard(ctx); err != nil {
			log.Printf("runtime: clipboard copy disabled: %v", err)
		}
	}

	if !a.Config.HasAPIKey() {
		log.Printf("runtime: no API key configured")
		a.Bus.Publish(messages.APIKeyInvalid{})
	}
	log.Printf("runtime: resident ready on port %d", a.Control.Port())
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) publishConfigChanges(ctx context.Context, changes <-chan config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-changes:
			if !ok {
				return
			}
			a.Bus.Publish(messages.ConfigUpdated{Config: cfg.Redacted()})
		}
	}
}

func (a *App) startClipboard(ctx context.Context) error {
	if err := clipboard.Init(); err != nil {
		return err
	}
	events, err := a.Bus.Subscribe("clipboard", 8)
	if err != nil {
		return err
	}
	copier := clipboard.NewCopier(nil)
	a.goRun(func() { copier.Run(ctx, events) })
	return nil
}

// Bindings maps the configured hotkeys to loop commands.
func (a *App) Bindings() []hotkey.Binding {
	h := a.Settings.Hotkeys
	post := func(cmd string) func() { return func() { a.Loop.Post(cmd) } }
	return []hotkey.Binding{
		{Name: control.CmdTakeScreenshot, Combo: h.Screenshot, Action: post(control.CmdTakeScreenshot)},
		{Name: control.CmdProcess, Combo: h.Process, Action: post(control.CmdProcess)},
		{Name: control.CmdReset, Combo: h.Reset, Action: post(control.CmdReset)},
		{Name: control.CmdDeleteLast, Combo: h.DeleteLast, Action: post(control.CmdDeleteLast)},
		{Name: control.CmdToggleWindow, Combo: h.ToggleWindow, Action: post(control.CmdToggleWindow)},
	}
}

// StartHotkeys registers the global bindings.
func (a *App) StartHotkeys(ctx context.Context) error {
	l, err := hotkey.NewListener(a.Bindings())
	if err != nil {
		return err
	}
	l.Start(ctx)
	return nil
}

// Shutdown waits for background work after ctx is cancelled, then
// cancels any running cycle and closes the bus.
func (a *App) Shutdown() {
	a.Pipeline.Cancel()
	_ = a.Control.Close()
	a.wg.Wait()
	a.Bus.Shutdown()
	log.Printf("runtime: shut down")
}
