package eventloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"shadow-ai/src/appstate"
	"shadow-ai/src/config"
	"shadow-ai/src/control"
	"shadow-ai/src/llm"
	"shadow-ai/src/messages"
	"shadow-ai/src/pipeline"
	"shadow-ai/src/store"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrStopped        = errors.New("event loop stopped")
	ErrQueueEmpty     = errors.New("no screenshots to delete")
	ErrNotQueued      = errors.New("screenshot is not queued")
)

// Command is one request for the loop, from a hotkey, the tray or a
// control connection.
type Command struct {
	Name string
	Args json.RawMessage
}

func (c Command) bind(v any) error {
	if len(c.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Args, v); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", c.Name, err)
	}
	return nil
}

type Screenshots interface {
	Capture(ctx context.Context, k store.Kind) (string, error)
	Preview(path string) string
	Remove(path string) (bool, error)
	DeleteLast(k store.Kind) (string, error)
	Records() []store.Record
}

type Processor interface {
	Process(ctx context.Context) error
	Reset()
}

type Config interface {
	Load() config.Config
	Update(u config.Partial) (config.Config, error)
}

type KeyTester interface {
	TestKey(ctx context.Context, key, provider string) error
}

type Window interface {
	Toggle() bool
	Visible() bool
	Opacity() float64
	SetOpacity(v float64)
}

// Deps are the collaborators the loop drives. Publisher may be nil.
type Deps struct {
	Store     Screenshots
	Processor Processor
	Config    Config
	Keys      KeyTester
	Window    Window
	State     *appstate.State
	Publisher messages.Publisher
}

type reply struct {
	result any
	err    error
}

type request struct {
	cmd   Command
	reply chan reply // nil for fire-and-forget
}

type handlerFunc func(ctx context.Context, cmd Command) (any, error)

type handler struct {
	fn handlerFunc
	// background handlers run off the loop goroutine because they wait
	// on the network
	background bool
}

// Loop is the single-threaded coordinator: every command is dispatched
// from one goroutine so store and state changes are serialized.
type Loop struct {
	deps     Deps
	requests chan request
	handlers map[string]handler
	done     chan struct{}
	wg       sync.WaitGroup
}

func New(d Deps) *Loop {
	if d.State == nil {
		d.State = appstate.New()
	}
	l := &Loop{
		deps:     d,
		requests: make(chan request, 16),
		done:     make(chan struct{}),
	}
	l.handlers = map[string]handler{
		control.CmdTakeScreenshot: {fn: l.takeScreenshot},
		control.CmdProcess:        {fn: l.process},
		control.CmdReset:          {fn: l.reset},
		control.CmdDeleteLast:     {fn: l.deleteLast},
		control.CmdDelete:         {fn: l.delete},
		control.CmdList:           {fn: l.list},
		control.CmdGetConfig:      {fn: l.getConfig},
		control.CmdUpdateConfig:   {fn: l.updateConfig},
		control.CmdValidateKey:    {fn: l.validateKey, background: true},
		control.CmdToggleWindow:   {fn: l.toggleWindow},
		control.CmdSetOpacity:     {fn: l.setOpacity},
	}
	return l
}

// Post queues a command without waiting for its result. Hotkeys and the
// tray use it; a full queue drops the command.
func (l *Loop) Post(name string) {
	select {
	case l.requests <- request{cmd: Command{Name: name}}:
	case <-l.done:
	default:
		log.Printf("eventloop: queue full, dropping %s", name)
	}
}

// Do runs cmd on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, cmd Command) (any, error) {
	// the request buffer still accepts sends after Run returns
	select {
	case <-l.done:
		return nil, ErrStopped
	default:
	}
	ch := make(chan reply, 1)
	select {
	case l.requests <- request{cmd: cmd, reply: ch}:
	case <-l.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-ch:
		return r.result, r.err
	case <-l.done:
		select {
		case r := <-ch:
			return r.result, r.err
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handle lets the loop serve control connections.
func (l *Loop) Handle(ctx context.Context, req control.Request) (any, error) {
	return l.Do(ctx, Command{Name: req.Command, Args: req.Args})
}

// Run dispatches commands until ctx is done, then waits for background
// work it started.
func (l *Loop) Run(ctx context.Context) error {
	defer l.wg.Wait()
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-l.requests:
			l.dispatch(ctx, req)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, req request) {
	name := strings.ToLower(req.cmd.Name)
	h, ok := l.handlers[name]
	if !ok {
		log.Printf("eventloop: unknown command %q", req.cmd.Name)
		l.respond(req, nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.cmd.Name))
		return
	}
	if h.background {
		l.spawn(func() {
			res, err := h.fn(ctx, req.cmd)
			l.respond(req, res, err)
		})
		return
	}
	res, err := h.fn(ctx, req.cmd)
	l.respond(req, res, err)
}

func (l *Loop) respond(req request, res any, err error) {
	if err != nil {
		log.Printf("eventloop: %s: %v", req.cmd.Name, err)
	}
	if req.reply != nil {
		req.reply <- reply{result: res, err: err}
	}
}

func (l *Loop) spawn(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

func (l *Loop) publish(ev messages.Event) {
	if l.deps.Publisher != nil {
		l.deps.Publisher.Publish(ev)
	}
}

func (l *Loop) takeScreenshot(ctx context.Context, _ Command) (any, error) {
	kind := l.deps.State.ActiveKind()
	path, err := l.deps.Store.Capture(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("take screenshot: %w", err)
	}
	ev := messages.ScreenshotTaken{Path: path, Kind: kind.String(), Preview: l.deps.Store.Preview(path)}
	l.publish(ev)
	return control.ScreenshotResult(ev), nil
}

func (l *Loop) process(ctx context.Context, _ Command) (any, error) {
	l.spawn(func() {
		if err := l.deps.Processor.Process(ctx); err != nil {
			if errors.Is(err, pipeline.ErrBusy) {
				l.publish(messages.ProcessingStatus{Message: "Processing already in progress"})
			}
			log.Printf("eventloop: process: %v", err)
		}
	})
	return control.StatusResult{Status: "started"}, nil
}

func (l *Loop) reset(context.Context, Command) (any, error) {
	l.deps.Processor.Reset()
	return control.StatusResult{Status: "reset"}, nil
}

func (l *Loop) deleteLast(context.Context, Command) (any, error) {
	path, err := l.deps.Store.DeleteLast(l.deps.State.ActiveKind())
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, ErrQueueEmpty
	}
	l.publish(messages.ScreenshotDeleted{Path: path})
	return control.DeleteArgs{Path: path}, nil
}

func (l *Loop) delete(_ context.Context, cmd Command) (any, error) {
	var args control.DeleteArgs
	if err := cmd.bind(&args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, errors.New("path is required")
	}
	found, err := l.deps.Store.Remove(args.Path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotQueued, args.Path)
	}
	l.publish(messages.ScreenshotDeleted{Path: args.Path})
	return control.DeleteArgs{Path: args.Path}, nil
}

func (l *Loop) list(context.Context, Command) (any, error) {
	res := control.ListResult{View: string(l.deps.State.View()), Screenshots: []control.ListEntry{}}
	for _, r := range l.deps.Store.Records() {
		res.Screenshots = append(res.Screenshots, control.ListEntry{
			Path:    r.Path,
			Kind:    r.Kind.String(),
			Preview: l.deps.Store.Preview(r.Path),
		})
	}
	return res, nil
}

func (l *Loop) getConfig(context.Context, Command) (any, error) {
	return l.deps.Config.Load().Redacted(), nil
}

func (l *Loop) updateConfig(_ context.Context, cmd Command) (any, error) {
	var u config.Partial
	if err := cmd.bind(&u); err != nil {
		return nil, err
	}
	cfg, err := l.deps.Config.Update(u)
	if err != nil {
		return nil, err
	}
	if u.Opacity != nil {
		l.deps.Window.SetOpacity(cfg.Opacity)
	}
	return cfg.Redacted(), nil
}

func (l *Loop) validateKey(ctx context.Context, cmd Command) (any, error) {
	var args control.ValidateKeyArgs
	if err := cmd.bind(&args); err != nil {
		return nil, err
	}
	if !llm.IsValidAPIKeyFormat(args.APIKey, args.Provider) {
		return control.ValidateKeyResult{Valid: false, Error: "API key format is invalid"}, nil
	}
	if err := l.deps.Keys.TestKey(ctx, args.APIKey, args.Provider); err != nil {
		return control.ValidateKeyResult{Valid: false, Error: err.Error()}, nil
	}
	return control.ValidateKeyResult{Valid: true}, nil
}

func (l *Loop) toggleWindow(context.Context, Command) (any, error) {
	visible := l.deps.Window.Toggle()
	return control.WindowResult{Visible: visible, Opacity: l.deps.Window.Opacity()}, nil
}

func (l *Loop) setOpacity(_ context.Context, cmd Command) (any, error) {
	var args control.OpacityArgs
	if err := cmd.bind(&args); err != nil {
		return nil, err
	}
	cfg, err := l.deps.Config.Update(config.Partial{Opacity: &args.Opacity})
	if err != nil {
		return nil, err
	}
	// the window may hide at very low opacity; the stored value is clamped
	l.deps.Window.SetOpacity(args.Opacity)
	return control.WindowResult{Visible: l.deps.Window.Visible(), Opacity: cfg.Opacity}, nil
}
