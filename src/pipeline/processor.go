// Package pipeline turns queued screenshots into a solution or a debug
// analysis and reports progress on the event bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"shadow-ai/src/appstate"
	"shadow-ai/src/config"
	"shadow-ai/src/llm"
	"shadow-ai/src/logutil"
	"shadow-ai/src/messages"
	"shadow-ai/src/parse"
	"shadow-ai/src/store"
)

// User-facing failure messages.
const (
	msgProcessFailed  = "Failed to process screenshot"
	msgSolutionFailed = "Failed to generate solutions"
	msgDebugFailed    = "Failed to process extra screenshots"
	msgNoProblemInfo  = "No problem info found. Solve the problem before debugging."
)

// Screenshots is the read side of store.Store plus the clears the
// pipeline is allowed to trigger.
type Screenshots interface {
	Existing(k store.Kind) []string
	Queue(k store.Kind) []string
	ClearExtra()
	ClearAll()
}

// Clients hands out a provider bound to a model.
type Clients interface {
	Provider(model string) (llm.Provider, error)
}

type ConfigSource interface {
	Load() config.Config
}

type path int

const (
	pathSolve path = iota
	pathDebug
)

func (p path) String() string {
	if p == pathDebug {
		return "debug"
	}
	return "solve"
}

// cycle is the cancellation token of one solve or debug run.
type cycle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *cycle) cancelled() bool { return c.ctx.Err() != nil }

// Processor runs at most one solve and one debug cycle at a time; further
// triggers of a running path are rejected with ErrBusy.
type Processor struct {
	shots   Screenshots
	clients Clients
	cfg     ConfigSource
	state   *appstate.State
	pub     messages.Publisher

	// one-slot queues, as in a worker pool with strict back-pressure
	slots [2]chan struct{}

	mu     sync.Mutex
	cycles [2]*cycle
}

func New(shots Screenshots, clients Clients, cfg ConfigSource, state *appstate.State, pub messages.Publisher) *Processor {
	if state == nil {
		state = appstate.New()
	}
	return &Processor{
		shots:   shots,
		clients: clients,
		cfg:     cfg,
		state:   state,
		pub:     pub,
		slots:   [2]chan struct{}{make(chan struct{}, 1), make(chan struct{}, 1)},
	}
}

func (p *Processor) publish(ev messages.Event) {
	if p.pub != nil {
		p.pub.Publish(ev)
	}
}

// emit publishes only while the cycle is live.
func (p *Processor) emit(c *cycle, ev messages.Event) bool {
	if c.cancelled() {
		log.Printf("pipeline: dropping %s, cycle cancelled", ev.Type())
		return false
	}
	p.publish(ev)
	return true
}

func (p *Processor) status(c *cycle, progress int, msg string) {
	p.emit(c, messages.ProcessingStatus{Message: msg, Progress: progress})
}

func (p *Processor) begin(ctx context.Context, which path) (*cycle, error) {
	select {
	case p.slots[which] <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &cycle{ctx: cctx, cancel: cancel}
	p.mu.Lock()
	p.cycles[which] = c
	p.mu.Unlock()
	return c, nil
}

func (p *Processor) end(which path, c *cycle) {
	p.mu.Lock()
	if p.cycles[which] == c {
		p.cycles[which] = nil
	}
	p.mu.Unlock()
	c.cancel()
	<-p.slots[which]
}

// Busy reports whether any cycle is running.
func (p *Processor) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles[pathSolve] != nil || p.cycles[pathDebug] != nil
}

func (p *Processor) language(cfg config.Config) string {
	if cfg.Language != "" {
		return cfg.Language
	}
	return "python"
}

func modelOr(model, provider string) string {
	if model == "" {
		return config.DefaultModel(provider)
	}
	return model
}

// Process runs the solve path in the queue view and the debug path
// otherwise. It blocks until the cycle finishes and always leaves a final
// event behind: success, error, or no-screenshots.
func (p *Processor) Process(ctx context.Context) error {
	cfg := p.cfg.Load()
	if _, err := p.clients.Provider(modelOr(cfg.ExtractionModel, cfg.APIProvider)); err != nil {
		log.Printf("pipeline: no AI client available: %v", err)
		p.publish(messages.APIKeyInvalid{})
		return stepError("client", err)
	}

	if p.state.View() == appstate.ViewQueue {
		return p.solve(ctx)
	}
	return p.debug(ctx)
}

func (p *Processor) solve(ctx context.Context) error {
	c, err := p.begin(ctx, pathSolve)
	if err != nil {
		log.Printf("pipeline: solve rejected: %v", err)
		return err
	}
	defer p.end(pathSolve, c)

	p.publish(messages.ProcessingStarted{})

	paths := p.shots.Existing(store.Primary)
	if len(paths) == 0 {
		log.Printf("pipeline: no screenshots to process")
		p.publish(messages.NoScreenshots{})
		return nil
	}

	images, err := loadImages(c.ctx, paths)
	if err != nil {
		return p.solveFailed(c, msgProcessFailed, stepError("read screenshots", err))
	}

	p.status(c, 20, "Analyzing problem from screenshot...")
	problem, err := p.extract(c.ctx, images)
	if c.cancelled() {
		return context.Canceled
	}
	if err != nil {
		return p.solveFailed(c, msgProcessFailed, err)
	}

	p.status(c, 40, "Problem analyzed successfully. Preparing to generate solution...")
	p.state.SetProblemInfo(problem)
	p.emit(c, messages.ProblemExtracted{ProblemInfo: problem})

	p.status(c, 60, "Creating optimal solution with detailed explanation...")
	sol, err := p.generateSolution(c.ctx, problem)
	if c.cancelled() {
		return context.Canceled
	}
	if err != nil {
		return p.solveFailed(c, msgSolutionFailed, err)
	}

	p.shots.ClearExtra()
	p.status(c, 100, "Solution generated successfully. Displaying results...")
	if p.emit(c, messages.SolutionReady{Solution: sol}) {
		p.state.SetView(appstate.ViewSolutions)
	}
	return nil
}

func (p *Processor) solveFailed(c *cycle, msg string, err error) error {
	log.Printf("pipeline: solve %v", err)
	if p.emit(c, messages.SolutionError{Message: msg}) {
		p.state.SetView(appstate.ViewQueue)
	}
	return err
}

func (p *Processor) debug(ctx context.Context) error {
	extra := p.shots.Existing(store.Extra)
	if len(extra) == 0 {
		log.Printf("pipeline: no extra screenshots to process")
		p.publish(messages.NoScreenshots{})
		return nil
	}

	c, err := p.begin(ctx, pathDebug)
	if err != nil {
		log.Printf("pipeline: debug rejected: %v", err)
		return err
	}
	defer p.end(pathDebug, c)

	p.publish(messages.DebugStarted{})

	problem, ok := p.state.ProblemInfo()
	if !ok {
		return p.debugFailed(c, msgNoProblemInfo, &StepError{Step: "debug", Kind: KindConfig, Err: ErrNoProblemInfo})
	}

	paths := append(p.shots.Queue(store.Primary), extra...)
	images, err := loadImages(c.ctx, paths)
	if err != nil {
		return p.debugFailed(c, msgDebugFailed, stepError("read screenshots", err))
	}
	log.Printf("pipeline: debugging with %d screenshots", len(images))

	p.status(c, 30, "Processing debug screenshots...")
	cfg := p.cfg.Load()
	prov, err := p.clients.Provider(modelOr(cfg.DebuggingModel, cfg.APIProvider))
	if err != nil {
		return p.debugFailed(c, msgDebugFailed, stepError("debug", err))
	}

	p.status(c, 60, "Analyzing debug screenshots...")
	text, err := prov.Extract(c.ctx, llm.Request{
		System: debugSystemPrompt,
		User:   debugUserPrompt(problem.ProblemStatement, p.language(cfg)),
		Images: images,
	})
	if c.cancelled() {
		return context.Canceled
	}
	if err != nil {
		return p.debugFailed(c, msgDebugFailed, stepError("debug", err))
	}
	log.Printf("pipeline: debug response %s", logutil.Sanitize(text))

	p.status(c, 100, "Debug analysis complete")
	result := parse.ParseDebug(text)
	p.state.SetHasDebugged(true)
	if p.emit(c, messages.DebugReady{Debug: result}) {
		p.state.SetView(appstate.ViewDebug)
	}
	return nil
}

func (p *Processor) debugFailed(c *cycle, msg string, err error) error {
	log.Printf("pipeline: debug %v", err)
	p.emit(c, messages.DebugError{Message: msg})
	return err
}

// extract asks the extraction model for the problem as JSON.
func (p *Processor) extract(ctx context.Context, images []llm.Image) (parse.ProblemInfo, error) {
	cfg := p.cfg.Load()
	prov, err := p.clients.Provider(modelOr(cfg.ExtractionModel, cfg.APIProvider))
	if err != nil {
		return parse.ProblemInfo{}, stepError("extraction", err)
	}
	log.Printf("pipeline: extracting problem with %s/%s from %d screenshots", prov.Name(), prov.Model(), len(images))
	text, err := prov.Extract(ctx, llm.Request{
		System: extractionSystemPrompt,
		User:   extractionUserPrompt(p.language(cfg)),
		Images: images,
	})
	if err != nil {
		return parse.ProblemInfo{}, stepError("extraction", err)
	}
	log.Printf("pipeline: extraction response %s", logutil.Sanitize(text))
	problem, err := parse.ParseProblemInfo(text)
	if err != nil {
		return parse.ProblemInfo{}, stepError("extraction", err)
	}
	return problem, nil
}

// generateSolution asks the solution model for code and analysis.
func (p *Processor) generateSolution(ctx context.Context, problem parse.ProblemInfo) (parse.Solution, error) {
	cfg := p.cfg.Load()
	prov, err := p.clients.Provider(modelOr(cfg.SolutionModel, cfg.APIProvider))
	if err != nil {
		return parse.Solution{}, stepError("solution", err)
	}
	log.Printf("pipeline: generating solution with %s/%s", prov.Name(), prov.Model())
	text, err := prov.Generate(ctx, llm.Request{
		System: solutionSystemPrompt,
		User:   solutionUserPrompt(problem, p.language(cfg)),
	})
	if err != nil {
		return parse.Solution{}, stepError("solution", err)
	}
	log.Printf("pipeline: solution response %s", logutil.Sanitize(text))
	return parse.ParseSolution(text), nil
}

// Solve runs extraction and solution generation on images directly,
// without the queues, the state or any events.
func (p *Processor) Solve(ctx context.Context, images []llm.Image) (parse.ProblemInfo, parse.Solution, error) {
	if len(images) == 0 {
		return parse.ProblemInfo{}, parse.Solution{}, stepError("read screenshots", ErrNoImages)
	}
	problem, err := p.extract(ctx, images)
	if err != nil {
		return parse.ProblemInfo{}, parse.Solution{}, err
	}
	sol, err := p.generateSolution(ctx, problem)
	if err != nil {
		return problem, parse.Solution{}, err
	}
	return problem, sol, nil
}

// Cancel signals every running cycle, clears the problem and debug flag,
// and publishes no-screenshots if anything was actually running.
func (p *Processor) Cancel() {
	p.mu.Lock()
	wasCancelled := false
	for _, c := range p.cycles {
		if c != nil && !c.cancelled() {
			c.cancel()
			wasCancelled = true
		}
	}
	p.mu.Unlock()

	p.state.SetHasDebugged(false)
	p.state.ClearProblemInfo()

	if wasCancelled {
		log.Printf("pipeline: cancelled ongoing request")
		p.publish(messages.NoScreenshots{})
	}
}

// Reset cancels, empties both queues and returns to the queue view.
func (p *Processor) Reset() {
	p.Cancel()
	if p.shots != nil {
		p.shots.ClearAll()
	}
	p.state.SetView(appstate.ViewQueue)
	p.publish(messages.ResetView{})
}

// loadImages reads files in parallel, keeping their order. Files that
// vanished since they were queued are skipped.
func loadImages(ctx context.Context, paths []string) ([]llm.Image, error) {
	read := make([]*llm.Image, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("pipeline: screenshot not found: %s", path)
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			img := llm.NewImage(data)
			read[i] = &img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var images []llm.Image
	for _, img := range read {
		if img != nil {
			images = append(images, *img)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images, nil
}
