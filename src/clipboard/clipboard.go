// Package clipboard copies generated code to the system clipboard.
package clipboard

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"golang.design/x/clipboard"

	"shadow-ai/src/messages"
	"shadow-ai/src/parse"
)

var ErrUnavailable = errors.New("clipboard unavailable")

var (
	writeMu sync.Mutex
	ready   bool
)

func Init() error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := clipboard.Init(); err != nil {
		return err
	}
	ready = true
	return nil
}

// Write performs a mutex-guarded clipboard write.
func Write(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if !ready {
		return ErrUnavailable
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// Copier puts the code of each solution and debug result on the
// clipboard.
type Copier struct {
	write func(string) error
}

// NewCopier uses write, or the system clipboard when write is nil.
func NewCopier(write func(string) error) *Copier {
	if write == nil {
		write = Write
	}
	return &Copier{write: write}
}

// Run consumes events until ctx is done or the channel closes.
func (c *Copier) Run(ctx context.Context, events <-chan messages.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ev)
		}
	}
}

func (c *Copier) handle(ev messages.Event) bool {
	var code string
	switch e := ev.(type) {
	case messages.SolutionReady:
		code = e.Code
	case messages.DebugReady:
		code = e.Code
	default:
		return false
	}
	code = strings.TrimSpace(code)
	if code == "" || code == parse.DebugCodePlaceholder {
		return false
	}
	if err := c.write(code); err != nil {
		log.Printf("clipboard: copy failed: %v", err)
		return false
	}
	log.Printf("clipboard: copied %d bytes of %s code", len(code), ev.Type())
	return true
}
