package pipeline

import (
	"errors"
	"fmt"
	"os"

	"shadow-ai/src/llm"
	"shadow-ai/src/parse"
)

var (
	// ErrBusy rejects a trigger while a cycle of the same kind is running.
	ErrBusy          = errors.New("processing already in progress")
	ErrNoProblemInfo = errors.New("no problem info found")
	ErrNoImages      = errors.New("no valid screenshots to process")
)

// ErrorKind classifies a step failure for logging. Users only ever see
// the generic message of the failed path.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindConfig
	KindParse
	KindFileSystem
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindParse:
		return "parse"
	case KindFileSystem:
		return "filesystem"
	default:
		return "transport"
	}
}

// StepError is a failed pipeline step.
type StepError struct {
	Step string
	Kind ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepError(step string, err error) *StepError {
	return &StepError{Step: step, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	var pathErr *os.PathError
	switch {
	case errors.Is(err, llm.ErrNoClient):
		return KindConfig
	case errors.Is(err, parse.ErrInvalidProblemJSON), errors.Is(err, llm.ErrEmptyResponse):
		return KindParse
	case errors.Is(err, ErrNoImages), errors.As(err, &pathErr):
		return KindFileSystem
	default:
		return KindTransport
	}
}
