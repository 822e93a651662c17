// Package control exposes the resident's commands and events on a
// loopback TCP line protocol.
//
// A connection sends one request line and gets one response:
//
//	PING                 -> PONG
//	<COMMAND> [json]     -> SUCCESS\n<json> or ERROR\n<message>
//	SUBSCRIBE            -> one JSON event envelope per line until closed
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	residentHost     = "127.0.0.1"
	pingRequest      = "PING\n"
	pongResponse     = "PONG\n"
	subscribeRequest = "SUBSCRIBE"
	successStatus    = "SUCCESS\n"
	errorStatus      = "ERROR\n"
)

// Command names accepted by the resident.
const (
	CmdTakeScreenshot = "take-screenshot"
	CmdProcess        = "process"
	CmdReset          = "reset"
	CmdDeleteLast     = "delete-last"
	CmdDelete         = "delete"
	CmdList           = "list"
	CmdGetConfig      = "get-config"
	CmdUpdateConfig   = "update-config"
	CmdValidateKey    = "validate-key"
	CmdToggleWindow   = "toggle-window"
	CmdSetOpacity     = "set-opacity"
)

var ErrEmptyRequest = errors.New("empty request")

// Request is one parsed command line.
type Request struct {
	Command string
	Args    json.RawMessage
}

// Bind decodes the request arguments into v. Missing arguments leave v
// untouched.
func (r Request) Bind(v any) error {
	if len(r.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", r.Command, err)
	}
	return nil
}

// ParseRequest splits "<COMMAND> [json]". Command names are case
// insensitive.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, ErrEmptyRequest
	}
	name, rest, _ := strings.Cut(line, " ")
	req := Request{Command: strings.ToLower(name)}
	if rest = strings.TrimSpace(rest); rest != "" {
		if !json.Valid([]byte(rest)) {
			return Request{}, fmt.Errorf("arguments for %s are not valid JSON", req.Command)
		}
		req.Args = json.RawMessage(rest)
	}
	return req, nil
}

// FormatRequest is the inverse of ParseRequest.
func FormatRequest(command string, args any) (string, error) {
	if args == nil {
		return command + "\n", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}
	return command + " " + string(b) + "\n", nil
}

// Args for commands that take any.
type (
	DeleteArgs struct {
		Path string `json:"path"`
	}
	ValidateKeyArgs struct {
		APIKey   string `json:"apiKey"`
		Provider string `json:"provider,omitempty"`
	}
	OpacityArgs struct {
		Opacity float64 `json:"opacity"`
	}
)

// Results returned in SUCCESS bodies.
type (
	ScreenshotResult struct {
		Path    string `json:"path"`
		Kind    string `json:"kind"`
		Preview string `json:"preview,omitempty"`
	}
	ListEntry struct {
		Path    string `json:"path"`
		Kind    string `json:"kind"`
		Preview string `json:"preview,omitempty"`
	}
	ListResult struct {
		View        string      `json:"view"`
		Screenshots []ListEntry `json:"screenshots"`
	}
	ValidateKeyResult struct {
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	}
	WindowResult struct {
		Visible bool    `json:"visible"`
		Opacity float64 `json:"opacity"`
	}
	StatusResult struct {
		Status string `json:"status"`
	}
)
