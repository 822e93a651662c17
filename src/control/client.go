package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"shadow-ai/src/messages"
)

var ErrNoResident = errors.New("no resident instance found")

// RemoteError is an ERROR response from the resident.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Client talks to a resident on a known port.
type Client struct {
	Port    int
	Timeout time.Duration
}

// Connect finds the resident in the range.
func Connect(ctx context.Context, ports PortRange) (*Client, error) {
	port, ok := DetectResidentPort(ctx, ports)
	if !ok {
		return nil, ErrNoResident
	}
	return &Client{Port: port, Timeout: 2 * time.Second}, nil
}

func (c *Client) addr() string {
	return net.JoinHostPort(residentHost, strconv.Itoa(c.Port))
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return nil, fmt.Errorf("connect to resident: %w", err)
	}
	return conn, nil
}

// Call sends one command and decodes the SUCCESS body into out, which may
// be nil. It waits for as long as ctx allows, so long commands such as
// take-screenshot are not cut short by the dial timeout.
func (c *Client) Call(ctx context.Context, command string, args any, out any) error {
	line, err := FormatRequest(command, args)
	if err != nil {
		return err
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read response status: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("read response body: %w", err)
	}
	switch status {
	case successStatus:
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s result: %w", command, err)
		}
		return nil
	case errorStatus:
		return &RemoteError{Command: command, Message: string(body)}
	default:
		return fmt.Errorf("unexpected response status %q", status)
	}
}

// Subscribe streams events to fn until fn returns false, ctx is done or
// the resident closes the stream.
func (c *Client) Subscribe(ctx context.Context, fn func(messages.Event) bool) error {
	return c.subscribe(ctx, nil, fn)
}

// subscribe calls ready once the stream is established.
func (c *Client) subscribe(ctx context.Context, ready func(), fn func(messages.Event) bool) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, subscribeRequest+"\n"); err != nil {
		return err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read subscribe status: %w", err)
	}
	if status != successStatus {
		msg, _ := io.ReadAll(br)
		return &RemoteError{Command: subscribeRequest, Message: string(msg)}
	}
	if ready != nil {
		ready()
	}

	dec := json.NewDecoder(br)
	for {
		var env messages.Envelope
		if err := dec.Decode(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := env.Decode()
		if err != nil {
			continue
		}
		if !fn(ev) {
			return nil
		}
	}
}

// CallAndWait subscribes, runs the command once the stream is live, and
// returns the first event accepted by done. This keeps events published
// while the command runs from being missed.
func (c *Client) CallAndWait(ctx context.Context, command string, args any, done func(messages.Event) bool) (messages.Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		final   messages.Event
		callErr = make(chan error, 1)
	)
	subErr := c.subscribe(ctx, func() {
		go func() {
			err := c.Call(ctx, command, args, nil)
			callErr <- err
			if err != nil {
				cancel()
			}
		}()
	}, func(ev messages.Event) bool {
		if done(ev) {
			final = ev
			return false
		}
		return true
	})

	select {
	case err := <-callErr:
		if err != nil {
			return nil, err
		}
	default:
	}
	if final != nil {
		return final, nil
	}
	if subErr != nil {
		return nil, subErr
	}
	return nil, fmt.Errorf("event stream closed before %s finished", command)
}
