package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shadow-ai/src/messages"
)

const (
	requestReadTimeout = 3 * time.Second
	subscriberBuffer   = 32
)

var ErrNoFreePort = errors.New("no free port in control range")

// Handler executes one command and returns the value sent back as JSON.
type Handler interface {
	Handle(ctx context.Context, req Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (any, error) { return f(ctx, req) }

// Events is the subscription side of the event bus.
type Events interface {
	Subscribe(name string, bufferSize int) (<-chan messages.Event, error)
	Unsubscribe(name string)
}

// Server owns the loopback endpoint of the resident.
type Server struct {
	ports   PortRange
	handler Handler
	events  Events

	mu     sync.Mutex
	lis    net.Listener
	port   int
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
	nextID atomic.Uint64
}

// NewServer returns a server for the given range. events may be nil, in
// which case SUBSCRIBE is refused.
func NewServer(ports PortRange, h Handler, events Events) *Server {
	return &Server{
		ports:   ports.normalized(),
		handler: h,
		events:  events,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the first free port of the range and serves until ctx is
// done or Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	for port := s.ports.Start; port <= s.ports.End; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			continue
		}
		s.lis = lis
		s.port = port
		log.Printf("control: listening on %s", addr)
		s.wg.Add(1)
		go s.acceptLoop(ctx, lis)
		go func() {
			<-ctx.Done()
			_ = s.Close()
		}()
		return nil
	}
	log.Printf("control: no free port in %d-%d", s.ports.Start, s.ports.End)
	return fmt.Errorf("%w %d-%d", ErrNoFreePort, s.ports.Start, s.ports.End)
}

// Port returns the bound port, or 0 if not started.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	lis := s.lis
	s.lis = nil
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	if lis == nil {
		return nil
	}
	err := lis.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener) {
	defer s.wg.Done()
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		s.track(c, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(c, false)
			defer c.Close()
			s.serve(ctx, c)
		}()
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) serve(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	_ = c.SetReadDeadline(time.Now().Add(requestReadTimeout))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return
	}
	_ = c.SetReadDeadline(time.Time{})
	bw := bufio.NewWriter(c)

	if line == pingRequest {
		log.Printf("control: PING from %s -> PONG", remote)
		_, _ = bw.WriteString(pongResponse)
		_ = bw.Flush()
		return
	}
	if strings.EqualFold(strings.TrimSpace(line), subscribeRequest) {
		s.stream(ctx, br, bw)
		return
	}

	req, err := ParseRequest(line)
	if err != nil {
		respondError(bw, err.Error())
		return
	}
	log.Printf("control: %s from %s", req.Command, remote)
	result, err := s.handler.Handle(ctx, req)
	if err != nil {
		log.Printf("control: %s failed: %v", req.Command, err)
		respondError(bw, err.Error())
		return
	}
	respondSuccess(bw, result)
}

// stream forwards bus events as envelope lines until the client hangs up
// or the server stops.
func (s *Server) stream(ctx context.Context, br *bufio.Reader, bw *bufio.Writer) {
	if s.events == nil {
		respondError(bw, "events unavailable")
		return
	}
	name := fmt.Sprintf("control-%d", s.nextID.Add(1))
	ch, err := s.events.Subscribe(name, subscriberBuffer)
	if err != nil {
		respondError(bw, err.Error())
		return
	}
	defer s.events.Unsubscribe(name)

	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		_, _ = br.ReadByte()
	}()

	if _, err := bw.WriteString(successStatus); err != nil || bw.Flush() != nil {
		return
	}
	enc := json.NewEncoder(bw)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			env, err := messages.Wrap(ev)
			if err != nil {
				log.Printf("control: cannot encode %s: %v", ev.Type(), err)
				continue
			}
			if err := enc.Encode(env); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
		}
	}
}

func respondSuccess(bw *bufio.Writer, result any) {
	body := []byte("null")
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			respondError(bw, fmt.Sprintf("encode result: %v", err))
			return
		}
		body = b
	}
	_, _ = bw.WriteString(successStatus)
	_, _ = bw.Write(body)
	_ = bw.Flush()
}

func respondError(bw *bufio.Writer, msg string) {
	_, _ = bw.WriteString(errorStatus + msg)
	_ = bw.Flush()
}
