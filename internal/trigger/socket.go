package trigger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/majorcontext/ephemera/internal/clock"
	"github.com/majorcontext/ephemera/internal/log"
	"github.com/majorcontext/ephemera/internal/payload"
)

// SocketMessage is the wire format accepted by Socket, one JSON object per
// line.
type SocketMessage struct {
	Event string `json:"event"`
	GPIO  uint8  `json:"gpio"`
}

// Socket listens on a Unix socket for trigger messages from other local
// processes, such as a GPIO watcher.
type Socket struct {
	Path  string
	Clock clock.Clock

	ready chan struct{}
	once  sync.Once
}

// Ready is closed once the socket is accepting connections.
func (s *Socket) Ready() <-chan struct{} {
	s.once.Do(func() { s.ready = make(chan struct{}) })
	return s.ready
}

// Run implements Source. The socket file is removed on return.
func (s *Socket) Run(ctx context.Context, out chan<- Trigger) error {
	// Remove a stale socket file left by a previous run
	os.Remove(s.Path)

	listener, err := net.Listen("unix", s.Path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Path, err)
	}
	defer os.Remove(s.Path)

	// Write-only: local processes may trigger but never read back.
	if err := os.Chmod(s.Path, 0222); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	close(s.Ready())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.acceptLoop(ctx, listener, out, &wg)
	}()

	<-ctx.Done()
	listener.Close()
	wg.Wait()
	return nil
}

func (s *Socket) acceptLoop(ctx context.Context, listener net.Listener, out chan<- Trigger, wg *sync.WaitGroup) {
	var mu sync.Mutex
	conns := make(map[net.Conn]struct{})
	defer func() {
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Debug("accepting trigger connection", "error", err)
			continue
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
				conn.Close()
			}()
			s.handleConnection(ctx, conn, out)
		}()
	}
}

func (s *Socket) handleConnection(ctx context.Context, conn net.Conn, out chan<- Trigger) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg SocketMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Debug("ignoring malformed trigger message", "error", err)
			continue
		}
		if msg.Event != payload.KindButtonPress.String() {
			log.Warn("ignoring unknown trigger event", "event", msg.Event)
			continue
		}
		t := Trigger{Event: payload.ButtonPress{GPIO: msg.GPIO}, At: s.Clock.NowMS()}
		if err := send(ctx, out, t); err != nil {
			return
		}
	}
}
