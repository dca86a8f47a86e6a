package bus

import (
	"fmt"
	"net"
	"sync"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process NATS server so a single-binary
// dev/test deployment can exercise the cross-replica bridge without an
// external broker, adapting the teacher's embedded-server wrapper.
type EmbeddedServer struct {
	mu      sync.Mutex
	server  *natsserver.Server
	port    int
	running bool
}

// NewEmbeddedServer builds a server bound to port (0 picks a free port).
func NewEmbeddedServer(port int) *EmbeddedServer {
	return &EmbeddedServer{port: port}
}

// Start launches the server and blocks until it is ready for connections.
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("bus: embedded server already running")
	}

	opts := &natsserver.Options{Host: "127.0.0.1", Port: e.port, NoSigs: true}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return fmt.Errorf("bus: create embedded server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("bus: embedded server not ready for connections")
	}

	e.server = srv
	if tcpAddr, ok := srv.Addr().(*net.TCPAddr); ok {
		e.port = tcpAddr.Port
	}
	e.running = true
	return nil
}

// URL returns the nats:// URL clients should Connect to.
func (e *EmbeddedServer) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", e.port)
}

// Shutdown stops the server and waits for it to fully exit.
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
	e.server = nil
}
