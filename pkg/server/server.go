package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// Server owns the listeners, the one shared registry, and the per-connection
// handler goroutines.
type Server struct {
	config        ServerConfig
	secret        Secret
	registry      *Registry
	metrics       *Metrics
	listener      net.Listener
	wsServer      *http.Server
	metricsServer *http.Server
	shutdown      chan struct{}
	fatal         chan error
	wg            sync.WaitGroup
}

// NewServer creates a server instance, loading the shared secret from the
// configured auth file. An unreadable auth file is a startup (usage) error.
func NewServer(config ServerConfig) (*Server, error) {
	authPath, err := config.GetAuthFilePath()
	if err != nil {
		return nil, err
	}
	secret, err := LoadAuthFile(authPath)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	registry := NewRegistry()
	registry.SetMetrics(metrics)

	return &Server{
		config:   config,
		secret:   secret,
		registry: registry,
		metrics:  metrics,
		shutdown: make(chan struct{}),
		fatal:    make(chan error, 1),
	}, nil
}

// Registry returns the shared client registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Port returns the bound TCP port. Only valid after Start.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Start binds the TCP listener (ephemeral port when tcp_port is 0), reports
// the bound port number to the operator on stderr, and begins accepting
// connections. Optional WebSocket and metrics listeners start alongside.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	// The bound port line on stderr is part of the operator contract.
	fmt.Fprintf(os.Stderr, "%d\n", s.Port())
	log.Printf("TCP server listening on port %d", s.Port())

	if s.config.WSPort > 0 {
		if err := s.startWSServer(); err != nil {
			s.listener.Close()
			return err
		}
	}
	if s.config.MetricsPort > 0 {
		s.startMetricsServer()
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Err delivers at most one fatal server error. Accept failures are fatal
// for the whole server: if the process cannot take connections it cannot
// function at all.
func (s *Server) Err() <-chan error {
	return s.fatal
}

// Stop closes the listeners and every client connection.
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
	}
	if s.wsServer != nil {
		s.wsServer.Close()
	}
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}

	s.wg.Wait()
	s.registry.CloseAll()
	return nil
}

// acceptLoop accepts incoming connections until shutdown
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				s.fatal <- fmt.Errorf("accept: %w", err)
				return
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection runs the protocol state machine for one connection
func (s *Server) handleConnection(conn net.Conn) {
	// Disable Nagle's algorithm for immediate sends
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	s.metrics.RecordConnection()
	debugLog.Printf("new connection from %s", conn.RemoteAddr())

	NewHandler(s.registry, s.secret, NewSafeConn(conn)).Run()
}

// startWSServer starts the WebSocket listener carrying the same line
// protocol.
func (s *Server) startWSServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", s.config.WSPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.wsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	log.Printf("WebSocket server listening on port %d (ws://host:%d/ws)", s.config.WSPort, s.config.WSPort)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.wsServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket server error: %v", err)
		}
	}()
	return nil
}

// startMetricsServer exposes Prometheus metrics on the configured port.
func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())

	s.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Metrics server listening on port %d", s.config.MetricsPort)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}
