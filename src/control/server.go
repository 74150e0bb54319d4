package control

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

const requestTimeout = 3 * time.Second

// Handler executes one request and returns the response body.
type Handler interface {
	Handle(ctx context.Context, req Request) (string, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req Request) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Server owns the TCP endpoint of the resident.
type Server struct {
	port    int
	handler Handler

	mu  sync.Mutex
	lis net.Listener
	wg  sync.WaitGroup
}

// NewServer returns a server that will bind port.
func NewServer(port int, h Handler) *Server {
	return &Server{port: port, handler: h}
}

// Start binds ONLY the configured port. If it is occupied another resident
// owns it and Start fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", residentHost, s.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("control: failed to bind %s: %v", addr, err)
		return err
	}
	s.lis = lis
	log.Printf("control: listening on %s", addr)
	s.wg.Add(1)
	go s.acceptLoop(ctx, lis)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return 0
	}
	return s.port
}

func (s *Server) acceptLoop(ctx context.Context, lis net.Listener) {
	defer s.wg.Done()
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, c)
		}()
	}
}

func (s *Server) serve(ctx context.Context, c net.Conn) {
	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in control handler: %v", r)
		}
	}()

	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(requestTimeout))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("control: read from %s: %v", remote, err)
		return
	}
	bw := bufio.NewWriter(c)
	defer bw.Flush()

	if line == pingRequest {
		_, _ = bw.WriteString(pongResponse)
		return
	}

	req, err := ParseRequest(line)
	if err != nil {
		_, _ = bw.WriteString(errorStatus + err.Error())
		return
	}
	log.Printf("control: %s from %s", req, remote)

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	body, err := s.handler.Handle(reqCtx, req)
	if err != nil {
		_, _ = bw.WriteString(errorStatus + err.Error())
		return
	}
	_, _ = bw.WriteString(okStatus + body)
}

// Close stops accepting and waits for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	lis := s.lis
	s.lis = nil
	s.mu.Unlock()
	if lis == nil {
		return nil
	}
	err := lis.Close()
	s.wg.Wait()
	return err
}
