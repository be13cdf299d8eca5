package chshare

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/openrport/rguard/share/logger"
)

var ErrServerNotStarted = errors.New("http server is not started")

type ServerOption func(*HTTPServer)

func WithTLS(certFile string, keyFile string, tlsConfig *tls.Config) ServerOption {
	return func(s *HTTPServer) {
		s.certFile = certFile
		s.keyFile = keyFile
		s.TLSConfig = tlsConfig
	}
}

// HTTPServer extends net/http Server and
// adds graceful shutdowns
type HTTPServer struct {
	*http.Server
	mu       sync.Mutex
	listener net.Listener
	started  bool
	stopOnce sync.Once
	done     chan struct{}
	err      error
	certFile string
	keyFile  string
	logger   *logger.Logger
}

// NewHTTPServer creates a new HTTPServer
func NewHTTPServer(maxHeaderBytes int, l *logger.Logger, options ...ServerOption) *HTTPServer {
	if l == nil {
		l = logger.NewDiscardLogger()
	}
	s := &HTTPServer{
		Server:   &http.Server{MaxHeaderBytes: maxHeaderBytes, ReadHeaderTimeout: 5 * time.Second},
		listener: nil,
		done:     make(chan struct{}),
		logger:   l.Fork("http-server"),
	}

	for _, o := range options {
		if o != nil {
			o(s)
		}
	}

	return s
}

func (h *HTTPServer) GoListenAndServe(addr string, handler http.Handler) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.started = true
	h.Handler = handler
	h.listener = l
	h.mu.Unlock()
	go func() {
		if h.certFile != "" && h.keyFile != "" {
			h.logger.Debugf("serving HTTPS on %s", l.Addr())
			h.closeWith(h.ServeTLS(l, h.certFile, h.keyFile))
		} else {
			h.logger.Debugf("serving HTTP on %s", l.Addr())
			h.closeWith(h.Serve(l))
		}
	}()
	return nil
}

// Addr returns the address the server listens on, useful when it was started on port 0.
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *HTTPServer) closeWith(err error) {
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.stopOnce.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *HTTPServer) Close() error {
	h.closeWith(nil)
	return h.Server.Close()
}

// Wait blocks until the server stopped and returns the error it stopped with.
func (h *HTTPServer) Wait() error {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return ErrServerNotStarted
	}
	<-h.done
	return h.err
}
