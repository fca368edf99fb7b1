package devicemock

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Server serves a Device on two addresses, like the real gateway: the REST
// API and the log socket.
type Server struct {
	device *Device
	api    *http.Server
	logs   *http.Server
}

// NewServer creates a Server for d.
func NewServer(d *Device, apiAddr, logAddr string) *Server {
	return &Server{
		device: d,
		api:    &http.Server{Addr: apiAddr, Handler: d.Handler()},
		logs:   &http.Server{Addr: logAddr, Handler: d.LogHandler()},
	}
}

// ListenAndServe listens on both addresses. It blocks until the server is
// shut down or one listener fails.
func (s *Server) ListenAndServe() error {
	apiLn, err := net.Listen("tcp", s.api.Addr)
	if err != nil {
		return err
	}
	logLn, err := net.Listen("tcp", s.logs.Addr)
	if err != nil {
		apiLn.Close()
		return err
	}
	return s.Serve(apiLn, logLn)
}

// Serve accepts connections on the given listeners. Useful for tests.
func (s *Server) Serve(apiLn, logLn net.Listener) error {
	var g errgroup.Group
	g.Go(func() error { return ignoreClosed(s.api.Serve(apiLn)) })
	g.Go(func() error { return ignoreClosed(s.logs.Serve(logLn)) })
	return g.Wait()
}

// Shutdown gracefully shuts down both listeners and drops log clients,
// which would otherwise hold the shutdown open.
func (s *Server) Shutdown(ctx context.Context) error {
	s.device.Close()
	return errors.Join(s.api.Shutdown(ctx), s.logs.Shutdown(ctx))
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
