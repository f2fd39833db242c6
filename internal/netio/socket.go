package netio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const invalidFd = -1

// ServerSocket owns one listening TCP port and at most one accepted
// connection at a time. It is driven by a single worker goroutine; the
// only cross-goroutine entry point is Shutdown, which operates on raw
// file descriptors mirrored into atomic slots so a stuck Accept or Read
// in the owner can be forced to return.
type ServerSocket struct {
	port    int
	backlog int
	logger  *slog.Logger

	listenFd  atomic.Int64
	connFd    atomic.Int64
	boundPort atomic.Int64
}

// New creates a socket for the given port and listen backlog. Port 0
// lets the kernel pick; Port() reports the bound port after Listen.
func New(port, backlog int, logger *slog.Logger) *ServerSocket {
	s := &ServerSocket{port: port, backlog: backlog, logger: logger}
	s.listenFd.Store(invalidFd)
	s.connFd.Store(invalidFd)
	return s
}

// Listen binds the port and starts listening. It is a no-op when the
// socket is already listening, so retry loops may call it repeatedly.
// Failures that no amount of retrying will fix satisfy IsHardListenError.
func (s *ServerSocket) Listen() error {
	if s.listenFd.Load() != invalidFd {
		return nil
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return &hardListenError{fmt.Errorf("socket: %w", err)}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: s.port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EADDRNOTAVAIL) {
			return &hardListenError{fmt.Errorf("bind port %d: %w", s.port, err)}
		}
		return fmt.Errorf("bind port %d: %w", s.port, err)
	}
	if err := unix.Listen(fd, s.backlog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen port %d: %w", s.port, err)
	}
	bound, err := unix.Getsockname(fd)
	if err == nil {
		if sa4, ok := bound.(*unix.SockaddrInet4); ok {
			s.boundPort.Store(int64(sa4.Port))
		}
	}
	s.listenFd.Store(int64(fd))
	s.logger.Debug("listening", "port", s.Port(), "backlog", s.backlog)
	return nil
}

// Port returns the bound port once listening, the requested port before.
func (s *ServerSocket) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.port
}

// AcceptNext blocks for the next connection, replacing the current one.
func (s *ServerSocket) AcceptNext() error {
	lfd := s.listenFd.Load()
	if lfd == invalidFd {
		return errors.New("accept on a socket that is not listening")
	}
	for {
		fd, peer, err := unix.Accept(int(lfd))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("accept on port %d: %w", s.Port(), err)
		}
		s.connFd.Store(int64(fd))
		s.logger.Debug("accepted connection", "port", s.Port(), "fd", fd, "peer", peerString(peer))
		return nil
	}
}

// Read reads from the current connection. It returns io.EOF on a clean
// peer close.
func (s *ServerSocket) Read(p []byte) (int, error) {
	fd := s.connFd.Load()
	if fd == invalidFd {
		return 0, errors.New("read without an accepted connection")
	}
	for {
		n, err := unix.Read(int(fd), p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read fd %d: %w", fd, err)
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of p to the current connection.
func (s *ServerSocket) Write(p []byte) (int, error) {
	fd := s.connFd.Load()
	if fd == invalidFd {
		return 0, errors.New("write without an accepted connection")
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(int(fd), p[written:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("write fd %d: %w", fd, err)
		}
		written += n
	}
	return written, nil
}

// Shutdown forces SHUT_RDWR on the listening and current-connection
// descriptors without closing them, unblocking the owning worker. Safe
// to call from another goroutine.
func (s *ServerSocket) Shutdown() {
	if fd := s.listenFd.Load(); fd != invalidFd {
		if err := unix.Shutdown(int(fd), unix.SHUT_RDWR); err != nil {
			s.logger.Warn("could not shut down listening descriptor", "port", s.Port(), "err", err)
		}
	}
	if fd := s.connFd.Load(); fd != invalidFd {
		if err := unix.Shutdown(int(fd), unix.SHUT_RDWR); err != nil {
			s.logger.Warn("could not shut down connection descriptor", "port", s.Port(), "err", err)
		}
	}
}

// CloseCurrent closes the current accepted connection, if any.
func (s *ServerSocket) CloseCurrent() {
	if fd := s.connFd.Swap(invalidFd); fd != invalidFd {
		unix.Close(int(fd))
	}
}

// Close releases the connection and the listener.
func (s *ServerSocket) Close() {
	s.CloseCurrent()
	if fd := s.listenFd.Swap(invalidFd); fd != invalidFd {
		unix.Close(int(fd))
	}
}

type hardListenError struct{ err error }

func (e *hardListenError) Error() string { return e.err.Error() }
func (e *hardListenError) Unwrap() error { return e.err }

// IsHardListenError reports whether a Listen failure is permanent for
// this process (no retry can succeed).
func IsHardListenError(err error) bool {
	var hard *hardListenError
	return errors.As(err, &hard)
}

func peerString(sa unix.Sockaddr) string {
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d", sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3], sa4.Port)
	}
	return "unknown"
}
