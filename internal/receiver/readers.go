package receiver

import (
	"errors"
	"io"
	"log/slog"
)

// socketReader is the read half a worker needs from its socket.
type socketReader interface {
	Read(p []byte) (int, error)
}

// readAtLeast accumulates reads into buf until at least atLeast bytes are
// present, starting from the first have bytes already in buf. The return
// convention is part of the frame-loop contract:
//
//	n >= atLeast  success
//	0 < n < atLeast  EOF, or a read error after partial data (the caller
//	                 may still parse what arrived)
//	n == 0  EOF with nothing buffered
//	n < 0   read error with nothing buffered
//
// Callers treat n <= 0 as end of connection.
func readAtLeast(s socketReader, logger *slog.Logger, buf []byte, atLeast, have int) int {
	if have < 0 || atLeast < 0 {
		panic("readAtLeast: negative have or atLeast")
	}
	count := 0
	for have < atLeast {
		n, err := s.Read(buf[have:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("eof during readAtLeast", "reads", count, "have", have)
				return have
			}
			logger.Error("read error during readAtLeast", "reads", count, "err", err)
			if have > 0 {
				return have
			}
			return -1
		}
		have += n
		count++
	}
	logger.Debug("readAtLeast done", "reads", count, "have", have)
	return have
}

// readAtMost performs one read of up to min(len(buf), atMost) bytes.
// Returns the count read, 0 on EOF, negative on error.
func readAtMost(s socketReader, logger *slog.Logger, buf []byte, atMost int) int {
	target := atMost
	if target > len(buf) {
		target = len(buf)
	}
	n, err := s.Read(buf[:target])
	if err != nil {
		if errors.Is(err, io.EOF) {
			logger.Debug("eof during readAtMost", "target", target)
			return 0
		}
		logger.Error("read error during readAtMost", "target", target, "err", err)
		return -1
	}
	logger.Debug("readAtMost", "read", n, "of", atMost)
	return n
}
