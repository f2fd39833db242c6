package receiver

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/swiftwire/swiftwire/internal/fscreator"
	"github.com/swiftwire/swiftwire/internal/netio"
	"github.com/swiftwire/swiftwire/pkg/protocol"
)

// exitFunc terminates the whole process on an EXIT command. This is a
// documented sender-initiated emergency stop; tests substitute it.
var exitFunc = os.Exit

// worker drives one listening port for the lifetime of a session:
// listen with retry, then accept connections one at a time and run the
// frame loop on each.
type worker struct {
	socket     *netio.ServerSocket
	stats      *TransferStats
	creator    *fscreator.Creator
	logger     *slog.Logger
	buf        []byte
	joinable   bool
	skipWrites bool
	maxRetries int
	retrySleep time.Duration
}

func (w *worker) run() {
	w.logger.Debug("worker starting", "bufferSize", len(w.buf), "writes", !w.skipWrites)
	for attempt := 1; attempt < w.maxRetries; attempt++ {
		err := w.socket.Listen()
		if err == nil {
			break
		}
		if netio.IsHardListenError(err) {
			w.logger.Error("listen failed permanently", "err", err)
			w.stats.SetErrorCode(protocol.ConnError)
			return
		}
		w.logger.Info("sleeping after failed listen attempt", "attempt", attempt, "err", err)
		time.Sleep(w.retrySleep)
	}
	// One more, last try (no-op if an attempt above succeeded).
	if err := w.socket.Listen(); err != nil {
		w.logger.Error("unable to listen/bind despite retries", "err", err)
		w.stats.SetErrorCode(protocol.ConnError)
		return
	}
	if len(w.buf) < protocol.MaxHeader {
		w.logger.Error("receive buffer smaller than a maximal header", "size", len(w.buf))
		w.stats.SetErrorCode(protocol.MemoryAllocationError)
		return
	}
	w.stats.SetErrorCode(protocol.OK)
	for {
		if err := w.socket.AcceptNext(); err != nil {
			w.logger.Error("accept failed", "err", err)
			w.stats.SetErrorCode(protocol.ConnError)
			return
		}
		if done := w.receiveConnection(); done {
			return
		}
	}
}

// receiveConnection runs the frame loop over the currently accepted
// connection until DONE, a protocol violation, or connection loss. It
// reports true when the whole worker should terminate.
func (w *worker) receiveConnection() bool {
	buf := w.buf
	numRead := 0
	off := 0
	var dest *os.File
	for {
		n := readAtLeast(w.socket, w.logger, buf[off:], protocol.MaxHeader, numRead)
		if n <= 0 {
			break
		}
		numRead = n
		oldOffset := off
		cmd := buf[off]
		off++
		if cmd == protocol.ExitCmd {
			if numRead != 1 {
				w.logger.Error("unexpected bytes with exit command, ignoring", "numRead", numRead)
				w.stats.SetErrorCode(protocol.ProtocolError)
				break
			}
			w.logger.Error("got exit command - exiting")
			exitFunc(0)
			return true
		}
		transferStatus := protocol.ErrorCode(buf[off])
		off++
		if cmd == protocol.DoneCmd {
			if numRead != 2 {
				w.logger.Error("unexpected state for done command", "off", off, "numRead", numRead)
				w.stats.SetErrorCode(protocol.ProtocolError)
				break
			}
			// Reply: echoed command plus our local status.
			buf[off-1] = byte(w.stats.ErrorCode())
			if transferStatus != protocol.OK {
				w.stats.SetRemoteErrorCode(transferStatus)
				w.logger.Error("sender transmitted errors",
					"remote", transferStatus, "local", w.stats.ErrorCode())
			}
			if _, err := w.socket.Write(buf[off-2 : off]); err != nil {
				w.logger.Error("could not write done reply", "err", err)
			}
			w.stats.AddHeaderBytes(2)
			w.stats.AddEffectiveBytes(2, 0)
			if w.joinable {
				w.logger.Info("receiver worker done", "stats", w.stats.String())
				w.socket.CloseCurrent()
				return true
			}
			// Session over for one transfer; the next one on this port
			// starts error free.
			w.stats.SetErrorCode(protocol.OK)
			break
		}
		if cmd != protocol.FileCmd {
			w.logger.Error("unexpected command byte", "cmd", cmd, "numRead", numRead, "offset", oldOffset)
			w.stats.SetErrorCode(protocol.ProtocolError)
			break
		}
		if transferStatus != protocol.OK {
			w.logger.Debug("sender entered error state", "status", transferStatus)
		}
		hdr, newOff, err := protocol.DecodeHeader(buf, off, numRead+oldOffset)
		if err != nil {
			w.logger.Error("error decoding block header",
				"oldOffset", oldOffset, "off", off, "numRead", numRead, "err", err)
			w.stats.AddHeaderBytes(int64(off - oldOffset))
			w.stats.SetErrorCode(protocol.ProtocolError)
			w.stats.IncrFailedAttempts()
			break
		}
		off = newOff
		headerBytes := off - oldOffset
		w.stats.AddHeaderBytes(int64(headerBytes))
		w.logger.Debug("read block header", "id", hdr.ID, "size", hdr.SourceSize,
			"offset", hdr.Offset, "fileSize", hdr.FileSize, "off", off, "numRead", numRead)

		if !w.skipWrites {
			dest = w.openDest(hdr)
		}
		remainingData := numRead + oldOffset - off
		toWrite := remainingData
		if int64(remainingData) >= hdr.SourceSize {
			toWrite = int(hdr.SourceSize)
		}
		w.stats.AddDataBytes(int64(toWrite))
		if dest != nil {
			if _, werr := dest.Write(buf[off : off+toWrite]); werr != nil {
				w.logger.Error("write error", "id", hdr.ID, "toWrite", toWrite, "err", werr)
				w.stats.SetErrorCode(protocol.FileWriteError)
				dest.Close()
				dest = nil
			}
		}
		off += toWrite
		remainingData -= toWrite
		wres := int64(toWrite)
		// No leftover can exist past this block while draining, so the
		// buffer is reused from the start.
		for wres < hdr.SourceSize {
			nres := readAtMost(w.socket, w.logger, buf, int(hdr.SourceSize-wres))
			if nres <= 0 {
				break
			}
			w.stats.AddDataBytes(int64(nres))
			if dest != nil {
				if _, werr := dest.Write(buf[:nres]); werr != nil {
					w.logger.Error("write error", "id", hdr.ID, "count", nres, "err", werr)
					w.stats.SetErrorCode(protocol.FileWriteError)
					dest.Close()
					dest = nil
				}
			}
			wres += int64(nres)
		}
		if wres != hdr.SourceSize {
			// Only transmission errors can land here; disk errors were
			// handled above.
			w.stats.IncrFailedAttempts()
			break
		}
		w.logger.Debug("completed block", "id", hdr.ID, "off", off, "numRead", numRead)
		if dest != nil {
			dest.Close()
			dest = nil
		}
		w.stats.AddEffectiveBytes(int64(headerBytes), hdr.SourceSize)
		w.stats.IncrNumBlocks()
		if remainingData > 0 {
			// The buffer already holds the head of the next frame.
			numRead = remainingData
			if remainingData < protocol.MaxHeader && off > len(buf)/2 {
				w.logger.Debug("compacting leftover bytes", "count", remainingData, "off", off)
				copy(buf, buf[off:off+remainingData])
				off = 0
			}
		} else {
			numRead = 0
			off = 0
		}
	}
	if dest != nil {
		dest.Close()
	}
	w.logger.Debug("done with connection")
	w.socket.CloseCurrent()
	return false
}

// openDest opens the destination handle for a block, positioned and
// sized per the header. A failed open or seek leaves the handle nil so the
// block's bytes are drained without writes; a failed truncate is only
// logged and the handle is still returned.
func (w *worker) openDest(hdr protocol.BlockHeader) *os.File {
	dest, err := w.creator.Create(hdr.ID)
	if err != nil {
		w.logger.Error("unable to open destination", "id", hdr.ID, "err", err)
		w.stats.SetErrorCode(protocol.FileWriteError)
		return nil
	}
	if hdr.Offset > 0 {
		if _, err := dest.Seek(hdr.Offset, io.SeekStart); err != nil {
			w.logger.Error("unable to seek", "id", hdr.ID, "offset", hdr.Offset, "err", err)
			w.stats.SetErrorCode(protocol.FileWriteError)
			dest.Close()
			return nil
		}
	} else if err := w.creator.Truncate(dest, hdr.FileSize); err != nil {
		w.logger.Error("unable to truncate", "id", hdr.ID, "fileSize", hdr.FileSize, "err", err)
	}
	return dest
}
