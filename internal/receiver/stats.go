package receiver

import (
	"fmt"
	"sync/atomic"

	"github.com/swiftwire/swiftwire/pkg/protocol"
)

// TransferStats holds the per-worker counters for one session. All
// mutation happens on the owning worker goroutine; counters are atomics
// so the progress tracker and the status endpoint can take consistent
// point-in-time reads while the transfer is running.
type TransferStats struct {
	headerBytes    atomic.Int64
	dataBytes      atomic.Int64
	effectiveBytes atomic.Int64
	numBlocks      atomic.Int64
	failedAttempts atomic.Int64
	errorCode      atomic.Uint32
	remoteError    atomic.Uint32
}

// NewTransferStats returns zeroed stats with an OK error code.
func NewTransferStats() *TransferStats {
	return &TransferStats{}
}

// AddHeaderBytes credits protocol header bytes.
func (s *TransferStats) AddHeaderBytes(n int64) {
	s.headerBytes.Add(n)
}

// AddDataBytes credits block payload bytes.
func (s *TransferStats) AddDataBytes(n int64) {
	s.dataBytes.Add(n)
}

// AddEffectiveBytes credits header and data bytes of a fully received
// frame. Only completed blocks and DONE replies count here.
func (s *TransferStats) AddEffectiveBytes(header, data int64) {
	s.effectiveBytes.Add(header + data)
}

// IncrNumBlocks counts one completed block.
func (s *TransferStats) IncrNumBlocks() {
	s.numBlocks.Add(1)
}

// IncrFailedAttempts counts one block that did not complete.
func (s *TransferStats) IncrFailedAttempts() {
	s.failedAttempts.Add(1)
}

// SetErrorCode overwrites the local error code.
func (s *TransferStats) SetErrorCode(code protocol.ErrorCode) {
	s.errorCode.Store(uint32(code))
}

// ErrorCode returns the current local error code.
func (s *TransferStats) ErrorCode() protocol.ErrorCode {
	return protocol.ErrorCode(s.errorCode.Load())
}

// SetRemoteErrorCode records the sender-reported status from a DONE frame.
func (s *TransferStats) SetRemoteErrorCode(code protocol.ErrorCode) {
	s.remoteError.Store(uint32(code))
}

// RemoteErrorCode returns the sender-reported status.
func (s *TransferStats) RemoteErrorCode() protocol.ErrorCode {
	return protocol.ErrorCode(s.remoteError.Load())
}

// TotalBytes is the tracker-facing progress scalar: every byte that
// arrived on this worker's connections, header or data.
func (s *TransferStats) TotalBytes() int64 {
	return s.headerBytes.Load() + s.dataBytes.Load()
}

// HeaderBytes returns the header byte count.
func (s *TransferStats) HeaderBytes() int64 { return s.headerBytes.Load() }

// DataBytes returns the payload byte count.
func (s *TransferStats) DataBytes() int64 { return s.dataBytes.Load() }

// EffectiveBytes returns the bytes credited to completed frames.
func (s *TransferStats) EffectiveBytes() int64 { return s.effectiveBytes.Load() }

// NumBlocks returns the completed block count.
func (s *TransferStats) NumBlocks() int64 { return s.numBlocks.Load() }

// FailedAttempts returns the failed block count.
func (s *TransferStats) FailedAttempts() int64 { return s.failedAttempts.Load() }

func (s *TransferStats) String() string {
	return fmt.Sprintf("header=%d data=%d effective=%d blocks=%d failed=%d error=%s remote=%s",
		s.HeaderBytes(), s.DataBytes(), s.EffectiveBytes(), s.NumBlocks(),
		s.FailedAttempts(), s.ErrorCode(), s.RemoteErrorCode())
}
