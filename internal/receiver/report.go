package receiver

import (
	"fmt"
	"strings"

	"github.com/swiftwire/swiftwire/pkg/protocol"
)

// PortStats is an immutable copy of one worker's counters.
type PortStats struct {
	Port            int                `json:"port"`
	HeaderBytes     int64              `json:"header_bytes"`
	DataBytes       int64              `json:"data_bytes"`
	EffectiveBytes  int64              `json:"effective_bytes"`
	NumBlocks       int64              `json:"num_blocks"`
	FailedAttempts  int64              `json:"failed_attempts"`
	ErrorCode       protocol.ErrorCode `json:"-"`
	RemoteErrorCode protocol.ErrorCode `json:"-"`
	Error           string             `json:"error"`
	RemoteError     string             `json:"remote_error"`
}

func snapshotOf(port int, s *TransferStats) PortStats {
	return PortStats{
		Port:            port,
		HeaderBytes:     s.HeaderBytes(),
		DataBytes:       s.DataBytes(),
		EffectiveBytes:  s.EffectiveBytes(),
		NumBlocks:       s.NumBlocks(),
		FailedAttempts:  s.FailedAttempts(),
		ErrorCode:       s.ErrorCode(),
		RemoteErrorCode: s.RemoteErrorCode(),
		Error:           s.ErrorCode().String(),
		RemoteError:     s.RemoteErrorCode().String(),
	}
}

// TransferReport aggregates the per-worker statistics of a finished
// session.
type TransferReport struct {
	PerPort []PortStats

	HeaderBytes    int64
	DataBytes      int64
	EffectiveBytes int64
	NumBlocks      int64
	FailedAttempts int64

	// ErrorCode is the first non-OK local code across workers, OK when
	// every worker finished clean. RemoteErrorCode likewise for
	// sender-reported codes.
	ErrorCode       protocol.ErrorCode
	RemoteErrorCode protocol.ErrorCode
}

func newTransferReport(ports []int, stats []*TransferStats) *TransferReport {
	report := &TransferReport{}
	for i, s := range stats {
		port := 0
		if i < len(ports) {
			port = ports[i]
		}
		snap := snapshotOf(port, s)
		report.PerPort = append(report.PerPort, snap)
		report.HeaderBytes += snap.HeaderBytes
		report.DataBytes += snap.DataBytes
		report.EffectiveBytes += snap.EffectiveBytes
		report.NumBlocks += snap.NumBlocks
		report.FailedAttempts += snap.FailedAttempts
		if report.ErrorCode == protocol.OK && snap.ErrorCode != protocol.OK {
			report.ErrorCode = snap.ErrorCode
		}
		if report.RemoteErrorCode == protocol.OK && snap.RemoteErrorCode != protocol.OK {
			report.RemoteErrorCode = snap.RemoteErrorCode
		}
	}
	return report
}

// TotalBytes is header plus data bytes across all workers.
func (r *TransferReport) TotalBytes() int64 {
	return r.HeaderBytes + r.DataBytes
}

func (r *TransferReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transfer report: blocks=%d effective=%s total=%s failed=%d error=%s remote=%s",
		r.NumBlocks, formatBytes(r.EffectiveBytes), formatBytes(r.TotalBytes()),
		r.FailedAttempts, r.ErrorCode, r.RemoteErrorCode)
	for _, p := range r.PerPort {
		fmt.Fprintf(&b, "\n  port %d: blocks=%d header=%d data=%d effective=%d failed=%d error=%s remote=%s",
			p.Port, p.NumBlocks, p.HeaderBytes, p.DataBytes, p.EffectiveBytes,
			p.FailedAttempts, p.Error, p.RemoteError)
	}
	return b.String()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
