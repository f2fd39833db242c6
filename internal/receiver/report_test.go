package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swiftwire/swiftwire/pkg/protocol"
)

func TestReportAggregation(t *testing.T) {
	a := NewTransferStats()
	a.AddHeaderBytes(10)
	a.AddDataBytes(100)
	a.AddEffectiveBytes(10, 100)
	a.IncrNumBlocks()

	b := NewTransferStats()
	b.AddHeaderBytes(4)
	b.AddDataBytes(50)
	b.IncrFailedAttempts()
	b.SetErrorCode(protocol.FileWriteError)
	b.SetRemoteErrorCode(protocol.Abort)

	report := newTransferReport([]int{1001, 1002}, []*TransferStats{a, b})

	assert.Equal(t, int64(14), report.HeaderBytes)
	assert.Equal(t, int64(150), report.DataBytes)
	assert.Equal(t, int64(110), report.EffectiveBytes)
	assert.Equal(t, int64(164), report.TotalBytes())
	assert.Equal(t, int64(1), report.NumBlocks)
	assert.Equal(t, int64(1), report.FailedAttempts)
	assert.Equal(t, protocol.FileWriteError, report.ErrorCode)
	assert.Equal(t, protocol.Abort, report.RemoteErrorCode)
	assert.Len(t, report.PerPort, 2)
	assert.Equal(t, 1001, report.PerPort[0].Port)
}

func TestReportStringMentionsPerPortLines(t *testing.T) {
	s := NewTransferStats()
	s.AddHeaderBytes(2)
	s.AddEffectiveBytes(2, 0)
	report := newTransferReport([]int{9000}, []*TransferStats{s})

	out := report.String()
	assert.Contains(t, out, "port 9000")
	assert.Contains(t, out, "error=OK")
}

func TestStatsTotalBytes(t *testing.T) {
	s := NewTransferStats()
	s.AddHeaderBytes(7)
	s.AddDataBytes(35)
	assert.Equal(t, int64(42), s.TotalBytes())
	assert.Equal(t, protocol.OK, s.ErrorCode())

	s.SetErrorCode(protocol.ConnError)
	assert.Equal(t, protocol.ConnError, s.ErrorCode())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "1.00KiB", formatBytes(1024))
	assert.Equal(t, "2.50MiB", formatBytes(5<<20>>1))
	assert.Equal(t, "1.00GiB", formatBytes(1<<30))
}
