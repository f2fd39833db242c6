package protocol

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeader(t *testing.T) {
	h := BlockHeader{ID: "dir/sub/file.bin", SourceSize: 1 << 30, Offset: 4096, FileSize: 1<<30 + 4096}
	buf := EncodeHeader(nil, h)
	require.LessOrEqual(t, len(buf), MaxHeader)

	got, off, err := DecodeHeader(buf, 0, len(buf))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, len(buf), off)
}

func TestDecodeHeaderAtOffset(t *testing.T) {
	h := BlockHeader{ID: "a.txt", SourceSize: 5, Offset: 0, FileSize: 5}
	buf := append([]byte{FileCmd, byte(OK)}, EncodeHeader(nil, h)...)

	got, off, err := DecodeHeader(buf, 2, len(buf))
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, len(buf), off)
}

func TestDecodeHeaderTruncated(t *testing.T) {
	h := BlockHeader{ID: "some/long/path/name.dat", SourceSize: 123456, Offset: 789, FileSize: 999999}
	full := EncodeHeader(nil, h)

	// Every proper prefix must be rejected, never panic.
	for max := 0; max < len(full); max++ {
		_, _, err := DecodeHeader(full, 0, max)
		assert.Error(t, err, "prefix of %d bytes", max)
	}
}

func TestDecodeHeaderIDTooLong(t *testing.T) {
	h := BlockHeader{ID: strings.Repeat("x", MaxIDLen+1), SourceSize: 1, FileSize: 1}
	buf := EncodeHeader(nil, h)

	_, _, err := DecodeHeader(buf, 0, len(buf))
	assert.ErrorIs(t, err, ErrIDTooLong)
}

func TestDecodeHeaderEmptyID(t *testing.T) {
	h := BlockHeader{ID: "", SourceSize: 7, Offset: 3, FileSize: 10}
	buf := EncodeHeader(nil, h)

	got, _, err := DecodeHeader(buf, 0, len(buf))
	require.NoError(t, err)
	assert.Equal(t, "", got.ID)
	assert.Equal(t, int64(7), got.SourceSize)
}

func TestDecodeHeaderFieldOverflow(t *testing.T) {
	// SourceSize of 2^63 does not fit a non-negative int64 and must be
	// rejected, not wrapped to a negative size.
	buf := binary.AppendUvarint(nil, 1) // id length
	buf = append(buf, 'a')
	buf = binary.AppendUvarint(buf, uint64(1)<<63) // sourceSize
	buf = binary.AppendUvarint(buf, 0)             // offset
	buf = binary.AppendUvarint(buf, 1)             // fileSize

	_, _, err := DecodeHeader(buf, 0, len(buf))
	assert.ErrorIs(t, err, ErrFieldOverflow)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "PROTOCOL_ERROR", ProtocolError.String())
	assert.Equal(t, "UNKNOWN(200)", ErrorCode(200).String())
}

func TestMaxHeaderBound(t *testing.T) {
	h := BlockHeader{
		ID:         strings.Repeat("p", MaxIDLen),
		SourceSize: 1<<63 - 1,
		Offset:     1<<63 - 1,
		FileSize:   1<<63 - 1,
	}
	buf := EncodeHeader(nil, h)
	// Worst-case header plus command and status bytes stays within MaxHeader.
	assert.LessOrEqual(t, len(buf)+2, MaxHeader)
}
