package receiver

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// scriptedReader returns canned results one Read at a time.
type scriptedReader struct {
	steps []scriptStep
}

type scriptStep struct {
	data []byte
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if step.err != nil {
		return 0, step.err
	}
	n := copy(p, step.data)
	return n, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadAtLeastAccumulates(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{
		{data: []byte("ab")},
		{data: []byte("c")},
		{data: []byte("defg")},
	}}
	buf := make([]byte, 32)

	n := readAtLeast(r, discardLogger(), buf, 5, 0)
	assert.Equal(t, 7, n, "keeps the overshoot from the final read")
	assert.Equal(t, "abcdefg", string(buf[:n]))
}

func TestReadAtLeastAlreadySatisfied(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{{data: []byte("zz")}}}
	buf := make([]byte, 8)

	n := readAtLeast(r, discardLogger(), buf, 3, 4)
	assert.Equal(t, 4, n, "no read issued when have >= atLeast")
	assert.Len(t, r.steps, 1)
}

func TestReadAtLeastEOFReturnsPartial(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{{data: []byte("xy")}}}
	buf := make([]byte, 8)

	n := readAtLeast(r, discardLogger(), buf, 5, 0)
	assert.Equal(t, 2, n)
}

func TestReadAtLeastEOFEmpty(t *testing.T) {
	r := &scriptedReader{}
	n := readAtLeast(r, discardLogger(), make([]byte, 8), 5, 0)
	assert.Equal(t, 0, n)
}

func TestReadAtLeastErrorWithPartial(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{
		{data: []byte("abc")},
		{err: errors.New("reset")},
	}}
	n := readAtLeast(r, discardLogger(), make([]byte, 8), 5, 0)
	assert.Equal(t, 3, n, "partial data stays parseable")
}

func TestReadAtLeastErrorEmptyIsNegative(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{{err: errors.New("reset")}}}
	n := readAtLeast(r, discardLogger(), make([]byte, 8), 5, 0)
	assert.Negative(t, n)
}

func TestReadAtLeastPanicsOnNegativeArgs(t *testing.T) {
	assert.Panics(t, func() {
		readAtLeast(&scriptedReader{}, discardLogger(), make([]byte, 8), -1, 0)
	})
	assert.Panics(t, func() {
		readAtLeast(&scriptedReader{}, discardLogger(), make([]byte, 8), 1, -1)
	})
}

func TestReadAtMostSingleRead(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{
		{data: []byte("hello")},
		{data: []byte("world")},
	}}
	buf := make([]byte, 16)

	n := readAtMost(r, discardLogger(), buf, 10)
	assert.Equal(t, 5, n, "exactly one read, whatever it yields")
}

func TestReadAtMostCapsAtTarget(t *testing.T) {
	r := &scriptedReader{steps: []scriptStep{{data: []byte("abcdefgh")}}}
	buf := make([]byte, 16)

	n := readAtMost(r, discardLogger(), buf, 3)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(buf[:3]))
}

func TestReadAtMostEOFAndError(t *testing.T) {
	assert.Equal(t, 0, readAtMost(&scriptedReader{}, discardLogger(), make([]byte, 8), 4))

	r := &scriptedReader{steps: []scriptStep{{err: errors.New("reset")}}}
	assert.Negative(t, readAtMost(r, discardLogger(), make([]byte, 8), 4))
}
