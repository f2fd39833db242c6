package progress

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// IsTTY reports whether w writes to a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// RenderLine formats a one-line progress readout suitable for a
// carriage-return refresh loop.
func RenderLine(s Stats, blocks int64) string {
	return fmt.Sprintf("\rreceived %s  %s  blocks=%d  elapsed=%s ",
		formatBytes(s.Bytes), formatRate(s.RateBps), blocks, s.Elapsed.Truncate(100_000_000))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatRate(bps float64) string {
	return fmt.Sprintf("%.2f MB/s", bps/1e6)
}
