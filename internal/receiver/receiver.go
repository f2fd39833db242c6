package receiver

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/swiftwire/swiftwire/internal/config"
	"github.com/swiftwire/swiftwire/internal/fscreator"
	"github.com/swiftwire/swiftwire/internal/netio"
)

// ErrTransferPending is returned when a transfer is started while a
// previous one on the same receiver has not finished.
var ErrTransferPending = errors.New("a transfer is already running on this receiver")

// Receiver coordinates one receive session: a worker goroutine per port,
// plus the stall watchdog when the session is joinable. At most one
// session is active per Receiver at a time; Finish is the only way a
// session stops being pending.
type Receiver struct {
	opts    config.Options
	ports   []int
	destDir string
	logger  *slog.Logger

	joinable bool

	mu               sync.Mutex
	transferFinished bool
	finishedCh       chan struct{}

	creator *fscreator.Creator
	stats   []*TransferStats
	sockets []*netio.ServerSocket

	workersWg sync.WaitGroup
	trackerWg sync.WaitGroup
}

// New builds an idle receiver listening (once started) on
// [basePort, basePort+numSockets). The destination directory comes from
// opts.Dir and can be changed with SetDir before starting.
func New(basePort, numSockets int, opts config.Options, logger *slog.Logger) *Receiver {
	ports := make([]int, 0, numSockets)
	for i := 0; i < numSockets; i++ {
		ports = append(ports, basePort+i)
	}
	return &Receiver{
		opts:             opts,
		ports:            ports,
		destDir:          opts.Dir,
		logger:           logger,
		transferFinished: true,
	}
}

// SetDir changes the destination directory for the next session.
func (r *Receiver) SetDir(dir string) {
	r.destDir = dir
}

// Ports returns the configured port list.
func (r *Receiver) Ports() []int {
	return r.ports
}

// HasPendingTransfer reports whether a session is running.
func (r *Receiver) HasPendingTransfer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.transferFinished
}

func (r *Receiver) markTransferFinished(finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if finished == r.transferFinished {
		return
	}
	r.transferFinished = finished
	if finished {
		close(r.finishedCh)
	} else {
		r.finishedCh = make(chan struct{})
	}
}

// TransferAsync starts a joinable session: every worker terminates on
// its DONE frame and Finish returns the report. Non-blocking.
func (r *Receiver) TransferAsync() error {
	if r.HasPendingTransfer() {
		r.logger.Error("there is already a transfer running on this receiver")
		return ErrTransferPending
	}
	r.joinable = true
	r.start()
	return nil
}

// RunForever starts a daemon session: workers accept transfer after
// transfer and never terminate, so this call never returns in normal
// operation.
func (r *Receiver) RunForever() error {
	if r.HasPendingTransfer() {
		r.logger.Error("there is already a transfer running on this receiver")
		return ErrTransferPending
	}
	r.joinable = false
	r.start()
	r.Finish()
	// Daemon workers never return, so neither should Finish.
	return errors.New("run-forever receiver unexpectedly finished")
}

// Finish joins the session: waits for all workers, marks the transfer
// finished (waking the tracker), joins the tracker, and builds the
// report. In daemon mode the workers never return and neither does this.
func (r *Receiver) Finish() *TransferReport {
	if !r.joinable {
		r.logger.Warn("receiver is not joinable; workers never finish and this call never returns")
	}
	r.workersWg.Wait()

	// Nothing but Finish flips this back; until then any further
	// TransferAsync or RunForever on this instance fails.
	r.markTransferFinished(true)
	r.trackerWg.Wait()

	r.mu.Lock()
	stats := r.stats
	sockets := r.sockets
	ports := make([]int, len(sockets))
	for i, s := range sockets {
		ports[i] = s.Port()
	}
	r.stats = nil
	r.sockets = nil
	r.mu.Unlock()

	report := newTransferReport(ports, stats)
	for _, s := range sockets {
		s.Close()
	}
	r.logger.Warn("receiver transfer has been finished")
	r.logger.Info(report.String())
	return report
}

// Close finishes a still-pending session. Meant for teardown paths that
// may run while a transfer is in flight.
func (r *Receiver) Close() {
	if r.HasPendingTransfer() {
		r.logger.Warn("receiver closed with an ongoing transfer, trying to finish it")
		r.Finish()
	}
}

func (r *Receiver) start() {
	r.logger.Info("starting receiving server", "ports", r.ports, "dir", r.destDir)
	r.markTransferFinished(false)

	bufferSize := r.opts.EffectiveBufferSize()
	if bufferSize != r.opts.BufferSize {
		r.logger.Info("configured buffer size too small for a header, rounded up",
			"configured", r.opts.BufferSize, "using", bufferSize)
	}
	r.creator = fscreator.New(r.destDir, r.logger)

	r.mu.Lock()
	r.stats = make([]*TransferStats, 0, len(r.ports))
	r.sockets = make([]*netio.ServerSocket, 0, len(r.ports))
	for _, port := range r.ports {
		r.stats = append(r.stats, NewTransferStats())
		r.sockets = append(r.sockets, netio.New(port, r.opts.Backlog, r.logger.With("port", port)))
	}
	stats := r.stats
	sockets := r.sockets
	r.mu.Unlock()

	for i := range r.ports {
		w := &worker{
			socket:     sockets[i],
			stats:      stats[i],
			creator:    r.creator,
			logger:     r.logger.With("port", r.ports[i]),
			buf:        make([]byte, bufferSize),
			joinable:   r.joinable,
			skipWrites: r.opts.SkipWrites,
			maxRetries: r.opts.MaxRetries,
			retrySleep: r.opts.SleepDuration(),
		}
		r.workersWg.Add(1)
		go func() {
			defer r.workersWg.Done()
			w.run()
		}()
	}
	if r.joinable {
		r.trackerWg.Add(1)
		go func() {
			defer r.trackerWg.Done()
			r.progressTracker()
		}()
	}
}

// TotalBytes sums every worker's progress scalar for the running session.
func (r *Receiver) TotalBytes() int64 {
	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()
	var total int64
	for _, s := range stats {
		total += s.TotalBytes()
	}
	return total
}

// Snapshot returns a point-in-time view of per-port statistics, usable
// while the session runs.
func (r *Receiver) Snapshot() []PortStats {
	r.mu.Lock()
	stats := r.stats
	sockets := r.sockets
	r.mu.Unlock()
	if len(stats) == 0 {
		return nil
	}
	out := make([]PortStats, 0, len(stats))
	for i, s := range stats {
		out = append(out, snapshotOf(sockets[i].Port(), s))
	}
	return out
}
