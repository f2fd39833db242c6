package receiver

import (
	"time"
)

// progressTracker is the stall watchdog: it samples the summed progress
// counters at a fixed interval and, once too many consecutive samples
// show zero delta, forces SHUT_RDWR on every worker's descriptors so
// their blocked accept/read calls return. It records nothing on the
// workers; they report whatever error their next syscall yields.
func (r *Receiver) progressTracker() {
	interval := r.opts.TimeoutCheckInterval()
	maxFailedChecks := r.opts.FailedTimeoutChecks
	if r.opts.TimeoutCheckIntervalMillis < 0 || !r.joinable {
		return
	}
	r.logger.Info("progress tracker started",
		"interval", interval, "failAfterChecks", maxFailedChecks)

	var totalBytes int64
	zeroProgressCount := 0
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-r.finished():
			return
		case <-timer.C:
		}
		timer.Reset(interval)

		r.mu.Lock()
		stats := r.stats
		sockets := r.sockets
		r.mu.Unlock()

		var current int64
		for _, s := range stats {
			current += s.TotalBytes()
		}
		delta := current - totalBytes
		totalBytes = current
		if delta == 0 {
			zeroProgressCount++
		} else {
			zeroProgressCount = 0
		}
		r.logger.Debug("progress tracker sample", "deltaBytes", delta, "zeroChecks", zeroProgressCount)
		if zeroProgressCount > maxFailedChecks {
			r.logger.Info("no progress, shutting down worker sockets", "checks", maxFailedChecks)
			for _, s := range sockets {
				s.Shutdown()
			}
			return
		}
	}
}

// finished returns the channel that closes when the session is marked
// finished; it stands in for a timed condition-variable wait.
func (r *Receiver) finished() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedCh
}
