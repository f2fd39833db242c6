package main

import (
	"fmt"
	"os"
	"time"

	"github.com/swiftwire/swiftwire/internal/config"
	"github.com/swiftwire/swiftwire/internal/logging"
	"github.com/swiftwire/swiftwire/internal/progress"
	"github.com/swiftwire/swiftwire/internal/receiver"
	"github.com/swiftwire/swiftwire/internal/status"
	"github.com/swiftwire/swiftwire/pkg/protocol"
)

const version = "v0.1.0"

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Println("swiftrecv " + version)
			return
		}
	}
	opts := config.Parse()
	logger := logging.New("swiftrecv", opts.LogLevel)

	recv := receiver.New(opts.StartPort, opts.NumSockets, opts, logger)

	var statusServer *status.Server
	if opts.StatusAddr != "" {
		statusServer = status.New(recv, logger)
		if err := statusServer.Start(opts.StatusAddr); err != nil {
			logger.Error("could not start status endpoint", "addr", opts.StatusAddr, "err", err)
			os.Exit(1)
		}
		defer statusServer.Stop()
	}

	if opts.RunForever {
		logger.Info("running in daemon mode", "ports", recv.Ports())
		if err := recv.RunForever(); err != nil {
			logger.Error("daemon receiver exited", "err", err)
		}
		os.Exit(1)
	}

	if err := recv.TransferAsync(); err != nil {
		logger.Error("could not start transfer", "err", err)
		os.Exit(1)
	}

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	if opts.Progress && progress.IsTTY(os.Stderr) {
		go showProgress(recv, stopProgress, progressDone)
	} else {
		close(progressDone)
	}

	report := recv.Finish()
	close(stopProgress)
	<-progressDone

	fmt.Println(report.String())
	if report.ErrorCode != protocol.OK || report.RemoteErrorCode != protocol.OK {
		os.Exit(1)
	}
}

func showProgress(recv *receiver.Receiver, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	meter := progress.NewMeter()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			fmt.Fprintln(os.Stderr)
			return
		case <-ticker.C:
		}
		meter.Observe(recv.TotalBytes())
		var blocks int64
		for _, p := range recv.Snapshot() {
			blocks += p.NumBlocks
		}
		fmt.Fprint(os.Stderr, progress.RenderLine(meter.Snapshot(), blocks))
	}
}
