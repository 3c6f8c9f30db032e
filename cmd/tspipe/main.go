// tspipe runs a transport stream through a chain of plugins: one input,
// any number of packet processors, one output, all sharing a circular
// packet buffer.
//
//	tspipe [flags] -I <input> [args…] [-P <proc> [args…]]… [-O <output> [args…]]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/tspipe/internal/journal"
	"github.com/banshee-data/tspipe/internal/monitor"
	"github.com/banshee-data/tspipe/internal/monitoring"
	"github.com/banshee-data/tspipe/internal/pipeline"
	"github.com/banshee-data/tspipe/internal/plugin"
	"github.com/banshee-data/tspipe/internal/plugins"
	"github.com/banshee-data/tspipe/internal/ts"
	"github.com/banshee-data/tspipe/internal/version"
)

var (
	bufferPackets   = flag.Int("buffer-packets", pipeline.DefaultBufferPackets, "circular buffer capacity in packets")
	maxFlush        = flag.Int("max-flushed-packets", 0, "processed packets a stage may hold before passing them on (0: mode default)")
	maxInput        = flag.Int("max-input-packets", 0, "cap on a single input receive call (0: mode default)")
	initialInput    = flag.Int("initial-input-packets", 0, "input backlog before the first hand-off (0: half the buffer)")
	addStart        = flag.Int("add-start-stuffing", 0, "null packets inserted before the first input packet")
	addStop         = flag.Int("add-stop-stuffing", 0, "null packets inserted after the last input packet")
	addStuffing     = flag.String("add-input-stuffing", "", "interleave nullpkt/inpkt null packets into the input")
	fixedBitRate    = flag.Uint64("bitrate", 0, "force the input bitrate in bits/second instead of asking the input plugin")
	bitRateInterval = flag.Duration("bitrate-adjust-interval", pipeline.DefaultBitRateAdjustInterval, "period of input bitrate re-evaluation")
	receiveTimeout  = flag.Duration("receive-timeout", 0, "abort a stalled input receive call after this long (0: no timeout)")
	ignoreJoint     = flag.Bool("ignore-joint-termination", false, "make joint termination requests no-ops")
	logPluginIndex  = flag.Bool("log-plugin-index", false, "append the chain position to each plugin's log prefix")
	debugMode       = flag.Bool("debug", false, "log engine hand-off decisions to stderr")
	monitorAddr     = flag.String("monitor", "", "serve the HTTP observability interface on this address")
	dbPath          = flag.String("db", "", "record the run in this sqlite journal (empty: no journal)")
	plotDir         = flag.String("plot-dir", "", "directory for PNG plot exports from the monitor")
	showVersion     = flag.Bool("version", false, "print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("tspipe %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *debugMode {
		pipeline.SetDebugWriter(os.Stderr)
	}

	chain, err := parseChain(flag.Args())
	if err != nil {
		log.Fatalf("invalid plugin chain: %v", err)
	}

	opts := pipeline.DefaultOptions()
	opts.BufferPackets = *bufferPackets
	opts.MaxFlushPackets = *maxFlush
	opts.MaxInputPackets = *maxInput
	opts.InitialInputPackets = *initialInput
	opts.StuffStart = *addStart
	opts.StuffStop = *addStop
	opts.FixedBitRate = ts.BitRate(*fixedBitRate)
	opts.BitRateAdjustInterval = *bitRateInterval
	opts.ReceiveTimeout = *receiveTimeout
	opts.IgnoreJointTermination = *ignoreJoint
	opts.LogPluginIndex = *logPluginIndex
	if *addStuffing != "" {
		opts.StuffNull, opts.StuffInput, err = parseStuffing(*addStuffing)
		if err != nil {
			log.Fatalf("invalid -add-input-stuffing: %v", err)
		}
	}

	p, err := pipeline.New(chain, opts, plugins.Builtins())
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	var jnl *journal.Journal
	var runID string
	if *dbPath != "" {
		jnl, err = journal.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer jnl.Close()

		runID, err = jnl.StartRun(strings.Join(flag.Args(), " "), time.Now())
		if err != nil {
			log.Fatalf("failed to record run start: %v", err)
		}
		p.RegisterEventHandler(func(ctx plugin.EventContext) {
			if err := jnl.RecordEvent(runID, ctx.PluginName, ctx.PluginIndex, ctx.Code, time.Now()); err != nil {
				monitoring.Logf("journal event write failed: %v", err)
			}
		}, plugin.EventCriteria{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if *monitorAddr != "" {
		mon := monitor.NewServer(monitor.Config{
			Address: *monitorAddr,
			Source:  p,
			Journal: jnl,
			RunID:   runID,
			PlotDir: *plotDir,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.Start(ctx); err != nil {
				monitoring.Logf("monitor stopped: %v", err)
			}
		}()
	}

	if err := p.Start(); err != nil {
		stop()
		wg.Wait()
		log.Fatalf("failed to start pipeline: %v", err)
	}

	// A signal aborts the run; the abort unblocks every stage and Wait
	// returns once they have drained. A finished run must not be marked
	// aborted by the later context teardown.
	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.Abort()
		case <-waitDone:
		}
	}()

	p.Wait()
	close(waitDone)
	stop()
	wg.Wait()

	if jnl != nil {
		var total uint64
		if snap := p.Snapshot(); len(snap) > 0 {
			total = snap[0].TotalPackets
		}
		if err := jnl.FinishRun(runID, time.Now(), total, p.Aborted()); err != nil {
			monitoring.Logf("journal run finish failed: %v", err)
		}
	}

	if p.Aborted() {
		os.Exit(1)
	}
}
