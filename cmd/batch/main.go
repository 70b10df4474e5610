package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	eb "lpwa-mesh/internal/eventBus"
	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/metrics"
	"lpwa-mesh/internal/sim"
	"lpwa-mesh/internal/trace"
	"lpwa-mesh/internal/utils"
)

func main() {
	cfg := flag.String("scenario", "", "YAML or JSON scenario description (default: built-in 60-node field)")
	trials := flag.Int("trials", 0, "number of failure/recovery trials, overrides the scenario")
	mode := flag.String("mode", "", "routing mode (adaptive|legacy), overrides the scenario")
	serve := flag.Bool("serve", false, "expose /metrics while the experiment runs")
	monitor := flag.Duration("monitor", 0, "log resource usage at this interval")
	logDir := flag.String("logs", "logs", "directory for the run log")
	flag.Parse()

	logFile, err := utils.SetupLogFile(*logDir, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logFile.Close()
	log.Println("Starting experiment...")

	sc := sim.DefaultScenario()
	if *cfg != "" {
		if sc, err = sim.LoadScenario(*cfg); err != nil {
			log.Fatalf("scenario: %v", err)
		}
	}
	if *trials > 0 {
		sc.Experiment.Trials = *trials
	}
	if *mode != "" {
		sc.Routing.Mode = *mode
		if err := sc.Validate(); err != nil {
			log.Fatalf("scenario: %v", err)
		}
	}

	net, err := sc.BuildNetwork()
	if err != nil {
		log.Fatalf("build network: %v", err)
	}
	prom, err := metrics.NewPromCollector(nil)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	// catch Ctrl-C / SIGTERM / SIGHUP
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var bus *eb.EventBus
	if sc.Logging.TraceFile != "" {
		bus = eb.NewEventBus()
		rec, err := trace.Create(sc.Logging.TraceFile)
		if err != nil {
			log.Fatalf("trace: %v", err)
		}
		events := bus.SubscribeN(1 << 16)
		g.Go(func() error {
			defer rec.Close()
			return rec.Consume(events)
		})
	}

	if *serve {
		srv := &http.Server{Addr: sc.Server.Addr, Handler: prom.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Printf("[batch] metrics on %s", sc.Server.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	if *monitor > 0 {
		g.Go(func() error {
			utils.MonitorResources(gctx, *monitor)
			return nil
		})
	}

	runner := sim.NewRunner(net, rand.New(rand.NewSource(sc.Seed)), bus, prom)
	coll := metrics.NewCollector(net.Params().Mode.String())
	exp := &sim.Experiment{
		Runner:    runner,
		Trials:    sc.Experiment.Trials,
		MaxSteps:  sc.Experiment.MaxSteps,
		Collector: coll,
		Prom:      prom,
	}
	log.Printf("[batch] run %s: %d trials on %d nodes, %s routing", runner.RunID, exp.Trials, net.Len(), net.Params().Mode)

	runErr := exp.Run(gctx)
	if runErr != nil {
		log.Printf("[batch] experiment stopped: %v", runErr)
	}
	stop()
	bus.Close()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[batch] %v", err)
	}

	// always flush what was measured before exit
	report(coll.Snapshot(), net.Params().Mode)
	if err := coll.Flush(sc.Logging.MetricsFile); err != nil {
		log.Printf("flush-metrics: %v", err)
	} else {
		log.Printf("stats written to %s", sc.Logging.MetricsFile)
	}
	if err := coll.WriteCSV(sc.Logging.ResultsCSV); err != nil {
		log.Printf("write-results: %v", err)
	} else {
		log.Printf("results written to %s", sc.Logging.ResultsCSV)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func report(c metrics.Counters, mode mesh.RoutingMode) {
	log.Printf("********** %s routing **********", mode)
	log.Printf("[Result (%d-trial average)]", len(c.Trials))
	log.Printf("Average node depth: %.4f", c.MeanDepth)
	log.Printf("Average route RSSI: %.4f [dBm]", c.MeanRSSI)
	log.Printf("Recovery elapsed time: %.1f [ms]", c.MeanTimeMillis)
	log.Printf("Recovery com count: %.2f", c.MeanCount)
}
