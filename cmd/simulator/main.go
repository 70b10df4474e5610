package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"lpwa-mesh/internal/console"
	eb "lpwa-mesh/internal/eventBus"
	"lpwa-mesh/internal/metrics"
	"lpwa-mesh/internal/mqtt"
	"lpwa-mesh/internal/server"
	"lpwa-mesh/internal/sim"
	"lpwa-mesh/internal/trace"
	"lpwa-mesh/internal/utils"
)

func main() {
	cfg := flag.String("scenario", "", "YAML or JSON scenario description (default: built-in 60-node field)")
	serve := flag.Bool("serve", false, "serve the websocket stream, node API and /metrics")
	broker := flag.String("mqtt", "", "MQTT broker URL, overrides the scenario")
	snapshots := flag.Bool("snapshots", true, "attach the node view to every step event")
	logDir := flag.String("logs", "logs", "directory for the run log")
	flag.Parse()

	logFile, err := utils.SetupLogFile(*logDir, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logFile.Close()

	sc := sim.DefaultScenario()
	if *cfg != "" {
		if sc, err = sim.LoadScenario(*cfg); err != nil {
			log.Fatalf("scenario: %v", err)
		}
	}
	if *broker != "" {
		sc.MQTT.Broker = *broker
	}

	net, err := sc.BuildNetwork()
	if err != nil {
		log.Fatalf("build network: %v", err)
	}
	prom, err := metrics.NewPromCollector(nil)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	bus := eb.NewEventBus()
	runner := sim.NewRunner(net, rand.New(rand.NewSource(sc.Seed)), bus, prom)
	runner.Snapshots = *snapshots
	session := sim.NewSession(runner, sc.Experiment.MaxSteps)
	log.Printf("[sim] run %s: %d nodes, %s routing", runner.RunID, net.Len(), net.Params().Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if sc.Logging.TraceFile != "" {
		rec, err := trace.Create(sc.Logging.TraceFile)
		if err != nil {
			log.Fatalf("trace: %v", err)
		}
		events := bus.SubscribeN(4096)
		g.Go(func() error {
			defer rec.Close()
			if err := rec.Consume(events); err != nil {
				return err
			}
			log.Printf("[trace] %d events written to %s", rec.Count(), sc.Logging.TraceFile)
			return nil
		})
	}

	if *serve {
		g.Go(func() error {
			return server.StartServer(gctx, sc.Server.Addr, bus, session, prom)
		})
	}

	if sc.MQTT.Broker != "" {
		manager, err := mqtt.New(sc.MQTT.Broker, sc.MQTT.ClientID)
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		defer manager.Disconnect()
		bridge := mqtt.NewBridge(session, manager, sc.MQTT.TopicPrefix)
		if err := manager.Subscribe(bridge.CommandTopic(), 1, bridge.HandleCommand); err != nil {
			log.Fatalf("mqtt subscribe: %v", err)
		}
		events := bus.Subscribe()
		g.Go(func() error { return bridge.Run(gctx, events) })
	}

	// The console blocks on stdin, so it stays outside the group.
	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- console.New(session, os.Stdin, os.Stdout).Run(gctx)
	}()

	select {
	case err := <-consoleDone:
		if err != nil {
			log.Printf("[sim] console: %v", err)
		}
	case <-gctx.Done():
		log.Printf("[sim] shutting down")
	}
	stop()
	bus.Close()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[sim] %v", err)
	}
	log.Printf("[sim] run complete: %+v", session.Status().Summary)
}
