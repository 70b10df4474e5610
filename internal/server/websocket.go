package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lpwa-mesh/internal/commands"
	"lpwa-mesh/internal/eventBus"
	"lpwa-mesh/internal/metrics"
	"lpwa-mesh/internal/sim"
)

// Define a WebSocket upgrader.
var upgrader = websocket.Upgrader{
	// Allow any origin; the viewer is served from a different port in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// wsHandler upgrades the connection to WebSocket and pushes events from the EventBus.
func wsHandler(eb *eventBus.EventBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[server] upgrade error: %v", err)
			return
		}
		defer conn.Close()

		eventCh := eb.Subscribe()
		defer eb.Unsubscribe(eventCh)

		// The viewer never sends anything; reading only detects the close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("[server] write error: %v", err)
					return
				}
			}
		}
	}
}

// NewMux routes the event stream, the node API and the metrics endpoint.
func NewMux(eb *eventBus.EventBus, ctl sim.Controller, prom *metrics.PromCollector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(eb))

	mux.HandleFunc("/nodeAPI/create", commands.CreateNodeHandler(ctl))
	mux.HandleFunc("/nodeAPI/enable", commands.EnableNodeHandler(ctl))
	mux.HandleFunc("/nodeAPI/disable", commands.DisableNodeHandler(ctl))
	mux.HandleFunc("/nodeAPI/build", commands.BuildHandler(ctl))
	mux.HandleFunc("/nodeAPI/init", commands.InitHandler(ctl))
	mux.HandleFunc("/nodeAPI/step", commands.StepHandler(ctl))
	mux.HandleFunc("/nodeAPI/reset", commands.ResetHandler(ctl))
	mux.HandleFunc("/nodeAPI/tables", commands.TablesHandler(ctl))
	mux.HandleFunc("/nodeAPI/status", commands.StatusHandler(ctl))

	if prom != nil {
		mux.Handle("/metrics", prom.Handler())
	}
	return mux
}

// StartServer serves the mux on addr until ctx is cancelled.
func StartServer(ctx context.Context, addr string, eb *eventBus.EventBus, ctl sim.Controller, prom *metrics.PromCollector) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(eb, ctl, prom),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] started on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
