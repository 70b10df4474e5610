package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/network"
	"lpwa-mesh/internal/node"
	"lpwa-mesh/internal/sim"
)

// CreateNodePayload defines the expected JSON payload for node creation.
type CreateNodePayload struct {
	NodeID mesh.NodeID `json:"node_id"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
}

// NodePayload names an existing node.
type NodePayload struct {
	NodeID mesh.NodeID `json:"node_id"`
}

// StepResponse is returned by the step endpoint.
type StepResponse struct {
	Outcome     string      `json:"outcome"`
	Transmitter mesh.NodeID `json:"transmitter"`
	Steps       int         `json:"steps,omitempty"`
	Status      sim.Status  `json:"status"`
}

// TablesResponse bundles the read-only inspection views.
type TablesResponse struct {
	Tables    []sim.TableView    `json:"tables"`
	Downlinks []sim.DownlinkView `json:"downlinks"`
	Timers    []sim.TimerView    `json:"timers"`
}

// StatusResponse is the current measurement plus the per-node snapshot.
type StatusResponse struct {
	Status sim.Status      `json:"status"`
	Nodes  []node.Snapshot `json:"nodes"`
}

// CreateNodeHandler adds a node to the network. It joins the tree on the
// next build.
func CreateNodeHandler(ctl sim.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		var payload CreateNodePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := ctl.AddNode(payload.NodeID, mesh.CreateCoordinates(payload.X, payload.Y)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, "Node %s created", payload.NodeID)
	}
}

// EnableNodeHandler brings a failed node back.
func EnableNodeHandler(ctl sim.Controller) http.HandlerFunc {
	return nodeCommand(ctl.Enable, "enabled")
}

// DisableNodeHandler fails a node.
func DisableNodeHandler(ctl sim.Controller) http.HandlerFunc {
	return nodeCommand(ctl.Disable, "disabled")
}

func nodeCommand(op func(mesh.NodeID) error, done string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		var payload NodePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := op(payload.NodeID); err != nil {
			writeError(w, err)
			return
		}
		fmt.Fprintf(w, "Node %s %s", payload.NodeID, done)
	}
}

// BuildHandler starts a Hello flood.
func BuildHandler(ctl sim.Controller) http.HandlerFunc {
	return floodCommand(ctl.BuildNetwork, "Build")
}

// InitHandler starts a Bye flood.
func InitHandler(ctl sim.Controller) http.HandlerFunc {
	return floodCommand(ctl.InitNetwork, "Init")
}

func floodCommand(start func() error, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if err := start(); err != nil {
			writeError(w, err)
			return
		}
		fmt.Fprintf(w, "%s flood started", name)
	}
}

// StepHandler runs one scheduler step, or every remaining step with
// ?fast=true.
func StepHandler(ctl sim.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		var resp StepResponse
		if r.URL.Query().Get("fast") == "true" {
			n, err := ctl.FastForward(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			resp.Outcome = sim.Completed.String()
			resp.Transmitter = mesh.NoNode
			resp.Steps = n
		} else {
			res := ctl.Step()
			resp.Outcome = res.Outcome.String()
			resp.Transmitter = res.Transmitter
			resp.Steps = 1
		}
		resp.Status = ctl.Status()
		writeJSON(w, resp)
	}
}

// ResetHandler zeroes the time and communication counters.
func ResetHandler(ctl sim.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		ctl.ResetCounters()
		w.Write([]byte("Counters cleared"))
	}
}

func TablesHandler(ctl sim.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, TablesResponse{
			Tables:    ctl.Tables(),
			Downlinks: ctl.Downlinks(),
			Timers:    ctl.Timers(),
		})
	}
}

func StatusHandler(ctl sim.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, StatusResponse{Status: ctl.Status(), Nodes: ctl.Snapshot()})
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

// writeError maps simulator errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, network.ErrNodeNotFound):
		code = http.StatusNotFound
	case errors.Is(err, network.ErrNodeExists), errors.Is(err, node.ErrFloodPending):
		code = http.StatusConflict
	case errors.Is(err, network.ErrInvalidID), errors.Is(err, network.ErrRootDisable):
		code = http.StatusBadRequest
	case errors.Is(err, network.ErrNoRoot), errors.Is(err, sim.ErrStepLimit):
		code = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), code)
}
