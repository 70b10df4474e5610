// Package console is the interactive line-oriented front end of the
// simulator.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/sim"
)

const help = `
[Commands]
  h               : show help
  n               : next process
  f               : fast forward until the network is quiet
  e               : exit
  i               : initialize network
  b               : build network
  a [id] [x] [y]  : add node [id] at position [x] [y] (km)
  m [id] ...      : enable nodes
  d [id] ...      : disable nodes
  r               : show routing candidate tables
  s               : show downlink nodes
  t               : show clock & waiting/pause time of nodes
  c               : clear time & communication count
`

const prompt = `Input command ("h": help)>> `

type Console struct {
	ctl sim.Controller
	in  *bufio.Scanner
	out io.Writer
}

func New(ctl sim.Controller, in io.Reader, out io.Writer) *Console {
	return &Console{ctl: ctl, in: bufio.NewScanner(in), out: out}
}

// Run reads commands until "e", end of input or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "Hello, network!")
	defer fmt.Fprintln(c.out, "Good bye!")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(c.out, prompt)
		if !c.in.Scan() {
			return c.in.Err()
		}
		if quit := c.Exec(ctx, c.in.Text()); quit {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	args := fields[1:]
	switch fields[0] {
	case "h":
		fmt.Fprint(c.out, help)
	case "n":
		c.step()
	case "f":
		c.fastForward(ctx)
	case "e":
		return true
	case "i":
		c.flood("init", c.ctl.InitNetwork)
	case "b":
		c.flood("build", c.ctl.BuildNetwork)
	case "a":
		c.add(args)
	case "m":
		c.each(args, c.ctl.Enable)
	case "d":
		c.each(args, c.ctl.Disable)
	case "r":
		c.tables()
	case "s":
		c.downlinks()
	case "t":
		c.timers()
	case "c":
		c.ctl.ResetCounters()
		fmt.Fprintln(c.out, "Note: Cleared time and communication count.")
	default:
		fmt.Fprintln(c.out, "Error: Incorrect command")
	}
	return false
}

func (c *Console) step() {
	res := c.ctl.Step()
	st := c.ctl.Status()
	fmt.Fprintf(c.out, "\n========================= Step: %d =========================\n", st.Step)
	if res.Outcome == sim.Transmitted {
		fmt.Fprintf(c.out, "[Transmitter]            : %s (heard by %d)\n", res.Transmitter, res.Delivered)
	}
	c.counters(st)
	if res.Outcome == sim.Completed {
		fmt.Fprint(c.out, "\n****** Network update has finished ******\n\n")
	}
}

func (c *Console) fastForward(ctx context.Context) {
	n, err := c.ctl.FastForward(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	fmt.Fprintf(c.out, "Fast-forwarded %d steps\n", n)
	c.counters(c.ctl.Status())
	if err == nil {
		fmt.Fprint(c.out, "\n****** Network update has finished ******\n\n")
	}
}

func (c *Console) counters(st sim.Status) {
	fmt.Fprintf(c.out, "[Estimated elapsed time] : %dms\n", st.Elapsed.Milliseconds())
	fmt.Fprintf(c.out, "[Communication count]    : %d\n", st.Count)
}

func (c *Console) flood(name string, start func() error) {
	if err := start(); err != nil {
		fmt.Fprintf(c.out, "Error: %s network: %v\n", name, err)
		return
	}
	c.step()
}

func (c *Console) add(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(c.out, "Error: usage a [id] [x] [y]")
		return
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	x, errX := strconv.ParseFloat(args[1], 64)
	y, errY := strconv.ParseFloat(args[2], 64)
	if err := errors.Join(errX, errY); err != nil {
		fmt.Fprintf(c.out, "Error: bad position: %v\n", err)
		return
	}
	if err := c.ctl.AddNode(id, mesh.CreateCoordinates(x, y)); err != nil {
		fmt.Fprintf(c.out, "Error: Node %s: %v\n", id, err)
	}
}

func (c *Console) each(args []string, op func(mesh.NodeID) error) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Error: missing node id")
		return
	}
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}
		if err := op(id); err != nil {
			fmt.Fprintf(c.out, "Error: Node %s: %v\n", id, err)
		}
	}
}

func (c *Console) tables() {
	fmt.Fprintln(c.out, "\n[Routing Candidate Table] (# Node ID: [{Candidate ID, Depth, RSSI, UplinkID}, ...])")
	for _, tv := range c.ctl.Tables() {
		fmt.Fprintf(c.out, "# %s:\n", tv.Node)
		for _, cand := range tv.Candidates {
			fmt.Fprintf(c.out, "  {id: %s, depth: %d, rssi: %.2f, uplink: %s}\n", cand.ID, cand.Depth, cand.RSSI, cand.Uplink)
		}
	}
	fmt.Fprintln(c.out)
}

func (c *Console) downlinks() {
	fmt.Fprintln(c.out, "\n[Downlink ID] (# Node ID: [Downlink ID])")
	for _, dv := range c.ctl.Downlinks() {
		ids := make([]string, len(dv.Downlinks))
		for i, d := range dv.Downlinks {
			ids[i] = d.String()
		}
		fmt.Fprintf(c.out, "# %s: [%s]\n", dv.Node, strings.Join(ids, ", "))
	}
	fmt.Fprintln(c.out)
}

func (c *Console) timers() {
	fmt.Fprintln(c.out, "\n[Clock, waiting and pause time] (# Node ID: [Clock, (waiting, pause)])")
	for _, tv := range c.ctl.Timers() {
		fmt.Fprintf(c.out, "#%s: [%d, (%s, %s)]\n", tv.Node, tv.Clock, tv.Waiting, tv.Pause)
	}
	fmt.Fprintln(c.out)
}

func parseID(s string) (mesh.NodeID, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return mesh.NoNode, fmt.Errorf("bad node id %q", s)
	}
	return mesh.NodeID(v), nil
}
