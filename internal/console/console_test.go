package console

import (
	"bytes"
	"context"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpwa-mesh/internal/mesh"
	"lpwa-mesh/internal/network"
	"lpwa-mesh/internal/sim"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func session(t *testing.T) *sim.Session {
	t.Helper()
	net := network.NewNetwork(mesh.DefaultParams())
	_, err := net.AddRoot(0, mesh.CreateCoordinates(0, 0))
	require.NoError(t, err)
	_, err = net.AddNode(1, mesh.CreateCoordinates(5, 0))
	require.NoError(t, err)
	_, err = net.AddNode(2, mesh.CreateCoordinates(10, 0))
	require.NoError(t, err)
	return sim.NewSession(sim.NewRunner(net, rand.New(rand.NewSource(1)), nil, nil), 1000)
}

func run(t *testing.T, s *sim.Session, script string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, New(s, strings.NewReader(script), &out).Run(context.Background()))
	return out.String()
}

func TestBuildAndInspect(t *testing.T) {
	s := session(t)
	out := run(t, s, "b\nf\nr\ns\nt\ne\n")

	assert.Contains(t, out, "Hello, network!")
	assert.Contains(t, out, "Step: 1")
	assert.Contains(t, out, "Network update has finished")
	assert.Contains(t, out, "[Communication count]    : 3")
	assert.Contains(t, out, "# 2:\n  {id: 1, depth: 1")
	assert.Contains(t, out, "# 0: [1]")
	assert.Contains(t, out, "# 1: [2]")
	assert.Contains(t, out, "#2: [1, (")
	assert.True(t, strings.HasSuffix(out, "Good bye!\n"))
}

func TestNodeCommands(t *testing.T) {
	s := session(t)
	out := run(t, s, "a 9 1 1\na 9 1 1\nd 2 9\nm 2\nd 0\nm x\n")

	assert.Contains(t, out, "Error: Node 9: node already exists")
	assert.Contains(t, out, "Error: Node 0: root node cannot be disabled")
	assert.Contains(t, out, `Error: bad node id "x"`)

	snap := s.Snapshot()
	require.Len(t, snap, 4)
	assert.True(t, snap[2].Alive)
	assert.False(t, snap[3].Alive)
}

func TestCounterReset(t *testing.T) {
	s := session(t)
	out := run(t, s, "b\nn\nc\n")
	assert.Contains(t, out, "[Transmitter]            : 1 (heard by 2)")
	assert.Contains(t, out, "Cleared time and communication count")
	assert.Zero(t, s.Status().Count)
}

func TestBadInput(t *testing.T) {
	s := session(t)
	out := run(t, s, "\nzz\na 1\ni\nh\n")
	assert.Contains(t, out, "Error: Incorrect command")
	assert.Contains(t, out, "Error: usage a [id] [x] [y]")
	assert.Contains(t, out, "Error: init network: flood already pending")
	assert.Contains(t, out, "[Commands]")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(session(t), strings.NewReader("n\n"), io.Discard).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
