package utils

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func restoreLog(t *testing.T) {
	out, flags := log.Writer(), log.Flags()
	t.Cleanup(func() {
		log.SetOutput(out)
		log.SetFlags(flags)
	})
}

func TestSetupLogFile(t *testing.T) {
	restoreLog(t)
	dir := filepath.Join(t.TempDir(), "logs")
	var stdout syncBuffer

	f, err := SetupLogFile(dir, &stdout)
	require.NoError(t, err)
	log.Printf("[test] hello %d", 7)
	require.NoError(t, f.Close())

	assert.Contains(t, stdout.String(), "[test] hello 7")
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[test] hello 7")
	assert.True(t, strings.HasPrefix(filepath.Base(f.Name()), "log_"))
}

func TestMonitorResources(t *testing.T) {
	restoreLog(t)
	var out syncBuffer
	log.SetOutput(&out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		MonitorResources(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[monitor] goroutines:")
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
