// Package trace records simulation events to a msgpack stream for offline
// replay and plotting.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	eb "lpwa-mesh/internal/eventBus"
)

type Recorder struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	enc   *msgpack.Encoder
	c     io.Closer
	count int
}

func NewRecorder(w io.Writer) *Recorder {
	buf := bufio.NewWriter(w)
	return &Recorder{buf: buf, enc: msgpack.NewEncoder(buf)}
}

// Create opens path for writing, truncating it.
func Create(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(f)
	r.c = f
	return r, nil
}

func (r *Recorder) Record(e eb.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(&e); err != nil {
		return fmt.Errorf("record %s: %w", e.Type, err)
	}
	r.count++
	return nil
}

// Consume records events until ch is closed.
func (r *Recorder) Consume(ch <-chan eb.Event) error {
	for ev := range ch {
		if err := r.Record(ev); err != nil {
			return err
		}
	}
	return r.Flush()
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Flush()
}

func (r *Recorder) Close() error {
	err := r.Flush()
	if r.c != nil {
		err = errors.Join(err, r.c.Close())
	}
	return err
}

// ReadAll decodes every event of a trace stream. A stream cut inside an
// event is an error.
func ReadAll(rd io.Reader) ([]eb.Event, error) {
	br := bufio.NewReader(rd)
	dec := msgpack.NewDecoder(br)
	var out []eb.Event
	for {
		if _, err := br.Peek(1); errors.Is(err, io.EOF) {
			return out, nil
		}
		var ev eb.Event
		if err := dec.Decode(&ev); err != nil {
			return out, fmt.Errorf("event %d: %w", len(out), err)
		}
		out = append(out, ev)
	}
}
