package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Trial is the per-trial summary of a failure/recovery experiment.
type Trial struct {
	ID       uuid.UUID     `json:"id"`
	Index    int           `json:"index"`
	Disabled int           `json:"disabled_node"`
	AvgDepth float64       `json:"ave_depth"`
	AvgRSSI  float64       `json:"ave_rssi"`
	Time     time.Duration `json:"time"`
	Count    int           `json:"cnt"`
	Steps    int           `json:"steps"`
}

type Counters struct {
	Mode           string  `json:"mode"`
	Trials         []Trial `json:"trials"`
	MeanDepth      float64 `json:"mean_ave_depth"`
	MeanRSSI       float64 `json:"mean_ave_rssi"`
	MeanTimeMillis float64 `json:"mean_time_ms"`
	MeanCount      float64 `json:"mean_cnt"`
}

type Collector struct {
	mu sync.Mutex
	Counters
}

func NewCollector(mode string) *Collector {
	return &Collector{Counters: Counters{Mode: mode}}
}

// AddTrial records one trial and refreshes the running means.
func (c *Collector) AddTrial(t Trial) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	c.Trials = append(c.Trials, t)

	n := float64(len(c.Trials))
	var depth, rssi, ms, cnt float64
	for _, tr := range c.Trials {
		depth += tr.AvgDepth
		rssi += tr.AvgRSSI
		ms += float64(tr.Time) / float64(time.Millisecond)
		cnt += float64(tr.Count)
	}
	c.MeanDepth = depth / n
	c.MeanRSSI = rssi / n
	c.MeanTimeMillis = ms / n
	c.MeanCount = cnt / n
}

// Snapshot returns a copy of the counters.
func (c *Collector) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.Counters
	out.Trials = append([]Trial(nil), c.Trials...)
	return out
}

// Flush writes the counters as indented JSON.
func (c *Collector) Flush(file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Counters)
}

// WriteCSV writes one row per trial: ave_depth, ave_rssi, time (ms), cnt.
func (c *Collector) WriteCSV(file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ave_depth", "ave_rssi", "time", "cnt"}); err != nil {
		return err
	}
	for _, t := range c.Trials {
		row := []string{
			strconv.FormatFloat(t.AvgDepth, 'f', -1, 64),
			strconv.FormatFloat(t.AvgRSSI, 'f', -1, 64),
			strconv.FormatInt(t.Time.Milliseconds(), 10),
			strconv.Itoa(t.Count),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write trial %d: %w", t.Index, err)
		}
	}
	w.Flush()
	return w.Error()
}
