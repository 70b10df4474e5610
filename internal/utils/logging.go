package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// SetupLogFile sends the standard logger to both stdout and a timestamped
// file under dir. The caller closes the returned file.
func SetupLogFile(dir string, stdout io.Writer) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	f, err := os.OpenFile(filepath.Join(dir, "log_"+timestamp+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(stdout, f))
	// include time with microsecond precision
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	return f, nil
}
