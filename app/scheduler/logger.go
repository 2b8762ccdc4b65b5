package scheduler

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// newSchedulerLogger configures a logger that writes to both stdout and a
// persistent file under data/ (or /data for containerized environments).
// Falls back to the default stdout logger when no candidate directory is
// writable.
func newSchedulerLogger(name string) *log.Logger {
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		f, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			continue
		}
		mw := io.MultiWriter(os.Stdout, f)
		// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
		return log.New(mw, name+" ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	}

	logger := log.Default()
	logger.Printf("%s: could not create log file in any candidate directory, using stdout", name)
	return logger
}
