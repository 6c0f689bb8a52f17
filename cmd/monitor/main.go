package main

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/nats"
	"github.com/saviobatista/ytla-corr/internal/types"
)

const dateLayout = "2006-01-02"

func main() {
	if err := runMonitor(); err != nil {
		log.Printf("Monitor failed: %v", err)
		os.Exit(1)
	}
}

// runMonitor contains the main application logic and can be tested
func runMonitor() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.NATSURL == "" {
		return errors.New("NATS_URL is not set")
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "./events"
	}

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer client.Close()

	events, err := NewEventLog(outputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Printf("Warning: failed to close event log: %v", err)
		}
	}()

	calSub, err := client.SubscribeCalibration(func(run *types.CalibrationRun) {
		log.Printf("calibration %s: %s -> %s", run.RunID, run.RawPath, run.OutputPath)
		if err := events.Write("calibration", run); err != nil {
			log.Printf("Failed to write event: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to calibration events: %w", err)
	}
	defer calSub.Unsubscribe()

	sefdSub, err := client.SubscribeSEFD(func(rec *types.SEFDRecord) {
		log.Printf("SEFD %s %s patch %d: %.3e", rec.Source, rec.Sideband, rec.Patch, rec.SEFD)
		if err := events.Write("sefd", rec); err != nil {
			log.Printf("Failed to write event: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to SEFD events: %w", err)
	}
	defer sefdSub.Unsubscribe()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	return nil
}

// Event is one line of the event log
type Event struct {
	Kind       string          `json:"kind"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// EventLog appends pipeline events to one JSON-lines file per UTC day and
// gzips the file of a finished day
type EventLog struct {
	outputDir   string
	now         func() time.Time
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// NewEventLog creates the output directory and opens the file of today
func NewEventLog(outputDir string) (*EventLog, error) {
	return newEventLog(outputDir, time.Now)
}

func newEventLog(outputDir string, now func() time.Time) (*EventLog, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	l := &EventLog{outputDir: outputDir, now: now}
	if err := l.rotateFile(); err != nil {
		return nil, err
	}
	return l, nil
}

// LogPath returns the event log file of a date
func (l *EventLog) LogPath(date string) string {
	return filepath.Join(l.outputDir, fmt.Sprintf("ytla_%s.log", date))
}

// Write appends one event, rotating first when the day has changed
func (l *EventLog) Write(kind string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	if now.Format(dateLayout) != l.currentDate {
		if err := l.rotateAndCompress(); err != nil {
			return fmt.Errorf("failed to rotate event log: %w", err)
		}
	}

	line, err := json.Marshal(Event{Kind: kind, ReceivedAt: now, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := l.currentFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// CurrentDate returns the date of the open file
func (l *EventLog) CurrentDate() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentDate
}

// Close closes the open file
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentFile == nil {
		return nil
	}
	err := l.currentFile.Close()
	l.currentFile = nil
	return err
}

// rotateAndCompress closes the current file, compresses it and opens the
// file of the current day
func (l *EventLog) rotateAndCompress() error {
	if l.currentFile != nil {
		if err := l.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current file: %w", err)
		}
		l.currentFile = nil
	}

	if l.currentDate != "" {
		if err := compressFile(l.LogPath(l.currentDate)); err != nil {
			log.Printf("Failed to compress previous log: %v", err)
		}
	}
	return l.rotateFile()
}

// rotateFile opens the file of the current day for appending
func (l *EventLog) rotateFile() error {
	date := l.now().UTC().Format(dateLayout)

	//nolint:gosec // the path is built from the output directory and a date
	file, err := os.OpenFile(l.LogPath(date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.currentFile = file
	l.currentDate = date
	return nil
}

// compressFile gzips filePath into filePath.gz and removes the original
func compressFile(filePath string) error {
	//nolint:gosec // filePath is controlled by application logic
	src, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer src.Close()

	//nolint:gosec // the compressed path is derived from filePath
	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close compressed file: %w", err)
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to remove original file: %w", err)
	}
	return nil
}
