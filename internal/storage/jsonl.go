package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrWriterClosed = errors.New("writer is closed")
	ErrBufferFull   = errors.New("buffer full")
)

// JSONLWriter handles async writing of JSON lines to date-organized files:
// baseDir/YYYY-MM-DD/subDir/<fileBase>.jsonl
type JSONLWriter struct {
	baseDir   string
	subDir    string
	maxSizeMB int
	fileBase  string // timestamp-based name when empty

	writeCh chan any
	done    chan struct{}
	// sendMu orders queueing against Close: once closed is set no record
	// can enter writeCh, so the drain in Close sees every accepted record.
	sendMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   atomic.Int64

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	now         func() time.Time
}

// NewJSONLWriter creates an async JSONL writer and starts its write loop.
func NewJSONLWriter(baseDir, subDir string, bufferSize, maxSizeMB int, fileBase string) *JSONLWriter {
	if bufferSize < 1 {
		bufferSize = 1
	}
	w := &JSONLWriter{
		baseDir:   baseDir,
		subDir:    subDir,
		maxSizeMB: maxSizeMB,
		fileBase:  fileBase,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Write queues a record for async writing. It never blocks; when the buffer
// is full the record is dropped.
func (w *JSONLWriter) Write(record any) error {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		w.dropped.Add(1)
		slog.Warn("JSONL write buffer full, dropping record", "subdir", w.subDir)
		return ErrBufferFull
	}
}

// Dropped returns how many records were discarded because the buffer was full.
func (w *JSONLWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops the writer, flushes queued records and closes the file.
func (w *JSONLWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		w.closed = true
		close(w.done)
		w.sendMu.Unlock()
		w.wg.Wait()

		// Drain remaining items with timeout
		timeout := time.After(5 * time.Second)
	drain:
		for {
			select {
			case record := <-w.writeCh:
				w.writeRecord(record)
			case <-timeout:
				slog.Warn("JSONL writer close timeout, some records may be lost", "subdir", w.subDir)
				break drain
			default:
				break drain
			}
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.logger != nil {
			err = w.logger.Close()
			w.logger = nil
		}
	})
	return err
}

func (w *JSONLWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *JSONLWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal record", "error", err, "subdir", w.subDir)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := w.now().UTC().Format("2006-01-02")
	if currentDate != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(currentDate); err != nil {
			slog.Error("Failed to open JSONL file", "error", err, "subdir", w.subDir)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write record", "error", err, "subdir", w.subDir)
	}
}

func (w *JSONLWriter) rotateForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, w.subDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	name := w.fileBase
	if name == "" {
		name = fmt.Sprintf("%d", w.now().Unix())
	}
	filename := filepath.Join(dir, name+".jsonl")

	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("Opened new JSONL file", "file", filename, "subdir", w.subDir)
	return nil
}
