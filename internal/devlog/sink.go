package devlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Archiver uploads a closed day file somewhere durable once the sink
// rolls over to a new day. internal/archive implements this against S3;
// tests can supply a no-op or recording stub.
type Archiver interface {
	Archive(ctx context.Context, path string, day time.Time) error
}

// Config configures a Sink.
type Config struct {
	Dir        string
	RedactMode RedactMode
	BufferSize int
	Archiver   Archiver // optional
	Logger     *slog.Logger
}

// Sink batches Event writes through a buffered channel onto a per-day
// JSONL file, the same async-writer shape the teacher's audit logger
// uses for its own event stream.
type Sink struct {
	cfg     Config
	buffer  chan *Event
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu          sync.Mutex
	currentDay  string
	currentFile *os.File
}

const defaultBufferSize = 256

// NewSink creates and starts a Sink.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("devlog: create log dir: %w", err)
	}

	s := &Sink{
		cfg:    cfg,
		buffer: make(chan *Event, cfg.BufferSize),
		done:   make(chan struct{}),
		logger: cfg.Logger,
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Log enqueues ev for writing. It never blocks the caller beyond filling
// the buffer; a full buffer drops the event and logs a warning rather
// than stall the turn that produced it.
func (s *Sink) Log(ev *Event) {
	select {
	case s.buffer <- ev:
	default:
		s.logger.Warn("devlog buffer full, dropping event", "session_key", ev.SessionKey)
	}
}

func (s *Sink) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.buffer:
			s.write(ev)
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *Sink) drain() {
	for {
		select {
		case ev := <-s.buffer:
			s.write(ev)
		default:
			return
		}
	}
}

func (s *Sink) write(ev *Event) {
	f, err := s.fileForDay(ev.Timestamp)
	if err != nil {
		s.logger.Error("devlog write failed", "error", err)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("devlog marshal failed", "error", err)
		return
	}
	if _, err := f.Write(append(payload, '\n')); err != nil {
		s.logger.Error("devlog write failed", "error", err)
	}
}

func (s *Sink) fileForDay(ts time.Time) (io.Writer, error) {
	day := ts.Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	if day == s.currentDay && s.currentFile != nil {
		return s.currentFile, nil
	}

	if s.currentFile != nil {
		closedPath := s.currentFile.Name()
		closedDay := s.currentDay
		s.currentFile.Close()
		if s.cfg.Archiver != nil {
			go func() {
				if parsed, err := time.Parse("2006-01-02", closedDay); err == nil {
					if err := s.cfg.Archiver.Archive(context.Background(), closedPath, parsed); err != nil {
						s.logger.Warn("devlog archive upload failed", "path", closedPath, "error", err)
					}
				}
			}()
		}
	}

	path := filepath.Join(s.cfg.Dir, day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s.currentDay = day
	s.currentFile = f
	return f, nil
}

// Close flushes pending events and closes the current day file.
func (s *Sink) Close() error {
	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentFile != nil {
		return s.currentFile.Close()
	}
	return nil
}
