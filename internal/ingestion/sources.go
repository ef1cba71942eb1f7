package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"perp-stats-engine/internal/domain"
)

// Source streams decoded events.
type Source interface {
	// Subscribe returns a channel of events. The channel is closed when the
	// source ends, fails or ctx is cancelled; Err reports a failure.
	Subscribe(ctx context.Context) (<-chan *domain.Event, error)
	// Err returns the error that ended the stream, if any.
	Err() error
}

// maxLineSize bounds one JSON line.
const maxLineSize = 4 << 20

// ReadEvents decodes a JSON-lines event log. Blank lines and lines starting
// with '#' are skipped.
func ReadEvents(r io.Reader) ([]*domain.Event, error) {
	var events []*domain.Event
	err := scanEvents(r, func(ev *domain.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func scanEvents(r io.Reader, fn func(*domain.Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		ev := new(domain.Event)
		if err := json.Unmarshal(raw, ev); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}

// ReadEventFile decodes the JSON-lines event log at path.
func ReadEventFile(path string) ([]*domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEvents(f)
}

// FileSource streams a JSON-lines event log.
type FileSource struct {
	path       string
	bufferSize int

	mu  sync.Mutex
	err error
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source reading path.
func NewFileSource(path string, bufferSize int) *FileSource {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &FileSource{path: path, bufferSize: bufferSize}
}

// Subscribe opens the file and streams its events in file order.
func (s *FileSource) Subscribe(ctx context.Context) (<-chan *domain.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	ch := make(chan *domain.Event, s.bufferSize)
	go func() {
		defer close(ch)
		defer f.Close()

		err := scanEvents(f, func(ev *domain.Event) error {
			select {
			case ch <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			s.setErr(fmt.Errorf("%s: %w", s.path, err))
		}
	}()

	return ch, nil
}

// Err returns the read or decode error that ended the stream.
func (s *FileSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FileSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
