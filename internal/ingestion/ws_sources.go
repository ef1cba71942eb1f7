package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"perp-stats-engine/internal/domain"
	"perp-stats-engine/internal/observability"
)

const wsSourceName = "ws"

// WSConfig configures WebSocket source behavior.
type WSConfig struct {
	URL string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:               url,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 60 * time.Second,
		PingInterval:      15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		BufferSize:        1024,
	}
}

// subscribeRequest is sent on every (re)connect. From is the last delivered
// position; the server resends everything after it.
type subscribeRequest struct {
	Op   string         `json:"op"`
	From *domain.Cursor `json:"from,omitempty"`
}

// WSSource streams events from a WebSocket endpoint that pushes one JSON
// event per text message. It reconnects with exponential backoff and drops
// events the server replays at or before the position it was resubscribed
// from. Events arriving out of order after that position are passed on for
// the runner to reorder.
type WSSource struct {
	config  WSConfig
	dialer  websocket.Dialer
	metrics *observability.Metrics
	logger  zerolog.Logger

	mu      sync.Mutex
	last    domain.Cursor // highest position delivered
	hasLast bool
}

var _ Source = (*WSSource)(nil)

// NewWSSource creates a WebSocket source. metrics may be nil.
func NewWSSource(cfg WSConfig, metrics *observability.Metrics, logger zerolog.Logger) *WSSource {
	def := DefaultWSConfig(cfg.URL)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	return &WSSource{
		config:  cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		metrics: metrics,
		logger:  logger.With().Str("component", "ws_source").Str("url", cfg.URL).Logger(),
	}
}

// ResumeFrom sets the position to resume after on the first subscribe.
func (s *WSSource) ResumeFrom(c domain.Cursor) {
	s.mu.Lock()
	s.last = c
	s.hasLast = true
	s.mu.Unlock()
}

// Subscribe dials the endpoint and streams events until ctx is cancelled.
// Only the first dial failure is returned; later ones are retried.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan *domain.Event, error) {
	conn, from, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *domain.Event, s.config.BufferSize)
	go s.run(ctx, conn, from, ch)
	return ch, nil
}

// Err always returns nil: the stream only ends with its context.
func (s *WSSource) Err() error {
	return nil
}

func (s *WSSource) run(ctx context.Context, conn *websocket.Conn, from *domain.Cursor, ch chan<- *domain.Event) {
	defer close(ch)

	delay := s.config.ReconnectDelay
	for {
		delivered, err := s.session(ctx, conn, from, ch)
		if ctx.Err() != nil {
			return
		}
		if delivered > 0 {
			// reset delay after a productive session
			delay = s.config.ReconnectDelay
		}
		s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("connection lost")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			s.metrics.RecordReconnect(wsSourceName)
			conn, from, err = s.connect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}

			// Exponential backoff, capped
			delay *= 2
			if delay > s.config.MaxReconnectDelay {
				delay = s.config.MaxReconnectDelay
			}
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("reconnect failed")
		}
	}
}

// connect dials and sends the subscribe request. It returns the position the
// connection resumes after, nil for a fresh subscription.
func (s *WSSource) connect(ctx context.Context) (*websocket.Conn, *domain.Cursor, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("websocket dial: %w", err)
	}

	req := subscribeRequest{Op: "subscribe"}
	s.mu.Lock()
	if s.hasLast {
		from := s.last
		req.From = &from
	}
	s.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("write subscribe: %w", err)
	}

	s.logger.Info().Bool("resume", req.From != nil).Msg("subscribed")
	return conn, req.From, nil
}

// session reads from conn until it fails. It returns the number of events
// delivered on this connection.
func (s *WSSource) session(ctx context.Context, conn *websocket.Conn, from *domain.Cursor, ch chan<- *domain.Event) (int, error) {
	done := make(chan struct{})
	var writeMu sync.Mutex
	var wg sync.WaitGroup

	defer func() {
		close(done)
		writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		conn.Close()
		wg.Wait()
	}()

	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pingLoop(conn, &writeMu, done)
	}()

	// unblock ReadMessage on cancellation
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	delivered := 0
	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := s.decode(message, from)
		if err != nil {
			s.metrics.RecordSourceMessage(wsSourceName, "invalid")
			s.logger.Warn().Err(err).Msg("undecodable message dropped")
			continue
		}
		if ev == nil {
			s.metrics.RecordSourceMessage(wsSourceName, "replayed")
			continue
		}

		select {
		case ch <- ev:
			delivered++
			s.metrics.RecordSourceMessage(wsSourceName, "ok")
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}

// decode parses one message. It returns nil for events at or before from and
// otherwise advances the highest delivered position.
func (s *WSSource) decode(message []byte, from *domain.Cursor) (*domain.Event, error) {
	ev := new(domain.Event)
	if err := json.Unmarshal(message, ev); err != nil {
		return nil, err
	}
	if ev.Kind == "" {
		return nil, errors.New("message without kind")
	}

	cursor := ev.Cursor()
	if from != nil && cursor.Compare(*from) <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	if !s.hasLast || cursor.Compare(s.last) > 0 {
		s.last = cursor
		s.hasLast = true
	}
	s.mu.Unlock()
	return ev, nil
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *WSSource) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			writeMu.Unlock()
			if err != nil {
				// the read side notices the dead connection
				return
			}
		}
	}
}
