package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amora-chat/amora/internal/bus"
	"github.com/amora-chat/amora/internal/metrics"
)

const (
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	writeWait      = 10 * time.Second
	maxBackoff     = 30 * time.Second
	initialBackoff = time.Second
)

// Socket maintains the persistent push channel. It dials, reads frames,
// normalizes them, and publishes canonical events on the bus. It reconnects
// with exponential backoff until the context is cancelled.
type Socket struct {
	url    string
	token  string
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSocket creates a push socket bound to the given bus.
func NewSocket(url, token string, b *bus.Bus, logger *zap.Logger) *Socket {
	return &Socket{
		url:    url,
		token:  token,
		bus:    b,
		logger: logger,
	}
}

// Start runs the connect/read/reconnect loop in the background.
func (s *Socket) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop terminates the loop and closes any live connection.
func (s *Socket) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Socket) run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("socket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			metrics.SocketReconnects.Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff
		s.logger.Info("push socket connected")
		s.bus.Publish(bus.Event{Kind: bus.KindSocketConnected, Timestamp: time.Now()})

		s.readLoop(ctx, conn)

		_ = conn.Close()
		s.bus.Publish(bus.Event{Kind: bus.KindSocketDisconnected, Timestamp: time.Now()})
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("push socket disconnected, reconnecting")
		metrics.SocketReconnects.Inc()
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, header)
	return conn, err
}

// readLoop reads frames until the connection dies or ctx is cancelled.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(frame)
	}
}

// dispatch normalizes one frame and publishes it. Malformed frames are
// dropped individually; the stream keeps going.
func (s *Socket) dispatch(frame []byte) {
	evt, err := Normalize(frame)
	if err != nil {
		metrics.PushEventsDropped.Inc()
		s.logger.Warn("dropping malformed push frame", zap.Error(err))
		return
	}

	metrics.PushEventsTotal.WithLabelValues(evt.Kind).Inc()
	switch evt.Kind {
	case PushNewMessage:
		s.bus.Publish(bus.Event{Kind: bus.KindPushMessage, Timestamp: time.Now(), Payload: evt})
	case PushTyping:
		metrics.TypingSignals.WithLabelValues("in").Inc()
		s.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Timestamp: time.Now(), Payload: evt})
	}
}
