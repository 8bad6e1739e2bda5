// Package cryptofacilities connects to the Crypto Facilities book_ui_1
// WebSocket feed and turns its frames into sequencer events.
package cryptofacilities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
	"orderbook_go/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxRetries       = 10
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	defaultUserAgent = "orderbook-go/1.0"
)

// Worker handles the feed WebSocket connection. Book and ack frames are
// stamped with the shared sequence counter and pushed to the inbox; a full
// inbox blocks the reader rather than dropping data.
type Worker struct {
	url     string
	inbox   chan<- event.Event
	seq     *uint64
	metrics *infra.Metrics
	logger  *slog.Logger

	conn      *websocket.Conn
	session   string
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// retryBackoff is swapped in tests to avoid real sleeps.
	retryBackoff func(int) time.Duration
}

// NewWorker creates a new feed worker.
func NewWorker(url string, inbox chan<- event.Event, seq *uint64, metrics *infra.Metrics) *Worker {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Worker{
		url:          url,
		inbox:        inbox,
		seq:          seq,
		metrics:      metrics,
		logger:       slog.Default().With("module", "cryptofacilities"),
		retryBackoff: infra.CalculateBackoff,
	}
}

// Connect starts the WebSocket connection with automatic reconnection
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff
func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Feed worker panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Feed connection loop stopped")
			return
		default:
		}

		session, err := w.connect(ctx)
		if err != nil {
			w.logger.Warn("Feed connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := w.retryBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				w.logger.Error("Feed max retries exceeded, resetting counter")
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.emit(ctx, &event.ConnectionEvent{Connected: true, SessionID: session})

		connCtx, stopPing := context.WithCancel(ctx)
		go w.pingLoop(connCtx)
		w.readLoop(ctx)
		stopPing()

		w.metrics.DecrementConnections()
		w.emit(ctx, &event.ConnectionEvent{Connected: false, SessionID: session})
		if ctx.Err() == nil {
			w.metrics.RecordReconnect()
		}
	}
}

// connect dials the feed. Subscriptions are left to the controller, which
// reacts to the ConnectionEvent.
func (w *Worker) connect(ctx context.Context) (string, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	header := make(http.Header)
	header.Add("User-Agent", defaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return "", domain.NewNetworkError("dial", fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	session := uuid.NewString()

	w.mu.Lock()
	w.conn = conn
	w.session = session
	w.connected = true
	w.mu.Unlock()

	w.metrics.IncrementConnections()
	w.logger.Info("Feed WebSocket connected",
		slog.String("url", w.url),
		slog.String("session", session),
	)
	return session, nil
}

// Subscribe asks the feed for inst's book.
func (w *Worker) Subscribe(inst domain.Instrument) error {
	return w.sendRequest("subscribe", inst)
}

// Unsubscribe asks the feed to stop sending inst's book.
func (w *Worker) Unsubscribe(inst domain.Instrument) error {
	return w.sendRequest("unsubscribe", inst)
}

func (w *Worker) sendRequest(action string, inst domain.Instrument) error {
	msg, err := encodeRequest(action, inst)
	if err != nil {
		return err
	}
	if err := w.threadSafeWrite(websocket.TextMessage, msg); err != nil {
		return domain.NewNetworkError(action, err)
	}
	w.logger.Debug("Sent request", slog.String("event", action), slog.String("instrument", inst.String()))
	return nil
}

func (w *Worker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// threadSafeWrite sends a message to the WebSocket connection in a thread-safe manner
func (w *Worker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return domain.ErrConnectionFailed
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}

// readLoop reads messages until the connection fails or ctx ends.
func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.closeConnection()
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("Feed WebSocket read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(ctx, message)
	}
}

// handleMessage decodes one frame and forwards it to the sequencer.
func (w *Worker) handleMessage(ctx context.Context, message []byte) {
	ev, err := decode(message)
	if err != nil {
		if errors.Is(err, errVenue) {
			w.metrics.RecordFeedError()
			w.logger.Error("Feed reported an error", slog.Any("error", err))
			return
		}
		w.metrics.RecordDrop(infra.DropMalformed)
		w.logger.Warn("Dropped malformed feed message", slog.Any("error", err), slog.Int("bytes", len(message)))
		if bookFrame(message) {
			// A lost book update still takes a number so the sequencer sees the gap.
			event.NextSeq(w.seq)
		}
		return
	}
	if ev == nil {
		return
	}

	ev.Stamp(event.NextSeq(w.seq), time.Now().UnixMicro())
	w.emit(ctx, ev)
}

// emit blocks until the sequencer takes ev or ctx ends.
func (w *Worker) emit(ctx context.Context, ev event.Event) {
	select {
	case w.inbox <- ev:
	case <-ctx.Done():
		if d, ok := ev.(*event.DeltaEvent); ok {
			event.ReleaseDeltaEvent(d)
		}
	}
}

// Reconnect drops the current connection; connectionLoop dials again.
func (w *Worker) Reconnect() {
	w.logger.Warn("Recycling feed connection")
	w.closeConnection()
}

// closeConnection safely closes the WebSocket connection
func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect closes the WebSocket connection
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.logger.Info("Feed WebSocket disconnected")
}

// IsConnected returns connection status
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// SessionID returns the id of the current connection, or "" when disconnected.
func (w *Worker) SessionID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return ""
	}
	return w.session
}

var (
	_ domain.FeedWorker            = (*Worker)(nil)
	_ domain.SubscriptionRequester = (*Worker)(nil)
)
