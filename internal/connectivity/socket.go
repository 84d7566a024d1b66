package connectivity

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowapp/flowsync/internal/logging"
)

const (
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to write a ping to the peer
	writeWait = 10 * time.Second

	// Redial delay after a dropped connection
	redialWait = 5 * time.Second
)

// SocketWatch keeps a websocket connection to the Flow server open as a
// live connectivity signal: a healthy connection means online, a failed
// dial or read error means offline until the next successful redial.
type SocketWatch struct {
	monitor *Monitor
	url     string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSocketWatch creates a watch feeding the given monitor.
func NewSocketWatch(monitor *Monitor, url string) *SocketWatch {
	return &SocketWatch{
		monitor: monitor,
		url:     url,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the dial/read loop until Stop or context cancellation.
func (w *SocketWatch) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop terminates the watch and waits for the loop to exit.
func (w *SocketWatch) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *SocketWatch) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
		if err != nil {
			logging.Debug("Socket dial failed", map[string]interface{}{"url": w.url})
			w.monitor.SetOnline(false)
			if !w.sleep(ctx, redialWait) {
				return
			}
			continue
		}

		w.monitor.SetOnline(true)
		w.pump(ctx, conn)
		conn.Close()

		// A dropped connection is an offline signal; the health probe
		// or the next redial flips the state back.
		w.monitor.SetOnline(false)

		if !w.sleep(ctx, redialWait) {
			return
		}
	}
}

// pump reads until the connection errors, answering server pings and
// sending our own to detect a silent drop.
func (w *SocketWatch) pump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Socket closed unexpectedly", map[string]interface{}{"error": err.Error()})
			}
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *SocketWatch) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}
