package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 64 << 10
)

// tab is one websocket connection with its read and write pumps.
type tab struct {
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

func newTab(conn *websocket.Conn) *tab {
	return &tab{
		conn: conn,
		send: make(chan any, sendBufferSize),
		done: make(chan struct{}),
	}
}

// readLoop hands every text frame to handle until the peer goes away.
func (t *tab) readLoop(handle func(payload []byte)) {
	t.conn.SetReadLimit(maxFrameSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("[web] read frame")
			return
		}
		handle(payload)
	}
}

func (t *tab) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		t.close()
	}()
	for {
		select {
		case v := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := writeFrame(t.conn, v); err != nil {
				log.Debug().Err(err).Msg("[web] write frame")
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// push queues v for the write pump without blocking; a slow reader loses
// its oldest queued frame.
func (t *tab) push(v any) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.send <- v:
	default:
		select {
		case <-t.send:
		default:
		}
		select {
		case t.send <- v:
		default:
		}
	}
}

// goAway tells the peer the server is shutting down; the read pump then
// fails and the handler unmounts.
func (t *tab) goAway() {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
		time.Now().Add(writeWait))
	_ = t.conn.Close()
}

func (t *tab) close() {
	t.once.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}

// writeFrame encodes v without HTML escaping so chat text reaches the page
// as typed.
func writeFrame(conn *websocket.Conn, v any) error {
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.Close()
}

// mergeDone returns a context that ends with either parent.
func mergeDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
