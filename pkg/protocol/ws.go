package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"sync"

	ws "github.com/gorilla/websocket"
)

// WebSocket is the single persistent connection to the event source.
// Receive and Send must be called from one goroutine; Close may be called from any.
type WebSocket struct {
	conn *ws.Conn
	url  string

	closeOnce sync.Once
	closeErr  error
}

func Dial(ctx context.Context, url string) (*WebSocket, error) {
	log.Debug("init websocket protocol", "url", url)

	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.Error("Failed to dial url", "url", url, "err", err)
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, url, err)
	}

	log.Info("Connected to event source", "url", url)
	return &WebSocket{conn: conn, url: url}, nil
}

func (web *WebSocket) URL() string { return web.url }

// Receive blocks until the next frame arrives and decodes it.
// Any read failure is treated as loss of the channel: gorilla connections
// cannot be read from again after an error.
func (web *WebSocket) Receive() (ChatEvent, error) {
	_, msg, err := web.conn.ReadMessage()
	if err != nil {
		if WsIsClosed(err) {
			log.Info("Event source closed the connection", "url", web.url)
		}
		return ChatEvent{}, fmt.Errorf("%w: %w", ErrChannelClosed, err)
	}

	log.Debug("Read ws", "msg", string(msg))
	return ParseEvent(msg)
}

func (web *WebSocket) Send(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	log.Debug("Write ws", "msg", string(payload))
	if err := web.conn.WriteMessage(ws.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelClosed, err)
	}

	return nil
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (web *WebSocket) Close() error {
	web.closeOnce.Do(func() {
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		_ = web.conn.WriteControl(ws.CloseMessage, msg, deadline())
		web.closeErr = web.conn.Close()
	})
	return web.closeErr
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
