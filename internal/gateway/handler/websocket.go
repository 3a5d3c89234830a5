package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	helloworld "github.com/msto63/grpc-sample/api/hello"
	"github.com/msto63/grpc-sample/pkg/core/logging"
	"google.golang.org/grpc/status"
)

// WebSocket upgrader with permissive settings for local development
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler bridges a websocket onto SayHelloBidiStream. Every text
// frame becomes one HelloMessage, every reply one JSON Message frame.
type WebSocketHandler struct {
	client helloworld.HelloServiceClient
	idle   time.Duration
	logger *logging.Logger
}

// NewWebSocketHandler creates a websocket bridge
func NewWebSocketHandler(client helloworld.HelloServiceClient) *WebSocketHandler {
	return &WebSocketHandler{
		client: client,
		idle:   120 * time.Second,
		logger: logging.New("gateway-websocket"),
	}
}

// ServeHTTP handles the upgrade and the connection
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	h.handleConnection(r.Context(), conn)
}

func (h *WebSocketHandler) handleConnection(parent context.Context, conn *websocket.Conn) {
	defer conn.Close()
	h.logger.Info("WebSocket connection established", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	stream, err := h.client.SayHelloBidiStream(ctx)
	if err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, err.Error())
		return
	}

	conn.SetReadDeadline(time.Now().Add(h.idle))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.idle))
		return nil
	})

	// reader: websocket -> stream; a closed socket half-closes the stream
	go func() {
		defer stream.CloseSend()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Warn("WebSocket read error", "error", err)
					cancel()
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(h.idle))
			if err := stream.Send(helloworld.NewMessage(decodeFrame(data))); err != nil {
				return
			}
		}
	}()

	count := 0
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			h.logger.Info("WebSocket bridge completed", "replies", count)
			h.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		}
		if err != nil {
			h.logger.Warn("Bidi stream failed", "error", err)
			h.closeWith(conn, websocket.CloseInternalServerErr, status.Convert(err).Message())
			return
		}
		count++
		if err := conn.WriteJSON(Message{Value: resp.GetValue()}); err != nil {
			h.logger.Error("WebSocket send error", "error", err)
			return
		}
	}
}

// decodeFrame accepts {"value": "..."} or a bare text frame
func decodeFrame(data []byte) string {
	var msg Message
	if err := json.Unmarshal(data, &msg); err == nil {
		return msg.Value
	}
	return string(data)
}

func (h *WebSocketHandler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		h.logger.Debug("WebSocket close failed", "error", err)
	}
}
