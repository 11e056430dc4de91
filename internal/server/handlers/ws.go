package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/auth"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/internal/server/sync"
	"github.com/iudanet/roomsync/internal/validation"
	"github.com/iudanet/roomsync/pkg/api"
)

const (
	writeTimeout   = 10 * time.Second
	maxFrameSize   = 1 << 20 // 1 MiB
	closeGraceTime = time.Second
)

// SocketHandler upgrades connections at /sync/{roomID} and pumps push
// frames into the engine
type SocketHandler struct {
	engine   *sync.Engine
	store    storage.Store
	verifier *auth.Verifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewSocketHandler creates the socket endpoint handler
func NewSocketHandler(engine *sync.Engine, store storage.Store, verifier *auth.Verifier, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		engine:   engine,
		store:    store,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native apps and sandboxed web views; origin
			// enforcement happens through connection tokens instead.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// wsSocket adapts a websocket connection to the engine's socket interface.
// Gorilla connections allow one concurrent writer, so writes are serialized
// through a mutex.
type wsSocket struct {
	conn *websocket.Conn
	mu   stdsync.Mutex
}

func (s *wsSocket) Send(msg *api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(closeGraceTime)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}

// Connect handles GET /sync/{roomID}. Query parameters: clientID
// (required), baseCookie (optional, the version the client already has)
// and token (required when auth is enabled).
func (h *SocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	clientID := r.URL.Query().Get("clientID")
	if err := validation.ValidateRoomID(roomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateClientID(clientID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var baseCookie *int64
	if raw := r.URL.Query().Get("baseCookie"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid baseCookie", http.StatusBadRequest)
			return
		}
		baseCookie = &v
	}

	if err := h.verifier.Verify(r.URL.Query().Get("token"), clientID, roomID); err != nil {
		h.logger.Warn("connection token rejected",
			"client_id", clientID,
			"room_id", roomID,
			"error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.recordConnect(r.Context(), clientID, roomID, baseCookie); err != nil {
		if errors.Is(err, errRoomMismatch) {
			http.Error(w, "client is bound to another room", http.StatusForbidden)
			return
		}
		h.logger.Error("failed to record connect",
			"client_id", clientID,
			"room_id", roomID,
			"error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("websocket upgrade failed",
			"client_id", clientID,
			"error", err)
		return
	}

	socket := &wsSocket{conn: conn}
	client := sync.NewClient(clientID, roomID, socket)
	if prev := h.engine.Registry().Register(client); prev != nil {
		h.logger.Info("replacing previous connection", "client_id", clientID)
		_ = prev.Close()
	}

	h.logger.Info("client connected",
		"client_id", clientID,
		"room_id", roomID)

	// A fresh connection means the client wants its first poke computed
	// from the baseCookie it just declared.
	h.engine.Signal()

	h.readPump(client, conn)
}

var errRoomMismatch = errors.New("client bound to another room")

// recordConnect upserts the durable client record. A client keeps its
// room for life; on reconnect the declared baseCookie replaces the stored
// one, since it is the client stating what it actually has.
func (h *SocketHandler) recordConnect(ctx context.Context, clientID, roomID string, baseCookie *int64) error {
	return h.store.WithTx(ctx, func(tx storage.RoomStorage) error {
		record, err := tx.GetClientRecord(ctx, clientID)
		switch {
		case errors.Is(err, storage.ErrClientNotFound):
			record = &models.ClientRecord{
				ClientID: clientID,
				RoomID:   roomID,
			}
		case err != nil:
			return err
		case record.RoomID != roomID:
			return errRoomMismatch
		}
		record.BaseCookie = baseCookie
		return tx.SetClientRecord(ctx, record)
	})
}

// readPump reads frames until the connection drops. Malformed frames get
// an error frame back but do not kill the connection.
func (h *SocketHandler) readPump(client *sync.Client, conn *websocket.Conn) {
	defer func() {
		h.engine.Registry().Remove(client)
		_ = conn.Close()
		h.logger.Info("client disconnected", "client_id", client.ClientID)
	}()

	conn.SetReadLimit(maxFrameSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed",
					"client_id", client.ClientID,
					"error", err)
			}
			return
		}

		var msg api.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(client, "malformed message")
			continue
		}

		switch msg.Type {
		case api.TypePush:
			if msg.Push == nil {
				h.sendError(client, "push frame without payload")
				continue
			}
			h.engine.Push(client, msg.Push, time.Now)
		default:
			h.sendError(client, "unknown message type: "+msg.Type)
		}
	}
}

func (h *SocketHandler) sendError(client *sync.Client, text string) {
	if err := client.Send(&api.Message{Type: api.TypeError, Error: text}); err != nil {
		h.logger.Warn("failed to send error frame",
			"client_id", client.ClientID,
			"error", err)
	}
}
