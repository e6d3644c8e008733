package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/roomdrop/roomdrop/internal/protocol"
	"github.com/roomdrop/roomdrop/internal/relay"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// Peers are anonymous and identified only by their room/user tokens, so any
	// origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Routes registers the relay endpoints on a new ServeMux.
func Routes(hub *relay.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET "+protocol.RoomsPath+"{id}", RoomStatus(hub.Registry()))
	mux.HandleFunc(protocol.SocketPath, ServeWs(hub))
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// RoomStatus answers GET /rooms/{id} with {"valid": bool, "full": bool}.
func RoomStatus(registry *relay.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := registry.Lookup(r.PathValue("id"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// ServeWs returns an http.HandlerFunc that upgrades relay connections. The
// room and user ids travel as the two Sec-WebSocket-Protocol tokens.
func ServeWs(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, userID, err := protocol.ParseHandshake(r.Header.Get("Sec-WebSocket-Protocol"))
		if err != nil {
			http.Error(w, handshakeErrorText(r.Header.Get("Sec-WebSocket-Protocol"), err), http.StatusBadRequest)
			return
		}

		// Echo the room id as the selected sub-protocol; browsers refuse a
		// handshake that offers sub-protocols and gets none back.
		conn, err := upgrader.Upgrade(w, r, http.Header{"Sec-WebSocket-Protocol": {roomID}})
		if err != nil {
			hub.Logger().Warn("failed to upgrade connection", "error", err)
			return
		}

		client := relay.NewClient(hub, conn, roomID, userID)
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func handshakeErrorText(header string, err error) string {
	if !errors.Is(err, protocol.ErrInvalidHandshakeMetadata) {
		return err.Error()
	}
	if header == "" {
		return "Invalid headers"
	}
	return "Room ID and User ID are required"
}
