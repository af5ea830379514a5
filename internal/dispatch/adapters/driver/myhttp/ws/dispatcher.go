package ws

import (
	"net/http"
	"strings"
	"sync"

	"ride-dispatch/internal/mylogger"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
)

var websocketUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ClientList is a map used to help manage a map of clients
type ClientList map[*Client]bool

// Dispatcher owns the live websocket clients and fans notification payloads
// out to them by user id.
type Dispatcher struct {
	clients ClientList
	sync.RWMutex
	log          mylogger.Logger
	accessSecret string
}

func NewDispatcher(log mylogger.Logger, accessSecret string) *Dispatcher {
	return &Dispatcher{
		clients:      make(ClientList),
		log:          log,
		accessSecret: accessSecret,
	}
}

// WsHandler upgrades /ws/{role}/{user_id}. The token travels in the query
// string because browsers cannot set headers on websocket dials.
func (d *Dispatcher) WsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := d.log.Action("ws_connect")
		role := r.PathValue("role")
		userId := r.PathValue("user_id")

		if userId == "" || (role != "drivers" && role != "customers") {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if err := d.authorize(r, userId); err != nil {
			log.Warn("websocket auth rejected", "user_id", userId)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := websocketUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("cannot upgrade", err)
			return
		}

		client := NewClient(r.Context(), conn, d, userId, role)
		d.AddClient(client)
		log.Info("websocket client connected", "user_id", userId, "role", role)

		go client.ReadMessage()
		go client.WriteMessage()
	}
}

func (d *Dispatcher) authorize(r *http.Request, userId string) error {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		return jwt.ErrSignatureInvalid
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(d.accessSecret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwt.ErrSignatureInvalid
	}
	if id, _ := claims["user_id"].(string); id != userId {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

func (d *Dispatcher) AddClient(client *Client) {
	d.Lock()
	defer d.Unlock()

	d.clients[client] = true
}

func (d *Dispatcher) RemoveClient(client *Client) {
	d.Lock()
	defer d.Unlock()

	delete(d.clients, client)
}

// SendTo delivers msg to every live connection of the listed user ids and
// reports how many frames were queued.
func (d *Dispatcher) SendTo(recipients []string, msg []byte) int {
	want := make(map[string]bool, len(recipients))
	for _, id := range recipients {
		want[id] = true
	}

	d.RLock()
	defer d.RUnlock()

	sent := 0
	for client := range d.clients {
		if want[client.userId] && client.Send(msg) {
			sent++
		}
	}
	return sent
}
