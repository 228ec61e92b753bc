package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/peercall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the UI is served from the same origin; other local tools may listen too
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient is a UI tab listening to status and log events.
type WSClient struct {
	id   domain.ClientID
	conn *websocket.Conn
}

func (c *WSClient) ID() string {
	return c.id.String()
}

func (c *WSClient) Send(ev ws.Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServeWS streams events to the browser. The UI sends nothing; reads only
// detect the tab going away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   domain.NewClientID(),
		conn: conn,
	}

	l := log.With().Str("client_id", client.ID()).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(client)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
	}
}
