package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ymliu/convo/internal/config"
	"github.com/ymliu/convo/internal/hub"
	"github.com/ymliu/convo/internal/session"
	"github.com/ymliu/convo/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and hands them to a session.
type WSHandler struct {
	deps  session.Deps
	wsCfg config.WebSocketConfig
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(deps session.Deps, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		deps:  deps,
		wsCfg: wsCfg,
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:room_id", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and runs the connection session to
// completion. The room id comes from the path, the credential from the
// token query parameter. Authentication happens after the upgrade so the
// rejection arrives as a policy-violation close frame.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("room_id"), 10, 32)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	credential := c.Query("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), conn, h.wsCfg)
	client.StartReadDeadlines()
	go client.WritePump()

	ctx := log.WithLogger(c.Request.Context(),
		log.Ctx(c.Request.Context()).With().
			Str(log.FieldConnID, client.ID).
			Uint(log.FieldRoomID, uint(roomID)).
			Logger())

	sess := session.New(uint(roomID), client, h.deps)
	sess.Run(ctx, credential)
}
