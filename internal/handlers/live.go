package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"ideabox/internal/models"
	"ideabox/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发 pong 和关闭帧
	maxMessageSize = 512
)

// liveMessage is one frame pushed to a subscriber.
type liveMessage struct {
	IdeaID uint `json:"ideaId"`
	models.VoteTotals
}

// LiveHandler streams vote totals of one idea over a websocket.
type LiveHandler struct {
	votes    *services.VoteService
	broker   *services.AggregateBroker
	upgrader websocket.Upgrader
}

// NewLiveHandler accepts handshakes from the given origins. An empty list or "*"
// accepts any origin.
func NewLiveHandler(votes *services.VoteService, broker *services.AggregateBroker, origins []string) *LiveHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &LiveHandler{
		votes:  votes,
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
	}
}

type liveClient struct {
	ideaID uint
	conn   *websocket.Conn
}

// Stream GET /api/ideas/:id/votes/live. The current totals are sent right after
// the upgrade, then every change published by the broker.
func (h *LiveHandler) Stream(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	// 先订阅再读当前值, 中间的变更不会丢
	updates, cancel := h.broker.Subscribe(id)
	agg, err := h.votes.Aggregate(c.Request.Context(), id, nil)
	if err != nil {
		cancel()
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		log.Printf("websocket upgrade for idea %d failed: %v", id, err)
		return
	}

	client := &liveClient{ideaID: id, conn: conn}
	go client.writePump(agg.VoteTotals, updates)
	go client.readPump(cancel)
}

// readPump only watches for pongs and the close frame. It ends the subscription,
// which in turn stops writePump.
func (cl *liveClient) readPump(cancel func()) {
	defer func() {
		cancel()
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read for idea %d: %v", cl.ideaID, err)
			}
			return
		}
	}
}

func (cl *liveClient) writePump(initial models.VoteTotals, updates <-chan models.VoteTotals) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	if err := cl.write(initial); err != nil {
		return
	}
	for {
		select {
		case totals, ok := <-updates:
			if !ok {
				// 订阅已取消
				cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.write(totals); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (cl *liveClient) write(totals models.VoteTotals) error {
	data, err := json.Marshal(liveMessage{IdeaID: cl.ideaID, VoteTotals: totals})
	if err != nil {
		return err
	}
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(websocket.TextMessage, data)
}
