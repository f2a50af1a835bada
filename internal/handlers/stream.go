package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const writeWait = 10 * time.Second

// StreamHandler streams run progress over a websocket.
type StreamHandler struct {
	history *services.HistoryService
	events  *services.EventHub
}

func NewStreamHandler(history *services.HistoryService, events *services.EventHub) *StreamHandler {
	return &StreamHandler{history: history, events: events}
}

// Stream sends JSON events until the run completes. A finished run gets a
// single done event carrying its final status.
// GET /api/runs/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before reading the status so the done event cannot be missed.
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id, ch)

	run, err := h.history.GetRun(id)
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[API] Websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	// Drain client frames so close messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if run.Status != models.StatusRunning {
		h.send(ws, models.Event{RunID: id, Stage: "done", Message: string(run.Status), Done: true, Time: time.Now()})
		h.close(ws)
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				h.close(ws)
				return
			}
			if err := h.send(ws, ev); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *StreamHandler) send(ws *websocket.Conn, ev models.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(ev); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Printf("[API] Websocket write failed: %v", err)
		}
		return err
	}
	return nil
}

func (h *StreamHandler) close(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
