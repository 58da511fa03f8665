package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Origins are restricted by the CORS middleware
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamOrder handles GET /api/v1/orders/:id/stream - upgrades to a
// websocket that receives an event each time the order is written
func (oc *OrderController) StreamOrder(c *gin.Context) {
	id := c.Param("id")
	if _, err := oc.orders.GetOrder(c.Request.Context(), id); err != nil {
		respondWorkflowError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		oc.logger.Warn("Websocket upgrade failed", zap.String("order_id", id), zap.Error(err))
		return
	}
	oc.hub.Serve(id, conn)
}
