package transport

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/imtaco/liveroom/internal/log"
)

const viewWriteTimeout = 5 * time.Second

// streamView pushes every view model of the current visit over a websocket
// until the visit ends or the client goes away. Slow clients only ever see
// the latest view.
func (r *Router) streamView(c *gin.Context) {
	coord := visitOf(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: r.cfg.AllowedOrigins,
	})
	if err != nil {
		r.logger.Warn("WebSocket open failed",
			log.String("remote_addr", c.Request.RemoteAddr),
			log.Error(err))
		return
	}
	defer conn.CloseNow()

	// CloseRead discards client frames and cancels ctx once the peer closes.
	ctx := conn.CloseRead(c.Request.Context())

	viewStreams.Add(ctx, 1)
	defer viewStreams.Add(context.Background(), -1)

	views, stop := coord.Watch()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("View stream closed by client", log.String("remote_addr", c.Request.RemoteAddr))
			return
		case vm, ok := <-views:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "visit ended")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, viewWriteTimeout)
			err := wsjson.Write(wctx, conn, vm)
			cancel()
			if err != nil {
				r.logger.Debug("View stream write failed", log.Error(err))
				return
			}
			viewsPushed.Add(ctx, 1)
		}
	}
}
