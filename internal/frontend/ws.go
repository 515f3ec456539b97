package frontend

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coalmine/sluice/internal/queue"
	"github.com/coalmine/sluice/pkg/log"
)

// upgrader enforces a same-origin WebSocket policy: accept only requests
// without an Origin header, or whose Origin matches Host.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

const defaultWaitTimeout = 30 * time.Second

// handleWebSocket upgrades the connection and serves wsClientFrame/
// wsServerFrame traffic for the lifetime of the socket. Each connection
// gets an opaque uuid for log correlation, and tracks which item ids it is
// currently holding open so it can close them the moment the socket goes
// away instead of waiting for the sweep to time them out.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sessionID := uuid.New()
	logger := s.logger.With(log.Str("session", sessionID.String()))
	logger.Info("websocket connected")

	held := make(map[uint64]struct{})
	defer func() {
		_ = conn.Close()
		s.releaseHeld(logger, held)
		logger.Info("websocket disconnected")
	}()

	conn.SetCloseHandler(func(code int, text string) error { return nil })

	for {
		var frame wsClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "wait":
			s.serveWait(r.Context(), conn, logger, frame, held)
		case "confirm":
			s.serveWSPopClose(conn, logger, frame.ID, true, held)
		case "return":
			s.serveWSPopClose(conn, logger, frame.ID, false, held)
		default:
			_ = conn.WriteJSON(wsServerFrame{Type: "error"})
		}
	}
}

// releaseHeld closes out every reservation a disconnected connection was
// still holding, on the Loop goroutine. This is the WebSocket path's
// answer to internal/queue.InputStream's drop-safety note: the connection
// itself knows the instant its caller walked away, so it doesn't need to
// wait for the periodic sweep to notice.
func (s *Server) releaseHeld(logger log.Logger, held map[uint64]struct{}) {
	if len(held) == 0 {
		return
	}
	var streams []*queue.InputStream
	for id := range held {
		if in, ok := s.takeReservation(id); ok {
			streams = append(streams, in)
		}
	}
	if len(streams) == 0 {
		return
	}
	err := s.loop.Do(context.Background(), func(q *queue.Queue) {
		for _, in := range streams {
			if err := in.Close(false); err != nil {
				logger.Warn("close abandoned reservation failed", log.Err(err), log.F("id", in.ID()))
			}
		}
	})
	if err != nil {
		logger.Warn("release held reservations: loop unavailable", log.Err(err))
	}
}

// serveWait registers a Queue.Wait callback tagged with the waiter id the
// queue itself allocated for it, for log ordering, and pushes the
// resulting item (or a timeout frame) to the client the moment the wait
// resolves, instead of polling for new items on a ticker.
func (s *Server) serveWait(ctx context.Context, conn *websocket.Conn, logger log.Logger, frame wsClientFrame, held map[uint64]struct{}) {
	timeout := defaultWaitTimeout
	if frame.WaitMS > 0 {
		timeout = time.Duration(frame.WaitMS) * time.Millisecond
	}

	resultCh := make(chan wsServerFrame, 1)
	err := s.loop.Do(ctx, func(q *queue.Queue) {
		waitID := q.Wait(timeout, func(err error) {
			// Wait's callback may fire synchronously, on this same loop
			// goroutine, when an item is already available at registration
			// time (Queue.Wait's immediate-wakeup path). Dispatching the
			// follow-up Do from right here would deadlock: the loop
			// goroutine would be blocked waiting on itself to dequeue the
			// next command. Hop onto a fresh goroutine so the outer Do can
			// return and free up the loop first.
			go func() {
				_ = s.loop.Do(context.Background(), func(q *queue.Queue) {
					resultCh <- s.popForWait(q, err)
				})
			}()
		})
		logger.Info("wait registered", log.Str("wait_id", waitID.String()))
	})
	if err != nil {
		return
	}

	select {
	case out := <-resultCh:
		if out.Type == "item" {
			held[out.ID] = struct{}{}
		}
		if writeErr := conn.WriteJSON(out); writeErr != nil {
			logger.Warn("websocket write failed", log.Err(writeErr))
		}
	case <-ctx.Done():
	}
}

// popForWait runs on the loop goroutine once a wait wakeup fires: it
// attempts PopOpen and drains the item, or reports a timeout.
func (s *Server) popForWait(q *queue.Queue, waitErr error) wsServerFrame {
	if waitErr != nil {
		return wsServerFrame{Type: "timeout"}
	}
	in := queue.NewInputStream(q)
	if err := in.Open(); err != nil {
		return wsServerFrame{Type: "timeout"}
	}
	payload, err := readAll(in)
	if err != nil {
		_ = in.Close(false)
		return wsServerFrame{Type: "timeout"}
	}
	s.trackReservation(in)
	return wsServerFrame{Type: "item", ID: in.ID(), Payload: payload}
}

func (s *Server) serveWSPopClose(conn *websocket.Conn, logger log.Logger, id uint64, remove bool, held map[uint64]struct{}) {
	delete(held, id)
	in, ok := s.takeReservation(id)
	if !ok {
		return
	}
	err := s.loop.Do(context.Background(), func(q *queue.Queue) {
		if err := in.Close(remove); err != nil {
			logger.Warn("close reservation failed", log.Err(err), log.F("id", id))
		}
	})
	if err != nil {
		logger.Warn("pop close failed", log.Err(err))
	}
}
