package frontend

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coalmine/sluice/internal/queue"
	"github.com/coalmine/sluice/pkg/log"
)

// wireChunkSize bounds how large a single queue.OutputStream.Write call
// gets when a pushed payload exceeds the queue's inline threshold. It has
// no bearing on wire framing — every HTTP/WebSocket request still carries
// one whole payload — only on how that payload is split across the
// chunk-streaming subprotocol in internal/queue.
const wireChunkSize = 32 << 10

// reservation is an open InputStream this Server is holding on a caller's
// behalf, plus when it was opened. openedAt lets the sweep in
// sweepExpiredReservations find reservations a caller walked away from
// without confirming or returning — the drop-safety behavior
// internal/queue.InputStream's own doc says it cannot provide itself,
// since that requires running Close on the Queue's owning goroutine.
type reservation struct {
	in       *queue.InputStream
	openedAt time.Time
}

// Server exposes a Queue over HTTP and WebSocket: it owns a net.Listener
// and an *http.Server and shuts down cleanly when its context is cancelled.
type Server struct {
	loop   *Loop
	logger log.Logger
	name   string

	srv *http.Server
	lis net.Listener

	mu             sync.Mutex
	reservations   map[uint64]*reservation
	reservationTTL time.Duration
}

// Options configures a Server.
type Options struct {
	QueueName      string
	RateLimitRPS   float64
	RateLimitBurst int
	// ReservationTTL bounds how long an opened-but-unconfirmed item may sit
	// before sweepExpiredReservations returns it to the queue on the
	// caller's behalf. Zero means defaultReservationTTL.
	ReservationTTL time.Duration
}

const defaultReservationTTL = 5 * time.Minute

// New builds a Server around q. ListenAndServe starts the Server's Loop
// (Loop.Run) on its own goroutine before serving requests.
func New(q *queue.Queue, logger log.Logger, opts Options) *Server {
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 200
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 400
	}
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = defaultReservationTTL
	}
	s := &Server{
		loop:           NewLoop(q),
		logger:         logger,
		name:           opts.QueueName,
		reservations:   make(map[uint64]*reservation),
		reservationTTL: opts.ReservationTTL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/items", s.handlePush)
	mux.HandleFunc("/v1/items/next", s.handlePopOpen)
	mux.HandleFunc("/v1/items/confirm", s.handlePopClose(true))
	mux.HandleFunc("/v1/items/return", s.handlePopClose(false))
	mux.HandleFunc("/v1/ws", s.handleWebSocket)

	handler := chain(mux,
		corsMiddleware,
		loggingMiddleware(logger),
		rateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst),
	)
	s.srv = &http.Server{Handler: handler}
	return s
}

// trackReservation records an opened InputStream so a later confirm/return
// (or the sweep, if neither ever arrives) can find it by item id.
func (s *Server) trackReservation(in *queue.InputStream) {
	s.mu.Lock()
	s.reservations[in.ID()] = &reservation{in: in, openedAt: time.Now()}
	s.mu.Unlock()
}

// takeReservation removes and returns the tracked stream for id, if any.
func (s *Server) takeReservation(id uint64) (*queue.InputStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, false
	}
	delete(s.reservations, id)
	return r.in, true
}

// sweepReservationsPeriodically closes out abandoned reservations on the
// Loop goroutine until ctx is cancelled. It is the caller-side half of
// InputStream's drop-safety contract: neither plain HTTP request/response
// nor a closed WebSocket always gives this package a clean signal that a
// consumer walked away mid-reservation, so this sweep is the backstop.
func (s *Server) sweepReservationsPeriodically(ctx context.Context) {
	interval := s.reservationTTL / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredReservations(ctx)
		}
	}
}

func (s *Server) sweepExpiredReservations(ctx context.Context) {
	cutoff := time.Now().Add(-s.reservationTTL)
	s.mu.Lock()
	var expired []*queue.InputStream
	for id, r := range s.reservations {
		if r.openedAt.Before(cutoff) {
			expired = append(expired, r.in)
			delete(s.reservations, id)
		}
	}
	s.mu.Unlock()
	if len(expired) == 0 {
		return
	}

	err := s.loop.Do(ctx, func(q *queue.Queue) {
		for _, in := range expired {
			if err := in.Close(false); err != nil {
				s.logger.Warn("sweep: close abandoned reservation failed",
					log.Err(err), log.F("id", in.ID()))
			}
		}
	})
	if err != nil {
		s.logger.Warn("sweep: loop unavailable", log.Err(err))
	}
}

// ListenAndServe runs the loop goroutine and serves addr until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	go s.loop.Run(loopCtx)
	go s.sweepReservationsPeriodically(loopCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close closes the listener without waiting for ctx cancellation.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrEmpty):
		return http.StatusNoContent
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		s.handleStatsJSON(w, r)
		return
	}
	var buf writerBuffer
	err := s.loop.Do(r.Context(), func(q *queue.Queue) {
		_ = q.WriteStats(s.name, &buf)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(buf.Bytes())
}

// handleStatsJSON serves GET /v1/stats?format=json for callers that would
// rather parse structured fields than the STAT line protocol.
func (s *Server) handleStatsJSON(w http.ResponseWriter, r *http.Request) {
	var st queue.Stats
	err := s.loop.Do(r.Context(), func(q *queue.Queue) {
		st = q.Stats()
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Name:        s.name,
		Items:       st.Items,
		OpenCount:   st.OpenTransactions,
		Returned:    st.Returned,
		ChunksLive:  st.ChunksLive,
		JournalPath: st.JournalPath,
	})
}

// writerBuffer is the minimal io.Writer queue.Queue.WriteStats needs; kept
// local so this package doesn't pull in bytes.Buffer just for one call site.
type writerBuffer struct {
	data []byte
}

func (b *writerBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
func (b *writerBuffer) Bytes() []byte { return b.data }

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req pushRequest
	if err := unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var itemID uint64
	var pushErr error
	err = s.loop.Do(r.Context(), func(q *queue.Queue) {
		itemID, pushErr = s.pushPayload(q, req.Payload)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if pushErr != nil {
		// Logged with the raw payload so operators can replay a failed push;
		// pkg/log.WithRedactedFields masks it by default since it may carry
		// caller-sensitive data.
		s.logger.Error("push failed",
			log.Err(pushErr),
			log.F("payload", req.Payload),
		)
		writeError(w, statusFor(pushErr), pushErr)
		return
	}
	writeJSON(w, http.StatusCreated, pushResponse{ID: itemID})
}

// pushPayload writes payload through OutputStream, which picks the inline
// or chunked path itself based on the queue's configured threshold. The
// loop condition runs once even for an empty payload (off < len(payload)
// is false from the start) so a zero-length item still gets one empty
// chunk written and pushed inline, rather than being pushed as a
// zero-chunk header.
func (s *Server) pushPayload(q *queue.Queue, payload []byte) (uint64, error) {
	out := queue.NewOutputStream(q)
	if err := out.Open(); err != nil {
		return 0, err
	}
	for off := 0; off < len(payload) || len(payload) == 0; off += wireChunkSize {
		end := off + wireChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := out.Write(payload[off:end]); err != nil {
			_ = out.Abort()
			return 0, err
		}
		if len(payload) == 0 {
			break
		}
	}
	return out.Close()
}

func (s *Server) handlePopOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var itemID uint64
	var payload []byte
	var opErr error
	err := s.loop.Do(r.Context(), func(q *queue.Queue) {
		in := queue.NewInputStream(q)
		if err := in.Open(); err != nil {
			opErr = err
			return
		}
		payload, opErr = readAll(in)
		if opErr != nil {
			_ = in.Close(false)
			return
		}
		itemID = in.ID()
		s.trackReservation(in)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if opErr != nil {
		if errors.Is(opErr, queue.ErrEmpty) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, statusFor(opErr), opErr)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{ID: itemID, Payload: payload})
}

func readAll(in *queue.InputStream) ([]byte, error) {
	var out []byte
	for {
		chunk, err := in.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

func (s *Server) handlePopClose(remove bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var req itemResponse
		if err := unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var opErr error
		err = s.loop.Do(r.Context(), func(q *queue.Queue) {
			in, ok := s.takeReservation(req.ID)
			if !ok {
				opErr = errors.New("frontend: no open reservation for id")
				return
			}
			opErr = in.Close(remove)
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if opErr != nil {
			writeError(w, http.StatusNotFound, opErr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
