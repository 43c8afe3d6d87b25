package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/jpalmerr/pendingtx/pending"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxRequestBody caps the size of a POSTed booking.
	maxRequestBody = 64 << 10

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Pending bookings"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// PendingStore is the part of [pending.Store] the server uses.
type PendingStore interface {
	GetAll() []pending.Booking
	Add(ctx context.Context, booking pending.Booking) error
	Remove(ctx context.Context, txID string) error
	Clear(ctx context.Context) error
	Subscribe(fn func([]pending.Booking)) (unsubscribe func())
}

// ErrorResponse is the JSON body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server handles HTTP requests for the dashboard and the pending bookings API.
//
// Routes:
//   - GET /: Serves the embedded dashboard HTML (when assets are set)
//   - GET /api/pending: Returns the pending list as JSON
//   - POST /api/pending: Adds a booking
//   - DELETE /api/pending/:txId: Removes a booking
//   - DELETE /api/pending: Clears the list
//   - GET /api/sse: Server-Sent Events stream of the list
type Server struct {
	store      PendingStore
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the pending bookings
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "Pending bookings" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st PendingStore, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
}

// Handler returns the router serving every route of the server.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/api/pending", s.handleList)
	router.POST("/api/pending", s.handleAdd)
	router.DELETE("/api/pending", s.handleClear)
	router.DELETE("/api/pending/:txId", s.handleRemove)
	router.GET("/api/sse", s.handleSSE)

	if s.assets != nil {
		router.GET("/", s.handleDashboard)
	}

	return router
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// escape the title, it comes from configuration
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleList returns the pending list as JSON.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

// handleAdd decodes, validates and adds a booking.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var booking pending.Booking
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&booking); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if booking.Status == "" {
		booking.Status = pending.StatusPending
	}
	if err := validateBooking(booking); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.store.Add(r.Context(), booking); err != nil {
		s.writeStoreError(w, "add", err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, booking)
}

// validateBooking checks a booking submitted over HTTP. On top of
// [pending.Booking.Validate], a stay must end after it starts when both
// dates are given.
func validateBooking(b pending.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.CheckIn != 0 && b.CheckOut != 0 && b.CheckOut <= b.CheckIn {
		return errors.New("invalid booking: checkOut must be after checkIn")
	}
	return nil
}

// handleRemove drops the booking named in the path.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.store.Remove(r.Context(), ps.ByName("txId")); err != nil {
		s.writeStoreError(w, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClear empties the list.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeStoreError(w, "clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, operation string, err error) {
	s.logger.Error("pending bookings operation failed", "operation", operation, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "status", status, "error", err)
	}
}

// handleSSE streams the pending list via Server-Sent Events.
//
// Every message carries the whole list. The store listener only keeps the
// latest unsent list, so a slow client skips intermediate states but never
// blocks the store and always ends on the current list.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes one event under a deadline so a stuck client
	// cannot keep the handler from noticing shutdown.
	writeAndFlush := func(list []pending.Booking) error {
		data, err := json.Marshal(list)
		if err != nil {
			return err
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	updates := make(chan []pending.Booking, 1)
	unsubscribe := s.store.Subscribe(func(list []pending.Booking) {
		for {
			select {
			case updates <- list:
				return
			default:
			}
			// drop the unsent list in favour of the newer one
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := writeAndFlush(s.store.GetAll()); err != nil {
		return
	}

	for {
		select {
		case list := <-updates:
			if err := writeAndFlush(list); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}
