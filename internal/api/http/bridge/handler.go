package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/service/shell"
)

const (
	// InvokePath is the route template of command invocations.
	InvokePath = "/invoke/{command}"
	// EventsPath is the WebSocket route of the event stream.
	EventsPath = "/events"

	// DefaultWriteTimeout bounds the delivery of one event frame.
	DefaultWriteTimeout = 10 * time.Second

	// maxArgumentsSize caps the request body of an invocation.
	maxArgumentsSize = 1 << 20
)

// Invoker runs a command by name.
type Invoker interface {
	Invoke(ctx context.Context, command string, args json.RawMessage) (any, error)
}

// ErrorResponse is the body of a failed invocation.
type ErrorResponse struct {
	// Error is the message shown to the user.
	Error string `json:"error"`
}

type handler struct {
	// commands runs invocations.
	commands Invoker
	// broker feeds the event stream.
	broker *events.Broker
	// originPatterns are the hosts allowed to open the event stream.
	originPatterns []string
	// writeTimeout bounds each event frame.
	writeTimeout time.Duration
}

// NewHandler builds the bridge routes. allowedOrigins are full origins such as
// http://localhost:5173; "*" allows any origin and an empty list only same-origin
// requests.
func NewHandler(commands Invoker, broker *events.Broker, allowedOrigins []string) http.Handler {
	h := &handler{
		commands:       commands,
		broker:         broker,
		originPatterns: originPatterns(allowedOrigins),
		writeTimeout:   DefaultWriteTimeout,
	}

	router := mux.NewRouter()
	router.HandleFunc(InvokePath, h.invoke).Methods(http.MethodPost)
	router.HandleFunc(EventsPath, h.streamEvents).Methods(http.MethodGet)

	corsOptions := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}

	// rs/cors treats an empty origin list as "allow all".
	if len(allowedOrigins) == 0 {
		corsOptions.AllowOriginFunc = func(string) bool { return false }
	}

	return cors.New(corsOptions).Handler(router)
}

func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	command := mux.Vars(r)["command"]
	ctx := logger.WithKV(r.Context(), "transport", "http")

	args, err := io.ReadAll(io.LimitReader(r.Body, maxArgumentsSize))
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, fmt.Errorf("read arguments: %w", err))
		return
	}

	result, err := h.commands.Invoke(ctx, command, args)
	if err != nil {
		writeError(ctx, w, statusFor(err), err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}

func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithKV(r.Context(), "remote", r.RemoteAddr)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.WarnKV(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, ""); closeErr != nil {
			logger.DebugKV(ctx, "Failed to close WebSocket", "error", closeErr)
		}
	}()

	subscription := h.broker.Subscribe()
	defer subscription.Close()

	ctx = logger.WithKV(ctx, "subscriber", subscription.ID())
	logger.Debug(ctx, "Event stream opened")

	// The client never sends; CloseRead cancels ctx once it disconnects.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Debug(ctx, "Event stream closed")
			return
		case event := <-subscription.Events():
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err = wsjson.Write(writeCtx, conn, event)

			cancel()

			if err != nil {
				logger.WarnKV(ctx, "Could not deliver event", "event", event.Name, "error", err)
				return
			}
		}
	}
}

// statusFor maps command errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shell.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, shell.ErrInvalidArguments):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WarnKV(ctx, "Could not write response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger.WarnKV(ctx, "Command failed", "status", status, "error", err)
	writeJSON(ctx, w, status, ErrorResponse{Error: shell.UserMessage(err)})
}

// originPatterns converts allowed origins to the host patterns of the WebSocket handshake.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))

	for _, origin := range origins {
		if origin == "*" {
			patterns = append(patterns, origin)
			continue
		}

		parsed, err := url.Parse(origin)
		if err != nil || parsed.Host == "" {
			patterns = append(patterns, origin)
			continue
		}

		patterns = append(patterns, parsed.Host)
	}

	return patterns
}
