package notification

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/sethvargo/go-retry"
)

const (
	maxClientMessageBytes = 512
	resubscribeAttempts   = 5
)

var errSessionRevoked = errors.New("session revoked")

// TokenVerifier resolves an access token to an active user and the token
// version it carries. CheckSession is asked again on every ping, so a logout
// or deactivation also ends open connections.
type TokenVerifier interface {
	VerifySession(token string) (userID int64, tokenVersion int, err error)
	CheckSession(userID int64, tokenVersion int) error
}

type grant struct {
	userID  int64
	version int
}

type WebsocketConfig struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	AllowedOrigins []string
}

type WebsocketHandler struct {
	*transport.BaseHandler
	hub      *Hub
	verifier TokenVerifier
	upgrader websocket.Upgrader
	cfg      WebsocketConfig
}

func NewWebsocketHandler(hub *Hub, verifier TokenVerifier, cfg WebsocketConfig, lg *slog.Logger) *WebsocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}

	h := &WebsocketHandler{
		BaseHandler: transport.NewBaseHandler(lg),
		hub:         hub,
		verifier:    verifier,
		cfg:         cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebsocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Notifications upgrades the request and streams the caller's notifications
// until either side goes away. The handler goroutine owns the connection.
func (h *WebsocketHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		h.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	userID, version, err := h.verifier.VerifySession(token)
	if err != nil {
		h.Logger.Warn("websocket: token rejected", "error", err)
		h.WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.Logger.Warn("websocket: upgrade failed", "user_id", userID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := logger.FromOr(ctx, h.Logger).With("user_id", userID)
	h.serve(ctx, cancel, conn, grant{userID: userID, version: version}, log)
}

func (h *WebsocketHandler) serve(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, g grant, log *slog.Logger) {
	log.Info("websocket session opened", "remote_addr", conn.RemoteAddr().String())

	readerDone := make(chan struct{})
	go h.readLoop(conn, cancel, readerDone)

	err := h.writeLoop(ctx, conn, g, log)

	cancel()
	_ = conn.Close()
	<-readerDone

	log.Info("websocket session closed", "reason", err)
}

// readLoop only exists to process control frames and notice the peer leaving.
func (h *WebsocketHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()

	pongWait := h.cfg.PingInterval * 2
	conn.SetReadLimit(maxClientMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebsocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, g grant, log *slog.Logger) error {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		stream, err := h.subscribe(ctx, conn, g.userID)
		if err != nil {
			h.closeWith(conn, websocket.CloseTryAgainLater, "notifications unavailable")
			return err
		}

		err = h.pumpStream(ctx, conn, stream, ticker, g, log)
		stream.Close()

		if ctx.Err() != nil {
			h.closeWith(conn, websocket.CloseNormalClosure, "")
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		log.Warn("notification stream ended, re-subscribing", "cause", stream.Err())
	}
}

// subscribe registers conn as a session, retrying while the broker is down.
func (h *WebsocketHandler) subscribe(ctx context.Context, conn *websocket.Conn, userID int64) (*Stream, error) {
	backoff := retry.WithMaxRetries(resubscribeAttempts, retry.NewExponential(200*time.Millisecond))
	backoff = retry.WithCappedDuration(5*time.Second, backoff)

	var stream *Stream
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := h.hub.RegisterSession(ctx, userID, conn)
		if err != nil {
			if errors.Is(err, ErrHubClosed) {
				return err
			}
			return retry.RetryableError(err)
		}
		stream, err = h.hub.Stream(ctx, id)
		if err != nil {
			h.hub.UnregisterSession(id)
			return retry.RetryableError(err)
		}
		return nil
	})
	return stream, err
}

// pumpStream writes events until the stream ends (nil) or the connection
// fails or the grant is revoked (error).
func (h *WebsocketHandler) pumpStream(ctx context.Context, conn *websocket.Conn, stream *Stream, ticker *time.Ticker, g grant, log *slog.Logger) error {
	for {
		select {
		case ev := <-stream.C():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteJSON(ev.Message()); err != nil {
				return err
			}
		case <-ticker.C:
			if err := h.stillGranted(g, log); err != nil {
				h.closeWith(conn, websocket.ClosePolicyViolation, err.Error())
				return err
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				return err
			}
		case <-stream.Done():
			if errors.Is(stream.Err(), ErrHubClosed) {
				h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
				return stream.Err()
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// stillGranted keeps the session through storage hiccups and ends it on
// anything else.
func (h *WebsocketHandler) stillGranted(g grant, log *slog.Logger) error {
	err := h.verifier.CheckSession(g.userID, g.version)
	if err == nil {
		return nil
	}
	var appErr *internal.AppError
	if errors.As(err, &appErr) && appErr.Type == internal.ErrorTypeInternal {
		log.Warn("websocket: session check failed, keeping session", "error", err)
		return nil
	}
	log.Info("websocket: session no longer valid", "error", err)
	return errSessionRevoked
}

func (h *WebsocketHandler) closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteWait))
}
