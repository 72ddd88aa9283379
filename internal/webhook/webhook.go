// Package webhook serves the single HTTP ingress endpoint that validates,
// parses, and hands off platform updates. It knows nothing
// about access control, command routing, or the message queue; those live
// behind the Handler it is given.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/graydnsapconet/tgbot/internal/types"
	"github.com/graydnsapconet/tgbot/pkg/lifecycle"
)

// MaxBodyBytes bounds an accepted webhook request body; anything larger is
// answered with 413 after the body is drained.
const MaxBodyBytes = 512 * 1024

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// jsonContentTypePrefix is matched case-insensitively against the first 16
// bytes of the Content-Type header.
const jsonContentTypePrefix = "application/json"

// Update is a parsed inbound platform message, handed to the Handler once
// per successfully decoded request body.
type Update struct {
	Sender types.SenderID
	Chat   types.ChatID
	Text   string
}

// Handler processes one parsed Update. It is invoked synchronously from the
// request goroutine, inside the server's internal concurrency ceiling.
type Handler interface {
	HandleUpdate(u Update)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(u Update)

// HandleUpdate implements Handler.
func (f HandlerFunc) HandleUpdate(u Update) { f(u) }

// Config configures a Server.
type Config struct {
	Addr    string
	Secret  string
	Pool    int // buffer pool size, clamped to [1,64]
	Threads int // max concurrent in-flight handlers, clamped to [1,32]
}

func (c Config) poolSize() int {
	return clamp(c.Pool, 1, 64)
}

func (c Config) threads() int {
	return clamp(c.Threads, 1, 32)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wireUpdate mirrors the small slice of the Telegram Bot API update payload
// this relay understands. Unrecognized fields are ignored by json.Unmarshal.
type wireUpdate struct {
	Message *struct {
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Server is the webhook ingress. It exposes exactly one route, POST
// /webhook; every other path and method 404s.
type Server struct {
	cfg     Config
	handler Handler
	log     *zap.Logger

	bufs *bufferPool
	sem  chan struct{}

	router *httprouter.Router
	http   *http.Server
	life   *lifecycle.Once
}

// New builds a Server. handler must be non-nil.
func New(cfg Config, handler Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		bufs:    newBufferPool(cfg.poolSize()),
		sem:     make(chan struct{}, cfg.threads()),
		life:    lifecycle.NewOnce(),
	}

	router := httprouter.New()
	// A wrong method on /webhook is a 404 like any other non-match, not a 405.
	router.HandleMethodNotAllowed = false
	router.HandleOPTIONS = false
	// Near-miss paths (/webhook/, /WEBHOOK) 404 too instead of redirecting.
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.POST("/webhook", s.handleWebhook)
	s.router = router
	return s
}

// Handler exposes the underlying router for tests and for embedding behind
// a shared listener; production callers should use Start/Stop.
func (s *Server) Handler() http.Handler {
	return s.router
}

// State reports the server's current lifecycle state, for startup/shutdown
// logging.
func (s *Server) State() lifecycle.State {
	return s.life.State()
}

// Start begins serving in a background goroutine. Idempotent.
func (s *Server) Start() error {
	return s.life.Start(func() error {
		s.http = &http.Server{
			Addr:    s.cfg.Addr,
			Handler: s.router,
		}
		go func() {
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("webhook server exited", zap.Error(err))
			}
		}()
		return nil
	})
}

// Stop gracefully shuts the HTTP server down, waiting for in-flight
// requests to finish. Idempotent.
func (s *Server) Stop(ctx context.Context) error {
	return s.life.Stop(func() error {
		if s.http == nil {
			return nil
		}
		return s.http.Shutdown(ctx)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-r.Context().Done():
		return
	}

	if !s.secretMatches(r) {
		io.Copy(io.Discard, io.LimitReader(r.Body, MaxBodyBytes)) //nolint:errcheck
		w.WriteHeader(http.StatusForbidden)
		return
	}

	ct := r.Header.Get("Content-Type")
	if len(ct) < len(jsonContentTypePrefix) || !strings.EqualFold(ct[:len(jsonContentTypePrefix)], jsonContentTypePrefix) {
		io.Copy(io.Discard, io.LimitReader(r.Body, MaxBodyBytes)) //nolint:errcheck
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	buf := s.bufs.get()
	defer s.bufs.put(buf)

	limited := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	n, err := buf.ReadFrom(limited)
	if err != nil {
		// The body exceeded MaxBodyBytes or the connection failed. Drain
		// whatever remains so the client sees a clean response instead of
		// a reset connection, then report the size violation.
		io.Copy(io.Discard, r.Body) //nolint:errcheck
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	var wu wireUpdate
	if jsonErr := json.Unmarshal(buf.Bytes()[:n], &wu); jsonErr != nil || wu.Message == nil {
		// Malformed or structurally uninteresting payloads are dropped
		// silently; the platform still expects a 200 delivery ack.
		s.respondOK(w)
		return
	}

	s.handler.HandleUpdate(Update{
		Sender: types.SenderID(wu.Message.From.ID),
		Chat:   types.ChatID(wu.Message.Chat.ID),
		Text:   wu.Message.Text,
	})

	s.respondOK(w)
}

func (s *Server) respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (s *Server) secretMatches(r *http.Request) bool {
	if s.cfg.Secret == "" {
		return true
	}
	return constantTimeEqual(r.Header.Get(secretHeader), s.cfg.Secret)
}

// constantTimeEqual reports whether a and b are equal, doing the same
// amount of work (up to max(len(a),len(b))+1 byte comparisons) whether
// or not the lengths match and regardless of where the first difference
// falls. subtle.ConstantTimeCompare alone isn't enough here: it
// short-circuits on a length mismatch before comparing any bytes.
func constantTimeEqual(a, b string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	n++

	var diff byte
	for i := 0; i < n; i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		diff |= ca ^ cb
	}
	lenEq := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	return lenEq&subtle.ConstantTimeByteEq(diff, 0) == 1
}
