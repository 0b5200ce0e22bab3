package webhooks

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-commercebot/core"
)

const maxRequestBodyBytes int64 = 1 << 20 // 1 MiB

// Server exposes the webhook endpoint the transport posts updates to.
// The bot token is the path secret: only POST /webhook/<token> is
// served, everything else is a 404. The transport always gets a 200 once
// a well-formed request is handed to the processor; processing failures
// are logged and retried through the ledger, never bounced back as
// webhook errors.
type Server struct {
	token     string
	processor *Processor
	logger    core.Logger
}

// NewServer builds a Server from the shared bot token and processor.
func NewServer(token string, processor *Processor, logger core.Logger) (*Server, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, core.ConfigMissingError{Field: "bot_token"}
	}
	if processor == nil {
		return nil, core.ConfigMissingError{Field: "webhooks.processor"}
	}
	return &Server{token: token, processor: processor, logger: logger}, nil
}

// Path returns the webhook path registered with the transport.
func (s *Server) Path() string {
	return "/webhook/" + s.token
}

// Handler returns the http handler serving the webhook endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{token}", s.handleWebhook)
	return mux
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.processor.Process(r.Context(), body); err != nil {
		s.logError(r, "webhook processing failed", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) logError(r *http.Request, message string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.WithContext(r.Context()).Error(message, "error", err)
}
