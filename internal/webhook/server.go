package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/marzbot/marzbot/internal/metrics"
	"github.com/rs/zerolog/log"
)

const secretHeader = "X-Webhook-Secret"

// maxBodyBytes caps inbound payloads; panel notifications are small.
const maxBodyBytes = 1 << 20

// Server is the HTTP ingress for panel-pushed events.
type Server struct {
	secret string
	queue  *Queue
}

// NewServer creates the ingress over the given queue.
func NewServer(secret string, queue *Queue) *Server {
	return &Server{secret: secret, queue: queue}
}

// Handler returns the ingress HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	return mux
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(s.secret)) != 1 {
		metrics.RecordWebhookEvent("rejected")
		log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook received with invalid secret")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordWebhookEvent("rejected")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var payload struct {
		Action string          `json:"action"`
		User   json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Action == "" {
		metrics.RecordWebhookEvent("rejected")
		log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook received with malformed payload")
		http.Error(w, "Bad Request: expected a JSON object with an action", http.StatusBadRequest)
		return
	}

	event := Event{
		ID:     uuid.NewString(),
		Action: payload.Action,
		User:   payload.User,
	}
	s.queue.Push(event)

	metrics.RecordWebhookEvent("accepted")
	log.Info().Str("eventID", event.ID).Str("action", event.Action).Msg("Enqueued webhook event")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}
