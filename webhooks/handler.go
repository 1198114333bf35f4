package webhooks

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/google/uuid"
)

// Handler exposes a Receiver as an http.Handler.
type Handler struct {
	Receiver *Receiver
}

func NewHandler(receiver *Receiver) *Handler {
	return &Handler{Receiver: receiver}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if h == nil || h.Receiver == nil {
		writeResponse(w, errorResponse(http.StatusInternalServerError, errors.New("webhooks: receiver is not configured")))
		return
	}
	ctx := req.Context()
	requestID := strings.TrimSpace(middleware.GetReqID(ctx))
	if requestID == "" {
		requestID = uuid.NewString()
	}

	query := req.URL.Query()
	var body []byte
	if _, handshake := ValidationToken(query); !handshake {
		limit := h.Receiver.maxBodyBytes()
		read, err := io.ReadAll(http.MaxBytesReader(w, req.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeResponse(w, errorResponse(http.StatusRequestEntityTooLarge, core.BadInputError("webhooks: delivery body too large", map[string]any{
					"limit_bytes": limit,
				})))
				return
			}
			writeResponse(w, errorResponse(http.StatusBadRequest, core.BadInputError("webhooks: read delivery body", map[string]any{
				"error": err.Error(),
			})))
			return
		}
		body = read
	}

	writeResponse(w, h.Receiver.Respond(ctx, Request{
		Method:    req.Method,
		Query:     query,
		Body:      body,
		RequestID: requestID,
	}))
}

func writeResponse(w http.ResponseWriter, res Response) {
	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

var _ http.Handler = (*Handler)(nil)
