package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Smart-Charging/scn-node/relay"
	"github.com/Smart-Charging/scn-node/scpi"
)

// MessageHandler receives envelopes relayed by other nodes on behalf of
// their connected platforms.
type MessageHandler struct {
	builder *relay.Builder
}

func NewMessageHandler(builder *relay.Builder) *MessageHandler {
	return &MessageHandler{builder: builder}
}

func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/scn/message", h.postMessage)
}

func (h *MessageHandler) postMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	signature := r.Header.Get("SCN-Signature")
	if signature == "" {
		writeError(w, scpi.ErrInvalidParams("Missing required header: SCN-Signature"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, scpi.ErrInvalidParams("Could not read request body: %v", err))
		return
	}

	received, err := h.builder.ReceiveNodeMessage(body)
	if err != nil {
		writeError(w, err)
		return
	}
	validated, err := received.ValidateNodeMessage(ctx, signature)
	if err != nil {
		writeError(w, err)
		return
	}
	forwarded, err := validated.Forward(ctx, false)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := forwarded.ResponseWithAllHeaders(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, result)
}
