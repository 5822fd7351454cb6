package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

const maxChatBodyBytes = 1 << 20

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cuerpo de la solicitud inválido."})
		return
	}

	resp, err := h.service.Respond(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmptyHistory) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "El historial de la conversación está vacío."})
			return
		}
		h.logger.Error("failed to answer chat turn", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "No pude procesar tu mensaje."})
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
