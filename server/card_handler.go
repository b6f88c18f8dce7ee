package server

import (
	"net/http"

	"github.com/earchibald/yoto-smart-stream-sub004/core/yoto"
	"github.com/earchibald/yoto-smart-stream-sub004/logger"

	"github.com/gorilla/mux"
)

// GetCardsHandler lists the content cards in the linked Yoto account.
func (h *APIHandler) GetCardsHandler(w http.ResponseWriter, r *http.Request) {
	cards, err := h.catalog.Cards(r.Context())
	if err != nil {
		logger.Error("failed to list cards", logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "Failed to fetch card library")
		return
	}
	if cards == nil {
		cards = []yoto.Card{}
	}
	respondJSON(w, http.StatusOK, cards)
}

// GetCardHandler resolves one card ID to its metadata. Player status carries
// the active card as a bare ID; the dashboard uses this to show its title.
func (h *APIHandler) GetCardHandler(w http.ResponseWriter, r *http.Request) {
	cardID := mux.Vars(r)["id"]
	if cardID == "" {
		respondError(w, http.StatusBadRequest, "Card ID is required")
		return
	}

	card, err := h.catalog.Card(r.Context(), cardID)
	if err != nil {
		logger.Warn("failed to fetch card", logger.ErrorField(err), logger.String("card", cardID))
		respondError(w, http.StatusBadGateway, "Failed to fetch card")
		return
	}
	respondJSON(w, http.StatusOK, card)
}
