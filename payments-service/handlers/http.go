package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/draftea/travel-booking/payments-service/application"
	"github.com/draftea/travel-booking/payments-service/domain"
	"github.com/draftea/travel-booking/shared/server"
)

// PaymentHandlers handles HTTP requests for payments and wallets
type PaymentHandlers struct {
	getPayment   *application.GetPayment
	getWallet    *application.GetWallet
	depositFunds *application.DepositFunds
}

// NewPaymentHandlers creates new payment handlers
func NewPaymentHandlers(
	getPayment *application.GetPayment,
	getWallet *application.GetWallet,
	depositFunds *application.DepositFunds,
) *PaymentHandlers {
	return &PaymentHandlers{
		getPayment:   getPayment,
		getWallet:    getWallet,
		depositFunds: depositFunds,
	}
}

// GetPayment returns the payment of a booking
func (h *PaymentHandlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	response, err := h.getPayment.Execute(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		writeError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// GetWallet returns the wallet of a user
func (h *PaymentHandlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	response, err := h.getWallet.Execute(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, response)
}

// DepositFunds credits a user's wallet
func (h *PaymentHandlers) DepositFunds(w http.ResponseWriter, r *http.Request) {
	var cmd application.DepositFundsCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		server.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cmd.UserID = chi.URLParam(r, "userId")

	response, err := h.depositFunds.Execute(r.Context(), &cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	server.WriteJSON(w, http.StatusCreated, response)
}

func writeError(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case domain.ErrPaymentNotFound, domain.ErrWalletNotFound:
		server.WriteError(w, http.StatusNotFound, err.Error())
	case application.ErrInvalidCommand:
		server.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		server.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// RegisterRoutes registers payment and wallet routes
func (h *PaymentHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/payments/{bookingId}", h.GetPayment)
	r.Get("/api/v1/wallets/{userId}", h.GetWallet)
	r.Post("/api/v1/wallets/{userId}/deposits", h.DepositFunds)
}
