package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/services"
)

const maxBodyBytes = 1_048_576 // 1 MB

type WalletHandler struct {
	wallet    *services.WalletService
	validator *validator.Validate
}

func NewWalletHandler(wallet *services.WalletService) *WalletHandler {
	return &WalletHandler{
		wallet:    wallet,
		validator: validator.New(),
	}
}

type DepositRequest struct {
	UserID        int64           `json:"userId" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId" validate:"required"`
}

type DepositResponse struct {
	Message       string           `json:"message"`
	UserID        int64            `json:"userId"`
	Amount        decimal.Decimal  `json:"amount"`
	TransactionID string           `json:"transactionId"`
	NewBalance    *decimal.Decimal `json:"newBalance,omitempty"`
}

type PaymentRequest struct {
	UserID    int64           `json:"userId" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	PaymentID string          `json:"paymentId" validate:"required"`
}

type PaymentResponse struct {
	Message    string           `json:"message"`
	UserID     int64            `json:"userId"`
	Amount     decimal.Decimal  `json:"amount"`
	PaymentID  string           `json:"paymentId"`
	NewBalance *decimal.Decimal `json:"newBalance,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

// Deposit credits a user's balance
// @Summary Deposit funds
// @Description Credit a user's balance. The account is created on first deposit. Repeating a transactionId is a no-op that echoes the original operation.
// @Tags deposits
// @Accept json
// @Produce json
// @Param deposit body DepositRequest true "Deposit data"
// @Success 201 {object} DepositResponse
// @Success 200 {object} DepositResponse "Idempotent replay"
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /deposits [post]
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		writeValidationError(w, "Invalid request. userId, amount (positive), and transactionId are required", err)
		return
	}
	if !req.Amount.IsPositive() || strings.TrimSpace(req.TransactionID) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request. userId, amount (positive), and transactionId are required")
		return
	}

	result, err := h.wallet.Deposit(r.Context(), req.UserID, req.Amount, req.TransactionID)
	if err != nil {
		log.Printf("[DEPOSIT] failed for user %d, key %s: %v", req.UserID, req.TransactionID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch result.Outcome {
	case services.OutcomeApplied:
		writeJSON(w, http.StatusCreated, DepositResponse{
			Message:       "Deposit successful",
			UserID:        result.UserID,
			Amount:        result.Amount,
			TransactionID: req.TransactionID,
			NewBalance:    &result.NewBalance,
		})
	case services.OutcomeAlreadyProcessed:
		writeJSON(w, http.StatusOK, DepositResponse{
			Message:       "Transaction already processed",
			UserID:        result.UserID,
			Amount:        result.Amount,
			TransactionID: req.TransactionID,
		})
	default:
		log.Printf("[DEPOSIT] unexpected outcome %d for key %s", result.Outcome, req.TransactionID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Payment debits a user's balance
// @Summary Make a payment
// @Description Debit a user's balance. Rejected when the account is missing or the balance would go negative. Repeating a paymentId is a no-op.
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body PaymentRequest true "Payment data"
// @Success 200 {object} PaymentResponse
// @Failure 400 {object} ErrorResponse "Validation failure or insufficient funds"
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /payments [post]
func (h *WalletHandler) Payment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		writeValidationError(w, "Invalid request. userId, amount (positive), and paymentId are required", err)
		return
	}
	if !req.Amount.IsPositive() || strings.TrimSpace(req.PaymentID) == "" {
		writeError(w, http.StatusBadRequest, "Invalid request. userId, amount (positive), and paymentId are required")
		return
	}

	result, err := h.wallet.Pay(r.Context(), req.UserID, req.Amount, req.PaymentID)
	if err != nil {
		log.Printf("[PAYMENT] failed for user %d, key %s: %v", req.UserID, req.PaymentID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch result.Outcome {
	case services.OutcomeApplied:
		writeJSON(w, http.StatusOK, PaymentResponse{
			Message:    "Payment successful",
			UserID:     result.UserID,
			Amount:     result.Amount,
			PaymentID:  req.PaymentID,
			NewBalance: &result.NewBalance,
		})
	case services.OutcomeAlreadyProcessed:
		writeJSON(w, http.StatusOK, PaymentResponse{
			Message:   "Payment already processed",
			UserID:    result.UserID,
			Amount:    result.Amount,
			PaymentID: req.PaymentID,
		})
	case services.OutcomeAccountNotFound:
		writeError(w, http.StatusNotFound, "User not found")
	case services.OutcomeInsufficientFunds:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:           "Insufficient funds",
			CurrentBalance:  &result.CurrentBalance,
			RequestedAmount: &result.RequestedAmount,
		})
	default:
		log.Printf("[PAYMENT] unexpected outcome %d for key %s", result.Outcome, req.PaymentID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type BalanceResponse struct {
	UserID  int64           `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}

// GetBalance returns a user's current balance
// @Summary Get balance
// @Description Current balance for a user, served from cache when warm
// @Tags balances
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} BalanceResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /balances/{userId} [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userId must be a positive integer")
		return
	}

	balance, found, err := h.wallet.GetBalance(r.Context(), userID)
	if err != nil {
		log.Printf("[BALANCE] lookup failed for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance})
}

// ListOperations returns a user's ledger history
// @Summary List operations
// @Description Recent committed operations for a user, newest first
// @Tags operations
// @Produce json
// @Param userId query int true "User ID"
// @Param limit query int false "Max rows (default 50, max 100)"
// @Success 200 {object} object{operations=[]models.Operation,count=int}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /operations [get]
func (h *WalletHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userId must be a positive integer")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	operations, err := h.wallet.RecentOperations(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[OPERATIONS] list failed for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operations": operations,
		"count":      len(operations),
	})
}
