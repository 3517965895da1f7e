package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorResponse is the error body shared by all endpoints. The balance
// fields are only set on insufficient-funds rejections.
type ErrorResponse struct {
	Error           string            `json:"error"`
	CurrentBalance  *decimal.Decimal  `json:"currentBalance,omitempty"`
	RequestedAmount *decimal.Decimal  `json:"requestedAmount,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeValidationError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		resp.Details = make(map[string]string)
		for _, fe := range fieldErrs {
			resp.Details[fe.Field()] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
