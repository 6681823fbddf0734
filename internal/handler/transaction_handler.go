package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
	"bank-postings/internal/service"
)

var errInvalidTransactionID = errors.NewAppError(errors.KindValidation, errors.InvalidInput, "invalid transaction id")

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

type CreateTransactionRequest struct {
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

type TransactionResponse struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	RiskScore   int       `json:"risk_score"`
	Timestamp   time.Time `json:"timestamp"`
}

func toTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          tx.ID.String(),
		AccountID:   tx.AccountID.String(),
		Amount:      tx.Amount.StringFixed(2),
		Currency:    string(tx.Currency),
		Type:        string(tx.Type),
		Category:    string(tx.Category),
		Description: tx.Description,
		Status:      string(tx.Status),
		RiskScore:   tx.RiskScore,
		Timestamp:   tx.Timestamp,
	}
}

func toTransactionPage(result *domain.PageResult[domain.Transaction]) PageResponse[TransactionResponse] {
	items := make([]TransactionResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, toTransactionResponse(&result.Items[i]))
	}
	return mapPage(result, items)
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidInput("invalid request body").WithDetails(err.Error()))
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeError(w, errors.ErrInvalidAccountID.WithDetails(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, errors.NewAppError(errors.KindValidation, errors.InvalidAmount, "invalid amount format").WithDetails(err.Error()))
		return
	}

	txType, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, errors.NewAppError(errors.KindValidation, errors.ValidationError, err.Error()))
		return
	}

	category, err := domain.ParseTransactionCategory(req.Category)
	if err != nil {
		writeError(w, errors.NewAppError(errors.KindValidation, errors.ValidationError, err.Error()))
		return
	}

	transaction, err := h.transactionService.Post(r.Context(), &service.PostTransactionRequest{
		AccountID:   accountID,
		Amount:      amount,
		Type:        txType,
		Category:    category,
		Description: req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/transactions/"+transaction.ID.String())
	writeJSON(w, http.StatusCreated, toTransactionResponse(transaction))
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(r, "id", errInvalidTransactionID)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	transaction, err := h.transactionService.GetTransaction(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(transaction))
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, appErr := parsePage(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	filter, appErr := parseFilter(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.transactionService.ListTransactions(r.Context(), filter, page)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionPage(result))
}

func (h *TransactionHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	page, appErr := parsePage(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.transactionService.ListFlagged(r.Context(), page)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionPage(result))
}

func parseFilter(r *http.Request) (domain.TransactionFilter, *errors.AppError) {
	q := r.URL.Query()
	var filter domain.TransactionFilter

	if v := q.Get("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errors.ErrInvalidAccountID.WithDetails(err.Error())
		}
		filter.AccountID = &id
	}

	if v := q.Get("status"); v != "" {
		status, err := domain.ParseTransactionStatus(v)
		if err != nil {
			return filter, invalidInput(err.Error())
		}
		filter.Status = &status
	}

	if v := q.Get("type"); v != "" {
		txType, err := domain.ParseTransactionType(v)
		if err != nil {
			return filter, invalidInput(err.Error())
		}
		filter.Type = &txType
	}

	if v := q.Get("from_date"); v != "" {
		t, ok := parseTime(v)
		if !ok {
			return filter, invalidInput("from_date must be an ISO-8601 date-time")
		}
		filter.From = &t
	}

	if v := q.Get("to_date"); v != "" {
		t, ok := parseTime(v)
		if !ok {
			return filter, invalidInput("to_date must be an ISO-8601 date-time")
		}
		filter.To = &t
	}

	return filter, nil
}
