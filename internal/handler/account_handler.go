package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
	"bank-postings/internal/service"
)

type AccountHandler struct {
	accountService     *service.AccountService
	transactionService *service.TransactionService
}

func NewAccountHandler(accountService *service.AccountService, transactionService *service.TransactionService) *AccountHandler {
	return &AccountHandler{
		accountService:     accountService,
		transactionService: transactionService,
	}
}

type CreateAccountRequest struct {
	AccountHolder  string `json:"account_holder"`
	InitialBalance string `json:"initial_balance"`
	Currency       string `json:"currency"`
}

type UpdateAccountStatusRequest struct {
	Status string `json:"status"`
}

type AccountResponse struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

type AccountDetailResponse struct {
	AccountResponse
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	TotalTransactions int64     `json:"total_transactions"`
	TotalDebits       string    `json:"total_debits"`
	TotalCredits      string    `json:"total_credits"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID.String(),
		AccountNumber: a.AccountNumber,
		AccountHolder: a.AccountHolder,
		Balance:       a.Balance.StringFixed(2),
		Currency:      string(a.Currency),
		Status:        string(a.Status),
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidInput("invalid request body").WithDetails(err.Error()))
		return
	}

	initialBalance, err := decimal.NewFromString(req.InitialBalance)
	if err != nil {
		writeError(w, errors.NewAppError(errors.KindValidation, errors.InvalidAmount, "invalid initial_balance format").WithDetails(err.Error()))
		return
	}

	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		writeError(w, errors.NewAppError(errors.KindValidation, errors.ValidationError, err.Error()))
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), &service.CreateAccountRequest{
		AccountHolder:  req.AccountHolder,
		InitialBalance: initialBalance,
		Currency:       currency,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/accounts/"+account.ID.String())
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page, appErr := parsePage(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.accountService.ListAccounts(r.Context(), page)
	if err != nil {
		handleError(w, err)
		return
	}

	items := make([]AccountResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, toAccountResponse(&result.Items[i]))
	}
	writeJSON(w, http.StatusOK, mapPage(result, items))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(r, "id", errors.ErrInvalidAccountID)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	detail, err := h.accountService.GetAccount(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AccountDetailResponse{
		AccountResponse:   toAccountResponse(&detail.Account),
		CreatedAt:         detail.CreatedAt,
		UpdatedAt:         detail.UpdatedAt,
		TotalTransactions: detail.TotalTransactions,
		TotalDebits:       detail.TotalDebits.StringFixed(2),
		TotalCredits:      detail.TotalCredits.StringFixed(2),
	})
}

func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(r, "id", errors.ErrInvalidAccountID)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	var req UpdateAccountStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, invalidInput("invalid request body").WithDetails(err.Error()))
		return
	}

	status, err := domain.ParseAccountStatus(req.Status)
	if err != nil {
		writeError(w, errors.NewAppError(errors.KindValidation, errors.ValidationError, err.Error()))
		return
	}

	account, err := h.accountService.UpdateStatus(r.Context(), id, status)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(r, "id", errors.ErrInvalidAccountID)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	page, appErr := parsePage(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	result, err := h.transactionService.ListAccountTransactions(r.Context(), id, page)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionPage(result))
}

// PageResponse mirrors domain.PageResult over response DTOs.
type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
}

func mapPage[S, T any](result *domain.PageResult[S], items []T) PageResponse[T] {
	return PageResponse[T]{
		Content:       items,
		Page:          result.Page,
		Size:          result.Size,
		TotalElements: result.TotalElements,
		TotalPages:    result.TotalPages,
	}
}
