package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/ledger"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

type accountRequest struct {
	AccountName       *string             `json:"account_name"`
	AccountPlan       *string             `json:"account_plan"`
	AccountType       *string             `json:"account_type"`
	Currency          *string             `json:"currency"`
	DepositEnabled    *bool               `json:"deposit_enabled"`
	WithdrawalEnabled *bool               `json:"withdrawal_enabled"`
	Target            decimal.NullDecimal `json:"target"`
}

func (req accountRequest) patch() (ledger.AccountPatch, error) {
	p := ledger.AccountPatch{
		Name:            req.AccountName,
		Currency:        req.Currency,
		DepositEnabled:  req.DepositEnabled,
		WithdrawEnabled: req.WithdrawalEnabled,
	}
	if req.AccountPlan != nil {
		plan, ok := models.ParseAccountPlan(*req.AccountPlan)
		if !ok {
			return p, errors.NewValidationError("account_plan", *req.AccountPlan, "must be Normal or Challenge")
		}
		p.Plan = &plan
	}
	if req.AccountType != nil {
		tier, ok := models.ParseAccountTier(*req.AccountType)
		if !ok {
			return p, errors.NewValidationError("account_type", *req.AccountType, "must be Standard, Mini or Micro")
		}
		p.Tier = &tier
	}
	if req.Target.Valid {
		p.Target = &req.Target
	}
	return p, nil
}

func (req accountRequest) params() (ledger.AccountParams, error) {
	patch, err := req.patch()
	if err != nil {
		return ledger.AccountParams{}, err
	}
	p := ledger.AccountParams{
		DepositEnabled:  true,
		WithdrawEnabled: true,
		Target:          req.Target,
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Plan != nil {
		p.Plan = *patch.Plan
	}
	if patch.Tier != nil {
		p.Tier = *patch.Tier
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	if patch.DepositEnabled != nil {
		p.DepositEnabled = *patch.DepositEnabled
	}
	if patch.WithdrawEnabled != nil {
		p.WithdrawEnabled = *patch.WithdrawEnabled
	}
	return p, nil
}

// ListAccounts returns the caller's accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	accts, err := h.engine.ListAccounts(r.Context(), who.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := make([]store.AccountRow, 0, len(accts))
	for _, a := range accts {
		rows = append(rows, store.AccountToRow(a))
	}
	writeJSON(w, http.StatusOK, rows)
}

// CreateAccount opens an empty account for the caller.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	var req accountRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := h.engine.CreateAccount(r.Context(), who.UserID, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, store.AccountToRow(acct))
}

// GetAccount returns the selected account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	acct, err := h.engine.Account(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.AccountToRow(acct))
}

// UpdateAccount edits the selected account's settings.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	var req accountRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := h.engine.UpdateAccount(r.Context(), who, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.AccountToRow(acct))
}

// DeleteAccount removes the selected account and everything in it.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	if err := h.engine.DeleteAccount(r.Context(), who); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecomputeEquity resets equity to capital plus profit.
func (h *Handler) RecomputeEquity(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	acct, err := h.engine.RecomputeEquity(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.AccountToRow(acct))
}

type movementRequest struct {
	Amount      decimal.NullDecimal `json:"amount"`
	Date        string              `json:"date"`
	Description string              `json:"description"`
	// Confirm allows a withdrawal to draw on capital once profit is spent.
	Confirm bool `json:"confirm"`
}

func (req movementRequest) movement(loc *time.Location) (engine.Movement, error) {
	if !req.Amount.Valid {
		return engine.Movement{}, errors.NewValidationError("amount", "", "is required")
	}
	date, err := parseMoment("date", req.Date, loc)
	if err != nil {
		return engine.Movement{}, err
	}
	return engine.Movement{Amount: req.Amount.Decimal, Date: date, Description: req.Description}, nil
}

type movementResponse struct {
	Transaction store.TransactionRow `json:"transaction"`
	Account     store.AccountRow     `json:"account"`
}

// Deposit adds capital to the selected account.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, false)
}

// Withdraw takes money out of the selected account.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, true)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, withdraw bool) {
	who, _ := Identity(r)
	var req movementRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := req.movement(h.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var tx models.Transaction
	if withdraw {
		confirm := func(decimal.Decimal, ledger.Split) bool { return req.Confirm }
		tx, err = h.engine.Withdraw(r.Context(), who, m, confirm)
	} else {
		tx, err = h.engine.Deposit(r.Context(), who, m)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := h.engine.Account(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementResponse{
		Transaction: store.TransactionToRow(tx),
		Account:     store.AccountToRow(acct),
	})
}

// ListTransactions returns the ledger of the selected account.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	txs, err := h.engine.Transactions(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := make([]store.TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, store.TransactionToRow(tx))
	}
	writeJSON(w, http.StatusOK, rows)
}

// DeleteTransaction removes a ledger entry and reverses it.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	acct, err := h.engine.DeleteTransaction(r.Context(), who, chi.URLParam(r, "txID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.AccountToRow(acct))
}
