package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"trade-journal/internal/analytics"
	"trade-journal/internal/backup"
	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// journal loads the account and its trades in chronological order.
func (h *Handler) journal(r *http.Request) (models.Account, []models.Trade, error) {
	who, _ := Identity(r)
	acct, err := h.engine.Account(r.Context(), who)
	if err != nil {
		return models.Account{}, nil, err
	}
	trades, err := h.engine.Trades(r.Context(), who, engine.Query{Ascending: true})
	if err != nil {
		return models.Account{}, nil, err
	}
	return acct, trades, nil
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, period func(string) (analytics.Period, error), def analytics.Period) {
	p := def
	if s := r.URL.Query().Get("period"); s != "" {
		var err error
		if p, err = period(s); err != nil {
			writeError(w, r, err)
			return
		}
	}
	acct, trades, err := h.journal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.BuildReview(acct, trades, p))
}

// WeekReview reviews ?period=2024-W23 (or a date), default this week.
func (h *Handler) WeekReview(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(s string) (analytics.Period, error) {
		return analytics.ParseWeek(s, h.loc)
	}, analytics.WeekOf(h.clock(), h.loc))
}

// MonthReview reviews ?period=2024-06 (or a date), default this month.
func (h *Handler) MonthReview(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(s string) (analytics.Period, error) {
		return analytics.ParseMonth(s, h.loc)
	}, analytics.MonthOf(h.clock(), h.loc))
}

// Summary returns all-time figures.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	acct, trades, err := h.journal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Summarize(acct, trades))
}

// Groups aggregates trades ?by=pair|session|weekday|outcome.
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	by := r.URL.Query().Get("by")
	if by == "" {
		by = string(analytics.ByPair)
	}
	key, ok := analytics.ParseGroupKey(by)
	if !ok {
		writeError(w, r, errors.NewValidationError("by", by, "must be pair, session, weekday or outcome"))
		return
	}
	acct, trades, err := h.journal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups := analytics.GroupBy(trades, key, acct.Capital)
	if groups == nil {
		groups = []analytics.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// DailyRisk reports summed risk of active trades per entry day.
func (h *Handler) DailyRisk(w http.ResponseWriter, r *http.Request) {
	_, trades, err := h.journal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.DailyRiskUtilization(trades))
}

// ExportBackup streams the account as a backup document.
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	j, err := h.engine.Snapshot(r.Context(), who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := h.clock()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="journal-%s-%s.json"`, j.Account.ID, now.UTC().Format("20060102")))
	if err := backup.Write(w, j, now); err != nil {
		logger := h.logger.With().Str("account_id", who.AccountID).Logger()
		logger.Error().Err(err).Msg("backup export interrupted")
	}
}

type importResponse struct {
	Trades       int    `json:"trades"`
	Transactions int    `json:"transactions"`
	ExportedAt   string `json:"exported_at"`
}

// ImportBackup replaces the account's journal with an uploaded backup.
// ?fresh_ids=true assigns new row ids.
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	fresh := false
	if s := r.URL.Query().Get("fresh_ids"); s != "" {
		var err error
		if fresh, err = strconv.ParseBool(s); err != nil {
			writeError(w, r, errors.NewValidationError("fresh_ids", s, "must be true or false"))
			return
		}
	}
	j, meta, err := backup.Read(http.MaxBytesReader(w, r.Body, maxBackupBody))
	if err != nil {
		if errors.KindOf(err) == errors.KindInternal {
			err = errors.NewValidationError("body", "", err.Error())
		}
		writeError(w, r, err)
		return
	}
	restored, err := h.engine.Restore(r.Context(), who, j, engine.RestoreOptions{FreshIDs: fresh})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		Trades:       len(restored.Trades),
		Transactions: len(restored.Transactions),
		ExportedAt:   meta.ExportedAt.UTC().Format(time.RFC3339),
	})
}
