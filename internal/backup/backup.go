// Package backup reads and writes the single-file journal export format.
//
// A backup is one JSON document holding an account row, its trades and its
// ledger entries in the store wire shape:
//
//	{"schemaVersion": 1, "account": {...}, "trades": [...], "transactions": [...], "exportedAt": "..."}
//
// Rows may use snake_case or camelCase keys on read.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

// SchemaVersion is the only document version this package reads or writes.
const SchemaVersion = 1

// Document is the on-disk shape of a backup.
type Document struct {
	SchemaVersion int                    `json:"schemaVersion"`
	Account       store.AccountRow       `json:"account"`
	Trades        []store.TradeRow       `json:"trades"`
	Transactions  []store.TransactionRow `json:"transactions"`
	ExportedAt    time.Time              `json:"exportedAt"`
}

// Meta describes a decoded document beyond its journal.
type Meta struct {
	SchemaVersion int
	ExportedAt    time.Time
}

// Encode converts a journal to its document form.
func Encode(j models.Journal, now time.Time) Document {
	doc := Document{
		SchemaVersion: SchemaVersion,
		Account:       store.AccountToRow(j.Account),
		Trades:        make([]store.TradeRow, 0, len(j.Trades)),
		Transactions:  make([]store.TransactionRow, 0, len(j.Transactions)),
		ExportedAt:    now.UTC(),
	}
	for _, t := range j.Trades {
		doc.Trades = append(doc.Trades, store.TradeToRow(t))
	}
	for _, tx := range j.Transactions {
		doc.Transactions = append(doc.Transactions, store.TransactionToRow(tx))
	}
	return doc
}

// Write exports j to w as indented JSON.
func Write(w io.Writer, j models.Journal, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Encode(j, now)); err != nil {
		return fmt.Errorf("cannot write backup: %w", err)
	}
	return nil
}

// Read decodes a backup from r. The version is checked before any row is
// decoded, so a document from a newer release is refused as a whole.
func Read(r io.Reader) (models.Journal, Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Journal{}, Meta{}, fmt.Errorf("cannot read backup: %w", err)
	}

	var probe struct {
		SchemaVersion *int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return models.Journal{}, Meta{}, errors.NewValidationError("backup", "", "is not a JSON object")
	}
	switch {
	case probe.SchemaVersion == nil:
		return models.Journal{}, Meta{}, errors.NewValidationError("schemaVersion", nil, "is required")
	case *probe.SchemaVersion > SchemaVersion:
		return models.Journal{}, Meta{}, errors.NewValidationError("schemaVersion", *probe.SchemaVersion,
			fmt.Sprintf("was written by a newer release; only version %d is supported", SchemaVersion))
	case *probe.SchemaVersion != SchemaVersion:
		return models.Journal{}, Meta{}, errors.NewValidationError("schemaVersion", *probe.SchemaVersion,
			fmt.Sprintf("must be %d", SchemaVersion))
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.Journal{}, Meta{}, errors.NewValidationError("backup", "", "malformed document: "+err.Error())
	}
	j, err := Decode(doc)
	if err != nil {
		return models.Journal{}, Meta{}, err
	}
	return j, Meta{SchemaVersion: doc.SchemaVersion, ExportedAt: doc.ExportedAt}, nil
}

// Decode converts a document to a journal, refusing rows without an id and
// duplicate ids.
func Decode(doc Document) (models.Journal, error) {
	acct, err := store.AccountFromRow(doc.Account)
	if err != nil {
		return models.Journal{}, err
	}
	j := models.Journal{
		Account:      acct,
		Trades:       make([]models.Trade, 0, len(doc.Trades)),
		Transactions: make([]models.Transaction, 0, len(doc.Transactions)),
	}

	seen := make(map[string]bool, len(doc.Trades))
	for i, row := range doc.Trades {
		t, err := store.TradeFromRow(row)
		if err != nil {
			return models.Journal{}, errors.Wrapf(err, "trades[%d]", i)
		}
		if seen[t.ID] {
			return models.Journal{}, errors.NewValidationError("trade.id", t.ID, "appears more than once")
		}
		seen[t.ID] = true
		j.Trades = append(j.Trades, t)
	}

	seen = make(map[string]bool, len(doc.Transactions))
	for i, row := range doc.Transactions {
		tx, err := store.TransactionFromRow(row)
		if err != nil {
			return models.Journal{}, errors.Wrapf(err, "transactions[%d]", i)
		}
		if seen[tx.ID] {
			return models.Journal{}, errors.NewValidationError("transaction.id", tx.ID, "appears more than once")
		}
		seen[tx.ID] = true
		j.Transactions = append(j.Transactions, tx)
	}

	store.SortTrades(j.Trades)
	store.SortTransactions(j.Transactions)
	return j, nil
}
