package backup

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"hearthledger/internal/model"
	"hearthledger/internal/store"
)

// exportWindow bounds how far back the transaction export reaches.
const exportWindow = 5 * 365 * 24 * time.Hour

// Exporter snapshots a household's data as a zip of CSV files.
type Exporter struct {
	transactions *store.TransactionStore
	budgets      *store.BudgetStore
	habits       *store.HabitStore
}

// NewExporter creates an Exporter over the given stores.
func NewExporter(ts *store.TransactionStore, bs *store.BudgetStore, hs *store.HabitStore) *Exporter {
	return &Exporter{transactions: ts, budgets: bs, habits: hs}
}

// Snapshot produces the zip archive for one household as of now.
func (e *Exporter) Snapshot(householdID int64, now time.Time) ([]byte, error) {
	txns, err := e.transactions.ListForRange(householdID, now.Add(-exportWindow), now)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	budgets, err := e.budgets.List(householdID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	habits, err := e.habits.List(householdID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeCSV(zw, "transactions.csv", transactionRows(txns)); err != nil {
		return nil, err
	}
	if err := writeCSV(zw, "budgets.csv", budgetRows(budgets)); err != nil {
		return nil, err
	}

	habitRecords := [][]string{{"id", "name", "cadence", "completed_on"}}
	for _, h := range habits {
		completions, err := e.habits.Completions(h.ID, now.Add(-exportWindow))
		if err != nil {
			return nil, fmt.Errorf("list completions: %w", err)
		}
		if len(completions) == 0 {
			habitRecords = append(habitRecords, []string{strconv.FormatInt(h.ID, 10), h.Name, h.Cadence, ""})
			continue
		}
		for _, day := range completions {
			habitRecords = append(habitRecords, []string{
				strconv.FormatInt(h.ID, 10), h.Name, h.Cadence, day.Format("2006-01-02"),
			})
		}
	}
	if err := writeCSV(zw, "habits.csv", habitRecords); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeCSV(zw *zip.Writer, name string, records [][]string) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func transactionRows(txns []model.Transaction) [][]string {
	records := [][]string{{"id", "occurred_at", "amount_cents", "category", "merchant", "note"}}
	for _, t := range txns {
		records = append(records, []string{
			strconv.FormatInt(t.ID, 10),
			t.OccurredAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(t.AmountCents, 10),
			t.Category,
			t.Merchant,
			t.Note,
		})
	}
	return records
}

func budgetRows(budgets []model.Budget) [][]string {
	records := [][]string{{"id", "category", "limit_cents"}}
	for _, b := range budgets {
		records = append(records, []string{
			strconv.FormatInt(b.ID, 10),
			b.Category,
			strconv.FormatInt(b.LimitCents, 10),
		})
	}
	return records
}
