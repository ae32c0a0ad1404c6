package models

import "time"

// QuotaOutcome is the status column of the quota ledger.
type QuotaOutcome string

const (
	QuotaEstimated QuotaOutcome = "Estimated"
	QuotaSuccess   QuotaOutcome = "Success"
	QuotaRetriable QuotaOutcome = "Retriable"
	QuotaFailed    QuotaOutcome = "Failed"
)

// QuotaLedgerEntry is one append-only audit row.
type QuotaLedgerEntry struct {
	Timestamp      time.Time    `csv:"timestamp" json:"timestamp"`
	APICallKind    string       `csv:"api_name" json:"api_name"`
	EstimatedUnits int          `csv:"units" json:"units"`
	Outcome        QuotaOutcome `csv:"status" json:"status"`
	Note           string       `csv:"description" json:"description"`
}

// Realized reports whether the entry counts against the daily budget.
func (e QuotaLedgerEntry) Realized() bool {
	return e.Outcome != QuotaEstimated
}
