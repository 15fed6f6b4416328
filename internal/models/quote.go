package models

import (
	"encoding/json"
	"time"
)

// QuoteRequest is the unit of work: one (vehicle, term, mileage) cell of a
// job's matrix. Generated by the expander, never persisted on its own.
type QuoteRequest struct {
	Vehicle       Vehicle
	TermMonths    int
	AnnualMileage int
	Maintenance   bool
	Deposit       float64
}

// QuoteResult is the priced outcome of one QuoteRequest. Accumulated in
// memory during a job and bulk-written at finalization.
type QuoteResult struct {
	ID                 string          `json:"id"`
	JobID              string          `json:"job_id"`
	Manufacturer       string          `json:"manufacturer"`
	Model              string          `json:"model"`
	Variant            string          `json:"variant"`
	TermMonths         int             `json:"term_months"`
	AnnualMileage      int             `json:"annual_mileage"`
	MonthlyRentalNet   float64         `json:"monthly_rental_net"`
	MonthlyRentalGross float64         `json:"monthly_rental_gross"`
	InitialPayment     float64         `json:"initial_payment"`
	TotalCost          float64         `json:"total_cost"`
	VendorMetadata     json.RawMessage `json:"vendor_metadata,omitempty"`
	FetchedAt          time.Time       `json:"fetched_at"`
}
