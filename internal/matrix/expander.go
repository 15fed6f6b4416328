// Package matrix turns a job's vehicle list and configuration into the
// ordered set of individual quote requests.
package matrix

import (
	"github.com/ablair264/SplitLease-Backend/internal/models"
)

// Expand produces the full request matrix for a job: vehicles in job order,
// terms ascending within each vehicle, mileages ascending within each term.
// The output is deterministic; expanding the same input twice yields the
// same sequence.
func Expand(vehicles []models.Vehicle, cfg models.Configuration) []models.QuoteRequest {
	out := make([]models.QuoteRequest, 0, len(vehicles)*cfg.RequestsPerVehicle())
	for _, v := range vehicles {
		out = append(out, ExpandVehicle(v, cfg)...)
	}
	return out
}

// ExpandVehicle produces the matrix slice for a single vehicle. The
// orchestrator uses it to walk a job vehicle by vehicle and to count every
// cell as failed when a vehicle cannot be resolved.
func ExpandVehicle(v models.Vehicle, cfg models.Configuration) []models.QuoteRequest {
	terms := cfg.Terms()
	mileages := cfg.Mileages()
	out := make([]models.QuoteRequest, 0, len(terms)*len(mileages))
	for _, term := range terms {
		for _, mileage := range mileages {
			out = append(out, models.QuoteRequest{
				Vehicle:       v,
				TermMonths:    term,
				AnnualMileage: mileage,
				Maintenance:   cfg.Maintenance,
				Deposit:       cfg.Deposit,
			})
		}
	}
	return out
}
