package models

import (
	"fmt"
	"time"
)

// Job lifecycle states persisted in Postgres.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ValidStatus reports whether s names a known lifecycle state.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job is one batch request to quote a set of vehicles under one
// configuration. Created by the intake API in pending; mutated only by the
// orchestrator; terminal once completed or failed. An operator reset is the
// only way back to pending.
type Job struct {
	ID              string        `json:"id"`
	Vehicles        []Vehicle     `json:"vehicles"`
	Configuration   Configuration `json:"configuration"`
	Status          string        `json:"status"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
	ErrorDetail     *JobError     `json:"error_detail,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// Vehicle identifies one vehicle inside a job. The free-text fields are what
// the customer supplied; the vendor codes, when present, let the provider
// skip catalog resolution.
type Vehicle struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Variant      string `json:"variant"`
	MakeCode     string `json:"make_code,omitempty"`
	ModelCode    string `json:"model_code,omitempty"`
	VariantCode  string `json:"variant_code,omitempty"`
}

// HasVendorCodes reports whether resolution can be skipped outright.
func (v Vehicle) HasVendorCodes() bool {
	return v.MakeCode != "" && v.ModelCode != "" && v.VariantCode != ""
}

// Description renders the vehicle for logs and failure samples.
func (v Vehicle) Description() string {
	return fmt.Sprintf("%s %s %s", v.Manufacturer, v.Model, v.Variant)
}

// MaxFailureSamples bounds how many per-request failures are kept on the job
// record. Everything beyond the bound is reflected in TotalFailures only.
const MaxFailureSamples = 5

// Stages recorded on JobError, matching where in the pipeline a job died or
// where its sampled failures came from.
const (
	StageAuthentication = "authentication"
	StageResolution     = "resolution"
	StageQuote          = "quote"
	StagePersistence    = "persistence"
	StageInternal       = "internal"
)

// JobError is the structured, truncated error blob stored on the job row. It
// is the only externally visible failure detail.
type JobError struct {
	Stage         string          `json:"stage,omitempty"`
	Message       string          `json:"message,omitempty"`
	Samples       []FailureSample `json:"samples,omitempty"`
	TotalFailures int             `json:"total_failures"`
}

// FailureSample records one failed quote request or vehicle resolution.
type FailureSample struct {
	Vehicle       string `json:"vehicle"`
	TermMonths    int    `json:"term_months,omitempty"`
	AnnualMileage int    `json:"annual_mileage,omitempty"`
	Stage         string `json:"stage"`
	Reason        string `json:"reason"`
}
