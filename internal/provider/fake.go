package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ablair264/SplitLease-Backend/internal/models"
)

// Fake is an in-memory vendor used for local runs and tests. Pricing is
// deterministic per (vehicle, term, mileage) so repeated jobs produce
// identical quotes.
type Fake struct {
	// Catalog restricts resolution to known vehicles when non-nil, keyed by
	// CatalogKey. A nil catalog resolves every vehicle.
	Catalog map[string]VehicleHandle

	// LoginErr, when set, is returned by EstablishSession.
	LoginErr error

	// QuoteErr, when set, is consulted per request before pricing.
	QuoteErr func(req models.QuoteRequest) error

	ttl time.Duration

	mu         sync.Mutex
	sessionSeq int
	quoteCalls int
}

// NewFake builds a fake vendor with a 15 minute session window.
func NewFake() *Fake {
	return &Fake{ttl: 15 * time.Minute}
}

// CatalogKey is the lookup key for a restricted catalog.
func CatalogKey(v models.Vehicle) string {
	return strings.ToLower(v.Manufacturer + "|" + v.Model + "|" + v.Variant)
}

func (f *Fake) Name() string { return "fake" }

// QuoteCalls reports how many calculations have been issued, for tests.
func (f *Fake) QuoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls
}

func (f *Fake) EstablishSession(_ context.Context, _ Credentials) (Session, error) {
	if f.LoginErr != nil {
		return Session{}, f.LoginErr
	}
	f.mu.Lock()
	f.sessionSeq++
	seq := f.sessionSeq
	f.mu.Unlock()

	now := time.Now().UTC()
	return Session{
		Token:         fmt.Sprintf("fake-session-%d", seq),
		EstablishedAt: now,
		ExpiresAt:     now.Add(f.ttl),
	}, nil
}

func (f *Fake) IsSessionValid(_ context.Context, sess Session) bool {
	return sess.Token != "" && !sess.Expired(time.Now().UTC())
}

func (f *Fake) ResolveVehicle(_ context.Context, v models.Vehicle) (VehicleHandle, error) {
	if v.HasVendorCodes() {
		return VehicleHandle{MakeCode: v.MakeCode, ModelCode: v.ModelCode, VariantCode: v.VariantCode}, nil
	}
	if f.Catalog != nil {
		handle, ok := f.Catalog[CatalogKey(v)]
		if !ok {
			return VehicleHandle{}, &NotFoundError{Vehicle: v.Description()}
		}
		return handle, nil
	}
	return VehicleHandle{
		MakeCode:    codeFor(v.Manufacturer),
		ModelCode:   codeFor(v.Model),
		VariantCode: codeFor(v.Variant),
	}, nil
}

func (f *Fake) CalculateQuote(_ context.Context, sess Session, handle VehicleHandle, req models.QuoteRequest) (models.QuoteResult, error) {
	f.mu.Lock()
	f.quoteCalls++
	f.mu.Unlock()

	if sess.Token == "" || sess.Expired(time.Now().UTC()) {
		return models.QuoteResult{}, &AuthError{Vendor: f.Name(), Reason: "session expired"}
	}
	if f.QuoteErr != nil {
		if err := f.QuoteErr(req); err != nil {
			return models.QuoteResult{}, err
		}
	}

	net := fakeMonthlyRental(handle, req)
	gross := round2(net * 1.2)
	initial := req.Deposit
	if initial == 0 {
		initial = round2(gross * 3)
	}
	total := round2(initial + gross*float64(req.TermMonths-1))

	meta, _ := json.Marshal(map[string]any{
		"vendor":       f.Name(),
		"variant_code": handle.VariantCode,
	})
	return models.QuoteResult{
		Manufacturer:       req.Vehicle.Manufacturer,
		Model:              req.Vehicle.Model,
		Variant:            req.Vehicle.Variant,
		TermMonths:         req.TermMonths,
		AnnualMileage:      req.AnnualMileage,
		MonthlyRentalNet:   net,
		MonthlyRentalGross: gross,
		InitialPayment:     round2(initial),
		TotalCost:          total,
		VendorMetadata:     meta,
		FetchedAt:          time.Now().UTC(),
	}, nil
}

// fakeMonthlyRental derives a stable base price from the vehicle identity
// and adjusts it the way real lease pricing moves: shorter terms and higher
// mileage cost more, maintenance adds a flat amount.
func fakeMonthlyRental(handle VehicleHandle, req models.QuoteRequest) float64 {
	h := fnv.New32a()
	h.Write([]byte(handle.MakeCode + handle.ModelCode + handle.VariantCode))
	base := 200 + float64(h.Sum32()%500)

	termFactor := 1 + float64(48-req.TermMonths)*0.004
	mileageFactor := 1 + float64(req.AnnualMileage-10000)*0.00001
	net := base * termFactor * mileageFactor
	if req.Maintenance {
		net += 35
	}
	return round2(net)
}

func codeFor(s string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(s))))
	return fmt.Sprintf("%06d", h.Sum32()%1000000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
