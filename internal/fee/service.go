package fee

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"kassenwart/internal/event"
	"kassenwart/internal/feecond"
	"kassenwart/internal/logger"
	"kassenwart/internal/metrics"
	"kassenwart/internal/registration"
)

var (
	ErrInvalidKind      = errors.New("invalid fee kind")
	ErrInvalidAmount    = errors.New("invalid fee amount")
	ErrInvalidCondition = errors.New("invalid fee condition")
)

type Service interface {
	CreateDefinition(ctx context.Context, def *Definition) (*Definition, error)
	UpdateDefinition(ctx context.Context, def *Definition) (*Definition, error)
	DeleteDefinition(ctx context.Context, id int) error
	ListDefinitions(ctx context.Context, eventID int) ([]Definition, error)

	ComputeFees(reg *registration.Registration, parts []event.Part, defs []Definition) (map[int]decimal.Decimal, error)
	TotalOwed(reg *registration.Registration, parts []event.Part, defs []Definition) (decimal.Decimal, error)
	Preview(ctx context.Context, registrationID int, fieldOverrides map[string]interface{}) (*PreviewResult, error)
	RecomputeEvent(ctx context.Context, eventID int) (*RecomputeReport, error)
	FeeStats(ctx context.Context, eventID int) (map[Kind]KindStats, error)
}

type PreviewResult struct {
	RegistrationID int                     `json:"registration_id"`
	Applied        map[int]decimal.Decimal `json:"applied"`
	TotalOwed      decimal.Decimal         `json:"total_owed"`
}

type RecomputeReport struct {
	EventID       int `json:"event_id"`
	Registrations int `json:"registrations"`
	Changed       int `json:"changed"`
}

type service struct {
	feeRepo   Repository
	eventRepo event.Repository
	regRepo   registration.Repository
}

func NewService(feeRepo Repository, eventRepo event.Repository, regRepo registration.Repository) Service {
	return &service{
		feeRepo:   feeRepo,
		eventRepo: eventRepo,
		regRepo:   regRepo,
	}
}

// validateDefinition enforces the save-time contract: a definition that
// passes here never fails during evaluation or aggregation.
func (s *service) validateDefinition(ctx context.Context, def *Definition) error {
	if !def.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, def.Kind)
	}
	if def.Amount.Exponent() < -2 {
		return fmt.Errorf("%w: more than two fractional digits", ErrInvalidAmount)
	}
	if def.Kind == KindDiscount || def.Kind == KindSolidaryReduction {
		if def.Amount.IsPositive() {
			return fmt.Errorf("%w: %s must not be positive", ErrInvalidAmount, def.Kind)
		}
	} else if def.Amount.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidAmount, def.Kind)
	}

	schema, err := s.eventRepo.Schema(ctx, def.EventID)
	if err != nil {
		return err
	}
	if err := feecond.Validate(def.Condition, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	return nil
}

func (s *service) CreateDefinition(ctx context.Context, def *Definition) (*Definition, error) {
	if _, err := s.eventRepo.GetEventByID(ctx, def.EventID); err != nil {
		return nil, err
	}
	if err := s.validateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return s.feeRepo.Create(ctx, def)
}

func (s *service) UpdateDefinition(ctx context.Context, def *Definition) (*Definition, error) {
	existing, err := s.feeRepo.GetByID(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	def.EventID = existing.EventID
	if err := s.validateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return s.feeRepo.Update(ctx, def)
}

func (s *service) DeleteDefinition(ctx context.Context, id int) error {
	return s.feeRepo.Delete(ctx, id)
}

func (s *service) ListDefinitions(ctx context.Context, eventID int) ([]Definition, error) {
	return s.feeRepo.ListByEvent(ctx, eventID)
}

// ComputeFees evaluates every definition against the registration and
// returns the amounts of those that apply, keyed by definition id.
func (s *service) ComputeFees(reg *registration.Registration, parts []event.Part, defs []Definition) (map[int]decimal.Decimal, error) {
	evalCtx, err := registration.BuildContext(reg, parts)
	if err != nil {
		return nil, err
	}
	return applyDefinitions(evalCtx, defs)
}

func applyDefinitions(evalCtx *feecond.Context, defs []Definition) (map[int]decimal.Decimal, error) {
	applied := make(map[int]decimal.Decimal)
	for _, def := range defs {
		node, err := feecond.Parse(def.Condition)
		if err != nil {
			// Conditions are validated at save time; reaching this
			// indicates corrupted data.
			return nil, fmt.Errorf("fee definition %d: %w", def.ID, err)
		}
		if node.Eval(evalCtx) {
			applied[def.ID] = def.Amount
		}
	}
	return applied, nil
}

// sumApplied totals applied amounts, clamped at zero and rounded
// half-up to two decimals. A registrant is never owed money through
// event fees; genuine refunds go through the ledger.
func sumApplied(applied map[int]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range applied {
		total = total.Add(amount)
	}
	total = total.Round(2)
	if total.IsNegative() {
		return decimal.Zero.Round(2)
	}
	return total
}

func (s *service) TotalOwed(reg *registration.Registration, parts []event.Part, defs []Definition) (decimal.Decimal, error) {
	applied, err := s.ComputeFees(reg, parts, defs)
	if err != nil {
		return decimal.Zero, err
	}
	return sumApplied(applied), nil
}

// Preview computes fees against hypothetical field values without
// touching stored state.
func (s *service) Preview(ctx context.Context, registrationID int, fieldOverrides map[string]interface{}) (*PreviewResult, error) {
	reg, err := s.regRepo.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	parts, err := s.eventRepo.ListParts(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	defs, err := s.feeRepo.ListByEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}

	evalCtx, err := registration.BuildContext(reg, parts)
	if err != nil {
		return nil, err
	}
	for name, v := range fieldOverrides {
		evalCtx.Fields[name] = truthyOverride(v)
	}

	applied, err := applyDefinitions(evalCtx, defs)
	if err != nil {
		return nil, err
	}

	return &PreviewResult{
		RegistrationID: registrationID,
		Applied:        applied,
		TotalOwed:      sumApplied(applied),
	}, nil
}

func truthyOverride(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}

// RecomputeEvent re-derives amount_owed for every registration of the
// event from the currently committed fee definitions.
func (s *service) RecomputeEvent(ctx context.Context, eventID int) (*RecomputeReport, error) {
	ev, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	parts, err := s.eventRepo.ListParts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defs, err := s.feeRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := s.regRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	report := &RecomputeReport{EventID: eventID, Registrations: len(regs)}
	for _, reg := range regs {
		owed, err := s.TotalOwed(reg, parts, defs)
		if err != nil {
			return nil, err
		}
		if owed.Equal(reg.AmountOwed) {
			continue
		}
		if err := s.regRepo.UpdateAmountOwed(ctx, reg.ID, owed); err != nil {
			return nil, err
		}
		report.Changed++
	}

	metrics.RecordFeeRecomputation(ev.Shortname)
	logger.Info("recomputed event fees",
		"event", ev.Shortname,
		"registrations", report.Registrations,
		"changed", report.Changed,
	)
	return report, nil
}

// FeeStats groups applied amounts by fee kind across all registrations
// of the event. Paid amounts are capped per registration at the amount
// owed and attributed to kinds pro rata; over-payment stays a balance
// credit and never inflates the statistics.
func (s *service) FeeStats(ctx context.Context, eventID int) (map[Kind]KindStats, error) {
	parts, err := s.eventRepo.ListParts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defs, err := s.feeRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := s.regRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	stats := map[Kind]KindStats{}
	for _, reg := range regs {
		applied, err := s.ComputeFees(reg, parts, defs)
		if err != nil {
			return nil, err
		}
		owed := sumApplied(applied)

		effectivePaid := reg.AmountPaid
		if effectivePaid.GreaterThan(owed) {
			effectivePaid = owed
		}
		ratio := decimal.Zero
		if owed.IsPositive() {
			ratio = effectivePaid.Div(owed)
		}

		var matched []int
		for i, def := range defs {
			if _, ok := applied[def.ID]; ok {
				matched = append(matched, i)
			}
		}

		// The last applied definition absorbs the rounding remainder,
		// keeping the attributed shares summing exactly to the capped
		// paid amount.
		attributed := decimal.Zero
		for n, i := range matched {
			def := defs[i]
			amount := applied[def.ID]
			share := amount.Mul(ratio).Round(2)
			if n == len(matched)-1 && owed.IsPositive() {
				share = effectivePaid.Sub(attributed)
			}
			attributed = attributed.Add(share)

			st := stats[def.Kind]
			st.Owed = st.Owed.Add(amount)
			st.Paid = st.Paid.Add(share)
			stats[def.Kind] = st
		}
	}
	return stats, nil
}
