package split

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrInvalidServiceID is returned when an override targets an empty or oversized service id.
var ErrInvalidServiceID = errors.New("split: invalid service id")

// Override is a per-service rule.
type Override struct {
	ServiceID string `json:"serviceId"`
	Rule
}

// Snapshot is the admin view of all configured rules.
type Snapshot struct {
	Default       Rule       `json:"default"`
	DefaultStored bool       `json:"defaultStored"`
	Overrides     []Override `json:"overrides"`
}

// Service manages split rules for the admin surface. Every write is
// validated before it reaches the store.
type Service struct {
	Calc     *Calculator
	Logger   zerolog.Logger
	validate *validator.Validate
}

// NewService wires a Service around calc.
func NewService(calc *Calculator, logger zerolog.Logger) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(validateRuleSum, Rule{})
	return &Service{Calc: calc, Logger: logger, validate: v}
}

func validateRuleSum(sl validator.StructLevel) {
	rule := sl.Current().Interface().(Rule)
	if rule.Sum() != 100 {
		sl.ReportError(rule.PlatformPct, "PlatformPct", "platformPct", "sum100", "")
	}
}

// Rules returns the default rule and all overrides.
func (s *Service) Rules(ctx context.Context) (Snapshot, error) {
	store, err := s.store()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Default: s.Calc.Fallback}
	def, err := store.Default(ctx)
	switch {
	case err == nil:
		snap.Default = def
		snap.DefaultStored = true
	case !errors.Is(err, ErrRuleNotFound):
		return Snapshot{}, err
	}
	overrides, err := store.Overrides(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Overrides = make([]Override, 0, len(overrides))
	for _, id := range sortedServiceIDs(overrides) {
		snap.Overrides = append(snap.Overrides, Override{ServiceID: id, Rule: overrides[id]})
	}
	return snap, nil
}

// SetDefault replaces the global default rule.
func (s *Service) SetDefault(ctx context.Context, rule Rule) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	if err := s.checkRule(rule); err != nil {
		return err
	}
	if err := store.SaveDefault(ctx, rule); err != nil {
		return err
	}
	s.Logger.Info().Int("store_pct", rule.StorePct).Int("freelancer_pct", rule.FreelancerPct).
		Int("platform_pct", rule.PlatformPct).Msg("split_default_updated")
	return nil
}

// SetOverride stores a rule for one service.
func (s *Service) SetOverride(ctx context.Context, serviceID string, rule Rule) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	id, err := s.checkServiceID(serviceID)
	if err != nil {
		return err
	}
	if err := s.checkRule(rule); err != nil {
		return err
	}
	if err := store.SaveOverride(ctx, id, rule); err != nil {
		return err
	}
	s.Logger.Info().Str("service_id", id).Int("store_pct", rule.StorePct).Int("freelancer_pct", rule.FreelancerPct).
		Int("platform_pct", rule.PlatformPct).Msg("split_override_updated")
	return nil
}

// DeleteOverride removes the rule for one service so it falls back to the default.
func (s *Service) DeleteOverride(ctx context.Context, serviceID string) error {
	store, err := s.store()
	if err != nil {
		return err
	}
	id, err := s.checkServiceID(serviceID)
	if err != nil {
		return err
	}
	if err := store.DeleteOverride(ctx, id); err != nil {
		return err
	}
	s.Logger.Info().Str("service_id", id).Msg("split_override_deleted")
	return nil
}

func (s *Service) store() (RuleStore, error) {
	if s == nil || s.Calc == nil || s.Calc.Rules == nil {
		return nil, errors.New("split: rule store not configured")
	}
	return s.Calc.Rules, nil
}

func (s *Service) checkRule(rule Rule) error {
	if err := s.validate.Struct(rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			reasons := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				reasons = append(reasons, describeFieldError(fe, rule))
			}
			return &InvalidRuleError{Rule: rule, Reason: strings.Join(reasons, "; ")}
		}
		return err
	}
	return rule.Validate()
}

func (s *Service) checkServiceID(serviceID string) (string, error) {
	id := strings.TrimSpace(serviceID)
	if err := s.validate.Var(id, "required,max=128"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidServiceID, serviceID)
	}
	return id, nil
}

func describeFieldError(fe validator.FieldError, rule Rule) string {
	switch fe.Tag() {
	case "sum100":
		return fmt.Sprintf("percentages sum to %d, want 100", rule.Sum())
	case "gte", "lte":
		return fmt.Sprintf("%s must be between 0 and 100", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
