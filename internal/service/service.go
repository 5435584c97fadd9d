package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/report"
	"barberbill/backend/internal/store"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidReference = errors.New("invalid reference")
	ErrMissingShop      = errors.New("shop identity required")
)

// Error carries a client-facing message while matching one of the package
// sentinels (or store.ErrNotFound / store.ErrConflict) through errors.Is.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validationError(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func referenceError(format string, args ...any) error {
	return &Error{Kind: ErrInvalidReference, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(message string) error {
	return &Error{Kind: store.ErrNotFound, Message: message}
}

func conflictError(message string) error {
	return &Error{Kind: store.ErrConflict, Message: message}
}

type shopContextKey struct{}

func WithShop(ctx context.Context, shop domain.Shop) context.Context {
	return context.WithValue(ctx, shopContextKey{}, shop)
}

func ShopFromContext(ctx context.Context) (domain.Shop, bool) {
	shop, ok := ctx.Value(shopContextKey{}).(domain.Shop)
	return shop, ok && shop.ID != ""
}

type Service struct {
	repo     store.Repository
	reports  *report.Engine
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

func New(repo store.Repository, reports *report.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reports == nil {
		reports = report.NewEngine(repo, nil, 0, logger)
	}

	return &Service{
		repo:     repo,
		reports:  reports,
		logger:   logger.Named("service"),
		validate: newValidator(),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for default timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func requireShop(ctx context.Context) (domain.Shop, error) {
	shop, ok := ShopFromContext(ctx)
	if !ok {
		return domain.Shop{}, ErrMissingShop
	}
	return shop, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func (s *Service) validateStruct(value any) error {
	err := s.validate.Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return validationError("%v", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}
	return validationError("%s", strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return field + " must be a valid email"
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func trimmedOrNil(val *string) *string {
	if val == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
