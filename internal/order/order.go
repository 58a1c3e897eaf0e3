// Package order orchestrates the checkout workflow: order creation,
// status lookup, conditional capture, license issuance and delivery.
//
// Steps run strictly one after another. Capture must observe the order
// status first, and issuance must observe a successful capture.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/currency"

	"github.com/iliamunaev/license-checkout/internal/apperr"
	"github.com/iliamunaev/license-checkout/internal/model"
	"github.com/iliamunaev/license-checkout/internal/service/keyauth"
	"github.com/iliamunaev/license-checkout/internal/service/paypal"
	"github.com/iliamunaev/license-checkout/internal/service/tracker"
)

const (
	instrumentation = "github.com/iliamunaev/license-checkout/internal/order"
	maxCustomID     = 127

	// Price bounds, checked before any rescaling of the decimal.
	maxIntegerDigits  = 15
	maxFractionDigits = 18
)

// PaymentProvider is the subset of the checkout API the workflow needs.
type PaymentProvider interface {
	AccessToken(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, token string, in paypal.CreateOrderInput) (paypal.Order, error)
	GetOrder(ctx context.Context, token, orderID string) (paypal.Order, error)
	CaptureOrder(ctx context.Context, token, orderID string) (paypal.Order, error)
}

// LicenseIssuer mints a new license key on every call.
type LicenseIssuer interface {
	Issue(ctx context.Context, b keyauth.Binding) (string, error)
}

// Notifier delivers an issued key to the buyer.
type Notifier interface {
	SendLicense(ctx context.Context, to, licenseKey string) error
}

// Receipt is the outcome of a capture.
type Receipt struct {
	OrderID    string
	LicenseKey string
	PayerEmail string
	Emailed    bool
	Steps      []model.StepResult
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier enables emailing keys to the payer.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithTracker counts in-flight workflows on tr.
func WithTracker(tr *tracker.Tracker) Option { return func(s *Service) { s.tr = tr } }

// WithLogger sets the step logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithTracerProvider sets where step spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentation) }
}

// Service orchestrates the checkout workflow.
type Service struct {
	payments PaymentProvider
	licenses LicenseIssuer
	notifier Notifier
	tr       *tracker.Tracker
	log      *slog.Logger
	tracer   trace.Tracer
}

// New creates a Service. Payments and licenses are required.
func New(payments PaymentProvider, licenses LicenseIssuer, opts ...Option) *Service {
	if payments == nil {
		panic("order.New: nil payment provider")
	}
	if licenses == nil {
		panic("order.New: nil license issuer")
	}
	s := &Service{
		payments: payments,
		licenses: licenses,
		tr:       &tracker.Tracker{},
		log:      slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(instrumentation),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tr == nil {
		s.tr = &tracker.Tracker{}
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	return s
}

// InFlight reports how many workflows are running.
func (s *Service) InFlight() int64 { return s.tr.Running() }

// CreateOrder validates the price, registers a single-item order with the
// payment provider and returns its identifier. No license is issued here.
func (s *Service) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (string, error) {
	in, err := createInput(req)
	if err != nil {
		return "", err
	}

	defer s.tr.Track()()

	var (
		steps []model.StepResult
		token string
		order paypal.Order
	)
	run := s.recorder("", &steps)

	err = run(ctx, "token", func(ctx context.Context) (err error) {
		token, err = s.payments.AccessToken(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	err = run(ctx, "create", func(ctx context.Context) (err error) {
		order, err = s.payments.CreateOrder(ctx, token, in)
		return err
	})
	if err != nil {
		return "", err
	}
	return order.ID, nil
}

// CaptureOrder finalizes payment and issues exactly one license for a
// freshly captured order. An order that is already COMPLETED is rejected
// with apperr.ErrAlreadyCaptured without calling capture or issuance.
// Email delivery failures are logged and reflected in Receipt.Emailed only.
func (s *Service) CaptureOrder(ctx context.Context, req model.CaptureOrderRequest) (Receipt, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Receipt{}, fmt.Errorf("%w: orderID is required", apperr.ErrInvalidRequest)
	}

	defer s.tr.Track()()

	rec := Receipt{OrderID: orderID}
	run := s.recorder(orderID, &rec.Steps)

	var (
		token    string
		current  paypal.Order
		captured paypal.Order
	)

	err := run(ctx, "token", func(ctx context.Context) (err error) {
		token, err = s.payments.AccessToken(ctx)
		return err
	})
	if err != nil {
		return rec, err
	}

	err = run(ctx, "lookup", func(ctx context.Context) (err error) {
		current, err = s.payments.GetOrder(ctx, token, orderID)
		return err
	})
	if err != nil {
		return rec, err
	}
	if current.Completed() {
		s.log.InfoContext(ctx, "capture replay rejected", slog.String("order_id", orderID))
		return rec, fmt.Errorf("order %s: %w", orderID, apperr.ErrAlreadyCaptured)
	}

	err = run(ctx, "capture", func(ctx context.Context) (err error) {
		captured, err = s.payments.CaptureOrder(ctx, token, orderID)
		if err != nil {
			return err
		}
		if !captured.Completed() {
			return fmt.Errorf("%w: order %s status %q", apperr.ErrCaptureFailed, orderID, captured.Status)
		}
		return nil
	})
	if err != nil {
		return rec, err
	}

	binding := bindingFor(req, current.CustomID())
	err = run(ctx, "issue", func(ctx context.Context) (err error) {
		rec.LicenseKey, err = s.licenses.Issue(ctx, binding)
		return err
	})
	if err != nil {
		// Payment is captured but no key exists; operators must reissue by hand.
		s.log.ErrorContext(ctx, "captured order left without license",
			slog.String("order_id", orderID),
			slog.String("kind", apperr.Kind(err)),
		)
		return rec, err
	}

	rec.PayerEmail = captured.PayerEmail()
	if rec.PayerEmail == "" {
		rec.PayerEmail = current.PayerEmail()
	}
	if s.notifier == nil || rec.PayerEmail == "" {
		rec.Steps = append(rec.Steps, model.StepResult{Name: "notify", Status: "skipped"})
		return rec, nil
	}

	err = run(ctx, "notify", func(ctx context.Context) error {
		return s.notifier.SendLicense(ctx, rec.PayerEmail, rec.LicenseKey)
	})
	rec.Emailed = err == nil
	return rec, nil
}

// recorder returns a step runner that traces, times and logs each step
// and appends its result to steps.
func (s *Service) recorder(orderID string, steps *[]model.StepResult) func(context.Context, string, func(context.Context) error) error {
	return func(ctx context.Context, name string, fn func(context.Context) error) error {
		ctx, span := s.tracer.Start(ctx, "order."+name, trace.WithAttributes(attribute.String("order.id", orderID)))
		defer span.End()

		start := time.Now()
		err := fn(ctx)
		res := model.StepResult{
			Name:       name,
			Status:     "ok",
			DurationMS: time.Since(start).Milliseconds(),
		}

		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				res.Status = "canceled"
			} else {
				res.Status = "error"
			}
			res.Detail = apperr.Kind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, res.Detail)
		}
		*steps = append(*steps, res)

		attrs := []slog.Attr{
			slog.String("step", res.Name),
			slog.String("status", res.Status),
			slog.Int64("duration_ms", res.DurationMS),
		}
		if orderID != "" {
			attrs = append(attrs, slog.String("order_id", orderID))
		}
		if err != nil {
			// Full upstream diagnostics stay in the log; callers only see the kind.
			attrs = append(attrs, slog.String("kind", res.Detail), slog.String("error", err.Error()))
		}
		s.log.LogAttrs(ctx, level, "order step", attrs...)
		return err
	}
}

func createInput(req model.CreateOrderRequest) (paypal.CreateOrderInput, error) {
	if !req.Price.IsPositive() {
		return paypal.CreateOrderInput{}, fmt.Errorf("%w: price must be a positive amount", apperr.ErrInvalidRequest)
	}
	if exp := req.Price.Exponent(); exp < -maxFractionDigits || int64(exp)+int64(req.Price.NumDigits()) > maxIntegerDigits {
		return paypal.CreateOrderInput{}, fmt.Errorf("%w: price is out of range", apperr.ErrInvalidRequest)
	}

	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if code == "" {
		return paypal.CreateOrderInput{}, fmt.Errorf("%w: currency is required", apperr.ErrInvalidRequest)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return paypal.CreateOrderInput{}, fmt.Errorf("%w: unknown currency %q", apperr.ErrInvalidRequest, code)
	}

	scale, _ := currency.Standard.Rounding(unit)
	if !req.Price.Round(int32(scale)).Equal(req.Price) {
		return paypal.CreateOrderInput{}, fmt.Errorf("%w: %s allows %d decimal places", apperr.ErrInvalidRequest, code, scale)
	}

	customID := encodeCustomID(req.UserID, req.HWID)
	if len(customID) > maxCustomID {
		return paypal.CreateOrderInput{}, fmt.Errorf("%w: userID and hwid are too long", apperr.ErrInvalidRequest)
	}

	return paypal.CreateOrderInput{
		Value:    req.Price.StringFixed(int32(scale)),
		Currency: unit.String(),
		CustomID: customID,
	}, nil
}

func encodeCustomID(userID, hwid string) string {
	v := url.Values{}
	if userID = strings.TrimSpace(userID); userID != "" {
		v.Set("user", userID)
	}
	if hwid = strings.TrimSpace(hwid); hwid != "" {
		v.Set("hwid", hwid)
	}
	return v.Encode()
}

// bindingFor prefers identifiers sent with the capture and falls back to
// the ones stored on the order at creation.
func bindingFor(req model.CaptureOrderRequest, customID string) keyauth.Binding {
	b := keyauth.Binding{
		UserID: strings.TrimSpace(req.UserID),
		HWID:   strings.TrimSpace(req.HWID),
	}
	if customID == "" || (b.UserID != "" && b.HWID != "") {
		return b
	}
	stored, err := url.ParseQuery(customID)
	if err != nil {
		return b
	}
	if b.UserID == "" {
		b.UserID = stored.Get("user")
	}
	if b.HWID == "" {
		b.HWID = stored.Get("hwid")
	}
	return b
}
