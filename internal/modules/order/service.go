// README: Order lifecycle controller: creation, validated transitions, driver claims and ratings.
package order

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fooddash/internal/events"
	"fooddash/internal/types"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrConflict      = errors.New("order state conflict")
	ErrAlreadyTaken  = errors.New("order already taken by another driver")
	ErrForbidden     = errors.New("actor is not a party to this order")
	ErrBadRequest    = errors.New("bad request")
	ErrAlreadyRated  = errors.New("order already rated")
	ErrNotRateable   = errors.New("only delivered orders can be rated")
	ErrSideEffect    = errors.New("order updated but a required follow-up failed")
	errClaimRequired = errors.New("assignment goes through accept")
)

// Repository persists orders. ApplyTransition and Claim are conditional writes: they
// report false, without writing, when the stored preconditions no longer hold.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	ApplyTransition(ctx context.Context, m Mutation) (bool, error)
	Claim(ctx context.Context, m Mutation) (bool, error)
	SaveValidation(ctx context.Context, id types.ID, v *Validation) error
	SaveRating(ctx context.Context, id types.ID, r Rating) (bool, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error)
}

// Validation is the server-authoritative view of a submitted order. A non-empty
// Rejection cancels the order with that reason.
type Validation struct {
	Items            []Item
	Totals           Totals
	PriceManipulated bool
	Warnings         []string
	Rejection        string
}

type Validator interface {
	Validate(ctx context.Context, o *Order) (*Validation, error)
}

// ClaimGate holds a driver for one order while the claim write runs. Reserve must be a
// conditional write on the driver side; Unreserve drops a hold whose claim lost.
type ClaimGate interface {
	Reserve(ctx context.Context, driverID, orderID, merchantID types.ID) error
	Unreserve(ctx context.Context, driverID, orderID types.ID) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Service struct {
	repo      Repository
	validator Validator
	gate      ClaimGate
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*Service)

func WithValidator(v Validator) Option {
	return func(s *Service) { s.validator = v }
}

func WithClaimGate(g ClaimGate) Option {
	return func(s *Service) { s.gate = g }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		log:    slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer("order"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCommand struct {
	ClientID      types.ID
	MerchantID    types.ID
	Items         []Item
	Declared      Declared
	PaymentMethod PaymentMethod
}

type TransitionCommand struct {
	OrderID types.ID
	To      Status
	Actor   types.Actor
	Reason  string
}

// Create stores the submitted order and runs integrity validation before the merchant
// is told about it. Rejections cancel the order; other validation failures are logged
// and leave the order as submitted.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Create")
	defer span.End()

	if cmd.ClientID == "" || cmd.MerchantID == "" || len(cmd.Items) == 0 {
		return nil, ErrBadRequest
	}
	for _, it := range cmd.Items {
		if it.MenuItemID == "" || it.Quantity <= 0 {
			return nil, ErrBadRequest
		}
	}
	method := cmd.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	if method != PaymentCash && method != PaymentDigital {
		return nil, ErrBadRequest
	}

	now := s.now()
	o := &Order{
		ID:            types.ID(uuid.NewString()),
		Number:        newOrderNumber(now),
		ClientID:      cmd.ClientID,
		MerchantID:    cmd.MerchantID,
		Status:        StatusCreated,
		StatusVersion: 0,
		Items:         cmd.Items,
		Submitted:     cmd.Declared,
		Totals:        declaredTotals(cmd.Declared),
		Payment:       Payment{Method: method, Status: initialPaymentStatus(method)},
		Timestamps:    map[string]time.Time{StatusCreated.Milestone(): now},
		StatusHistory: []HistoryEntry{{Status: StatusCreated, At: now, Actor: cmd.ClientID}},
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("creating order: %w", err)
	}
	span.SetAttributes(attribute.String("order_id", string(o.ID)))

	if s.validator == nil {
		return o, nil
	}
	v, err := s.validator.Validate(ctx, o)
	if err != nil {
		s.log.Error("order validation failed; order left as submitted", "order_id", o.ID, "error", err)
		return o, nil
	}
	if v.Rejection != "" {
		s.log.Info("order rejected by validation", "order_id", o.ID, "reason", v.Rejection)
		return s.advance(ctx, o, StatusCancelled, types.System, v.Rejection)
	}

	if err := s.repo.SaveValidation(ctx, o.ID, v); err != nil {
		s.log.Error("saving validated totals failed", "order_id", o.ID, "error", err)
		return o, nil
	}
	o.Items = v.Items
	o.Totals = v.Totals
	o.PriceManipulated = v.PriceManipulated
	o.Warnings = v.Warnings
	o.ServerValidated = true
	if v.PriceManipulated {
		s.log.Warn("declared prices differ from menu", "order_id", o.ID, "client_id", o.ClientID)
	}

	s.publish(ctx, OrderValidated{Order: o})
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// Transition moves an order to cmd.To on behalf of cmd.Actor. A party that could
// request the current status may request it again as a no-op. A rejected request
// never touches the stored order.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Transition", trace.WithAttributes(
		attribute.String("order_id", string(cmd.OrderID)),
		attribute.String("to", string(cmd.To)),
	))
	defer span.End()

	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == cmd.To {
		if err := checkParty(o, cmd.Actor); err != nil {
			return nil, err
		}
		if !requestable(cmd.To, cmd.Actor.Role) {
			return nil, &TransitionError{From: o.Status, To: cmd.To, Role: cmd.Actor.Role}
		}
		return o, nil
	}
	if cmd.To == StatusAssigned {
		if cmd.Actor.Role != types.RoleDriver {
			return nil, fmt.Errorf("%w: %w", &TransitionError{From: o.Status, To: cmd.To, Role: cmd.Actor.Role}, errClaimRequired)
		}
		return s.Accept(ctx, cmd.OrderID, cmd.Actor)
	}
	if err := Authorize(o.Status, cmd.To, cmd.Actor.Role); err != nil {
		return nil, err
	}
	if err := checkParty(o, cmd.Actor); err != nil {
		return nil, err
	}

	o, err = s.advance(ctx, o, cmd.To, cmd.Actor, cmd.Reason)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return o, err
	}
	if o.Status == StatusReady {
		return s.startDispatch(ctx, o)
	}
	return o, nil
}

// Accept is the claim arbiter: the write only lands while the order is still searching
// and unassigned, so exactly one of any number of racing drivers wins.
func (s *Service) Accept(ctx context.Context, orderID types.ID, driver types.Actor) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Accept", trace.WithAttributes(
		attribute.String("order_id", string(orderID)),
		attribute.String("driver_id", string(driver.ID)),
	))
	defer span.End()

	if driver.Role != types.RoleDriver || driver.ID == "" {
		return nil, ErrForbidden
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != nil && *o.DriverID == driver.ID && o.Status == StatusAssigned {
		return o, nil
	}
	switch {
	case o.Status.HasDriver():
		return nil, ErrAlreadyTaken
	case o.Status != StatusSearchingDriver:
		return nil, &TransitionError{From: o.Status, To: StatusAssigned, Role: driver.Role}
	}
	if s.gate != nil {
		if err := s.gate.Reserve(ctx, driver.ID, o.ID, o.MerchantID); err != nil {
			return nil, err
		}
	}

	m := s.mutation(o, StatusAssigned, driver, "")
	id := driver.ID
	m.DriverID = &id
	ok, err := s.repo.Claim(ctx, m)
	if err != nil || !ok {
		s.unreserve(ctx, driver.ID, o.ID)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("claiming order: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyTaken
	}
	m.apply(o)
	s.log.Info("order claimed", "order_id", o.ID, "driver_id", driver.ID)

	s.publish(ctx, StatusChanged{OrderID: o.ID, From: m.From, To: m.To, Actor: driver})
	if err := s.publishCritical(ctx, OrderAssigned{OrderID: o.ID, DriverID: driver.ID}); err != nil {
		return o, err
	}
	return o, nil
}

func (s *Service) unreserve(ctx context.Context, driverID, orderID types.ID) {
	if s.gate == nil {
		return
	}
	if err := s.gate.Unreserve(ctx, driverID, orderID); err != nil {
		s.log.Error("releasing driver hold after lost claim failed", "order_id", orderID, "driver_id", driverID, "error", err)
	}
}

// Rate stores the client's rating once, only after delivery.
func (s *Service) Rate(ctx context.Context, orderID types.ID, client types.Actor, stars int, comment string) (*Order, error) {
	if stars < 1 || stars > 5 {
		return nil, ErrBadRequest
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if client.Role != types.RoleClient || o.ClientID != client.ID {
		return nil, ErrForbidden
	}
	if o.Status != StatusDelivered {
		return nil, ErrNotRateable
	}
	if o.Rating != nil {
		return nil, ErrAlreadyRated
	}
	r := Rating{Stars: stars, Comment: comment, CreatedAt: s.now()}
	ok, err := s.repo.SaveRating(ctx, o.ID, r)
	if err != nil {
		return nil, fmt.Errorf("saving rating: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRated
	}
	o.Rating = &r
	return o, nil
}

// Searching lists orders still waiting for a driver, oldest first.
func (s *Service) Searching(ctx context.Context, limit int) ([]*Order, error) {
	return s.repo.ListByStatus(ctx, StatusSearchingDriver, limit)
}

// startDispatch is the system follow-on of a ready order.
func (s *Service) startDispatch(ctx context.Context, o *Order) (*Order, error) {
	o, err := s.advance(ctx, o, StatusSearchingDriver, types.System, "")
	if err != nil {
		return o, err
	}
	s.publish(ctx, OrderReadyForDispatch{Order: o})
	return o, nil
}

// advance writes an already authorized transition and publishes its events.
func (s *Service) advance(ctx context.Context, o *Order, to Status, actor types.Actor, reason string) (*Order, error) {
	m := s.mutation(o, to, actor, reason)
	driverBefore := o.DriverID

	ok, err := s.repo.ApplyTransition(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("applying %s -> %s: %w", m.From, m.To, err)
	}
	if !ok {
		return nil, ErrConflict
	}
	m.apply(o)
	s.log.Info("order status changed", "order_id", o.ID, "from", m.From, "to", m.To, "actor", actor.ID)

	s.publish(ctx, StatusChanged{OrderID: o.ID, From: m.From, To: m.To, Actor: actor})
	switch to {
	case StatusDelivered:
		e := OrderDelivered{Order: o}
		if o.DriverID != nil {
			e.DriverID = *o.DriverID
		}
		if err := s.publishCritical(ctx, e); err != nil {
			return o, err
		}
	case StatusCancelled:
		if err := s.publishCritical(ctx, OrderCancelled{Order: o, From: m.From, Actor: actor, DriverID: driverBefore}); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (s *Service) mutation(o *Order, to Status, actor types.Actor, reason string) Mutation {
	now := s.now()
	m := Mutation{
		OrderID: o.ID,
		From:    o.Status,
		Version: o.StatusVersion,
		To:      to,
		At:      now,
		Entry:   HistoryEntry{Status: to, At: now, Actor: actor.ID, Reason: reason},
	}
	switch to {
	case StatusDelivered:
		if o.IsCash() {
			p := o.Payment
			p.Status = PaymentCollected
			p.PaidAt = &now
			p.CashCollected = o.Totals.Total
			m.Payment = &p
		}
	case StatusCancelled:
		r := reason
		if r == "" {
			r = "cancelled by " + string(actor.Role)
		}
		m.CancelReason = &r
		m.ClearDriver = o.DriverID != nil
	}
	return m
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publishing order event failed", "event", e.Name(), "error", err)
	}
}

func (s *Service) publishCritical(ctx context.Context, e events.Event) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		return fmt.Errorf("%w: %w", ErrSideEffect, err)
	}
	return nil
}

// checkParty makes sure clients, merchants and drivers only act on their own orders.
func checkParty(o *Order, a types.Actor) error {
	switch a.Role {
	case types.RoleClient:
		if o.ClientID != a.ID {
			return ErrForbidden
		}
	case types.RoleMerchant:
		if o.MerchantID != a.PartyID() {
			return ErrForbidden
		}
	case types.RoleDriver:
		if o.DriverID == nil || *o.DriverID != a.ID {
			return ErrForbidden
		}
	}
	return nil
}

func declaredTotals(d Declared) Totals {
	t := Totals{Subtotal: d.Subtotal, Discount: d.Discount, Total: d.Total}
	if d.DeliveryFee != nil {
		t.DeliveryFee = *d.DeliveryFee
	}
	if d.ServiceFee != nil {
		t.ServiceFee = *d.ServiceFee
	}
	return t
}

func initialPaymentStatus(m PaymentMethod) PaymentStatus {
	if m == PaymentCash {
		return PaymentPendingCash
	}
	return PaymentPending
}

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newOrderNumber renders ORD-YYYYMMDD-XXXXXX with a random base-36 suffix.
func newOrderNumber(at time.Time) string {
	suffix := make([]byte, 6)
	base := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			n = big.NewInt((at.UnixNano() + int64(i)) % base.Int64())
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), suffix)
}
