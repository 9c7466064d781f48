// Package ordering validates an order against the business calendar and hands
// accepted orders to the backend.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"servedate/internal/events"
	"servedate/internal/metrics"
	"servedate/internal/ordercache"
	"servedate/internal/servedate"
	"servedate/internal/slots"
)

// Menu is one requested menu line.
type Menu struct {
	ID                int64  `json:"menu_id"`
	Title             string `json:"title,omitempty"`
	Qty               int    `json:"qty"`
	Price             int    `json:"price,omitempty"`
	CafeTimeAvailable bool   `json:"cafe_time_available"`
}

// Request is an order as entered by the customer. ServeDate may be a date
// key or any timestamp form the normalizer understands.
type Request struct {
	ServeDate   string              `json:"serve_date"`
	RequestTime string              `json:"request_time"`
	Customer    ordercache.Customer `json:"customer"`
	Menus       []Menu              `json:"menus"`
}

// Order is a validated request.
type Order struct {
	SubmissionID string              `json:"submission_id,omitempty"`
	ServeDate    servedate.Key       `json:"serve_date"`
	Slot         slots.TimeSlot      `json:"-"`
	RequestTime  string              `json:"request_time"`
	Band         slots.Band          `json:"band"`
	Customer     ordercache.Customer `json:"customer"`
	Menus        []Menu              `json:"menus"`
}

// Sender delivers an accepted order to the ordering backend.
type Sender interface {
	Send(ctx context.Context, order Order) error
}

// OrderStore remembers the last submitted order.
type OrderStore interface {
	Save(ctx context.Context, order ordercache.CachedOrder) (ordercache.CachedOrder, error)
}

// Submitter validates and submits orders.
type Submitter struct {
	evaluator  *slots.Evaluator
	windowDays int
	sender     Sender
	store      OrderStore
	bus        *events.EventBus
	logger     *zerolog.Logger
	newID      func() string
}

// NewSubmitter creates a Submitter. windowDays <= 0 selects the default
// window. store and bus may be nil.
func NewSubmitter(evaluator *slots.Evaluator, windowDays int, sender Sender, store OrderStore, bus *events.EventBus, logger *zerolog.Logger) *Submitter {
	if windowDays <= 0 {
		windowDays = servedate.DefaultWindowDays
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Submitter{
		evaluator:  evaluator,
		windowDays: windowDays,
		sender:     sender,
		store:      store,
		bus:        bus,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Window returns the orderable window starting today.
func (s *Submitter) Window() servedate.Window {
	w, _ := servedate.BuildWindowFrom(s.evaluator.Today(), s.windowDays)
	return w
}

// Prepare validates req. Rejections are *ValidationError.
func (s *Submitter) Prepare(req Request) (Order, error) {
	order, err := s.prepare(req)
	code := "ok"
	var verr *ValidationError
	if errors.As(err, &verr) {
		code = verr.Code
	}
	metrics.IncOrderDecision(code)
	return order, err
}

func (s *Submitter) prepare(req Request) (Order, error) {
	key, err := servedate.ToKey(req.ServeDate)
	if err != nil {
		return Order{}, reject(ErrInvalidServeDate, "serve date %q could not be read", req.ServeDate)
	}

	window := s.Window()
	if !servedate.InRange(window.Start(), window.End(), key) {
		return Order{}, reject(ErrServeDateOutOfWindow, "serve date %s is outside %s..%s", key, window.Start(), window.End())
	}

	if s.evaluator.IsDailyCutoffExpired() {
		return Order{}, reject(ErrCafeTimeClosed, "orders close at %s", s.evaluator.CutoffAt().Format("15:04"))
	}

	slot, band, ok := s.evaluator.Lookup(req.RequestTime)
	if !ok {
		return Order{}, reject(ErrInvalidTimeslot, "time %q is not an offered slot", req.RequestTime)
	}

	if s.evaluator.IsSlotExpired(slot, key) {
		return Order{}, reject(ErrTimeSlotExpired, "slot %s on %s has already started", slot, key)
	}

	if band == slots.BandCafe {
		for _, m := range req.Menus {
			if !m.CafeTimeAvailable {
				return Order{}, reject(ErrMenuNotAvailable, "menu %d is not served during cafe time", m.ID)
			}
		}
	}

	return Order{
		ServeDate:   key,
		Slot:        slot,
		RequestTime: slot.String(),
		Band:        band,
		Customer:    req.Customer,
		Menus:       req.Menus,
	}, nil
}

// Submit validates req, sends it and remembers it as today's last order.
// A failure to cache the order after a successful send is logged only.
func (s *Submitter) Submit(ctx context.Context, req Request) (Order, error) {
	order, err := s.Prepare(req)
	if err != nil {
		return Order{}, err
	}
	order.SubmissionID = s.newID()

	start := time.Now()
	if err := s.sender.Send(ctx, order); err != nil {
		return Order{}, fmt.Errorf("send order: %w", err)
	}

	s.logger.Info().
		Str("submission_id", order.SubmissionID).
		Str("serve_date", order.ServeDate.String()).
		Str("slot", order.RequestTime).
		Dur("duration", time.Since(start)).
		Msg("order submitted")

	if s.store != nil {
		order.Customer.RequestTime = order.RequestTime
		if _, err := s.store.Save(ctx, toCached(order)); err != nil {
			s.logger.Warn().Err(err).Str("submission_id", order.SubmissionID).Msg("failed to cache submitted order")
		}
	}

	if s.bus != nil {
		if err := s.bus.PublishJSON(events.TypeOrderSubmitted, events.OrderSubmitted{
			SubmissionID: order.SubmissionID,
			ServeDate:    order.ServeDate.String(),
			Slot:         order.RequestTime,
		}); err != nil {
			s.logger.Error().Err(err).Msg("failed to publish order submission")
		}
	}

	return order, nil
}

func toCached(order Order) ordercache.CachedOrder {
	menus := make([]ordercache.SelectedMenu, 0, len(order.Menus))
	for _, m := range order.Menus {
		menus = append(menus, ordercache.SelectedMenu{MenuID: m.ID, Title: m.Title, Qty: m.Qty, Price: m.Price})
	}
	return ordercache.CachedOrder{
		OrderServeDate: order.ServeDate,
		Customer:       order.Customer,
		Menus:          menus,
		SubmissionID:   order.SubmissionID,
	}
}
