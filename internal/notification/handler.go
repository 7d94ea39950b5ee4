package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/email"
	"github.com/example/storefront/internal/event"
	"github.com/example/storefront/internal/infrastructure/storage"
)

// sentTTL bounds how long a delivered confirmation is remembered
const sentTTL = 7 * 24 * time.Hour

// Sender delivers order confirmation emails
type Sender interface {
	SendOrderConfirmation(to string, c email.Confirmation) error
}

// Handler processes events for sending notifications
type Handler struct {
	sender Sender
	sent   storage.KV
	logger *zap.Logger
}

// NewHandler creates a new notification handler. sent may be nil, in which case
// redelivered events are mailed again.
func NewHandler(sender Sender, sent storage.KV, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sender: sender,
		sent:   sent,
		logger: logger.Named("notifier"),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, e event.Event) error {
	switch e.Type {
	case event.TypeOrderConfirmed:
		return h.handleOrderConfirmed(ctx, e)
	case event.TypePendingOrderQueued:
		var p order.PendingOrderQueued
		if err := e.Decode(&p); err != nil {
			return err
		}
		h.logger.Warn("Order queued locally, awaiting sync",
			zap.String("order_id", p.OrderID),
			zap.String("payment_id", p.PaymentID),
			zap.String("reason", p.Reason))
	}
	return nil
}

func (h *Handler) handleOrderConfirmed(ctx context.Context, e event.Event) error {
	var c order.OrderConfirmed
	if err := e.Decode(&c); err != nil {
		return err
	}

	to := strings.TrimSpace(c.CustomerEmail)
	if to == "" {
		h.logger.Info("No customer email, skipping confirmation", zap.String("order_id", c.OrderID))
		return nil
	}

	key := "notified:" + c.OrderID
	if h.sent != nil {
		_, err := h.sent.Get(ctx, key)
		switch {
		case err == nil:
			h.logger.Debug("Confirmation already sent", zap.String("order_id", c.OrderID))
			return nil
		case !errors.Is(err, storage.ErrNotFound):
			h.logger.Warn("Failed to check delivery record", zap.String("order_id", c.OrderID), zap.Error(err))
		}
	}

	if err := h.sender.SendOrderConfirmation(to, toConfirmation(c)); err != nil {
		return fmt.Errorf("failed to send confirmation for %s: %w", c.OrderID, err)
	}
	h.logger.Info("Sent order confirmation",
		zap.String("order_id", c.OrderID),
		zap.String("to", to))

	if h.sent != nil {
		if err := h.sent.Set(ctx, key, []byte(e.ID), sentTTL); err != nil {
			h.logger.Warn("Failed to record delivery", zap.String("order_id", c.OrderID), zap.Error(err))
		}
	}
	return nil
}

func toConfirmation(c order.OrderConfirmed) email.Confirmation {
	items := make([]email.OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		variant := strings.Trim(strings.Join([]string{it.Color, it.Size}, " / "), " /")
		items = append(items, email.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Variant:   variant,
			Quantity:  it.Quantity,
			Price:     decimal.NewFromFloat(it.Price),
		})
	}
	return email.Confirmation{
		OrderID:       c.OrderID,
		CustomerName:  c.CustomerName,
		PaymentMethod: c.PaymentMethod,
		Total:         decimal.NewFromFloat(c.Total),
		Items:         items,
	}
}
