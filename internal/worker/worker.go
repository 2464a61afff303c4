// Package worker closes the loop on Api-type orders: it polls the
// remote provider for dispatched orders and applies terminal results.
// It is the only writer of order status after dispatch; it never
// touches balances.
package worker

import (
	"context"
	"strconv"
	"time"

	"unlockdesk/internal/models"
	"unlockdesk/internal/provider"

	"go.uber.org/zap"
)

type OrderSync interface {
	ListDispatchedOrders(ctx context.Context) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus, comments string) error
}

type ResultSource interface {
	Result(ctx context.Context, remoteID string) (provider.OrderResult, error)
}

type Worker struct {
	Store      OrderSync
	Provider   ResultSource
	Interval   time.Duration
	WSEndpoint string
	WSAPIKey   string
	Log        *zap.Logger
}

func (w *Worker) Run(ctx context.Context) {
	go w.RunWS(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.SyncOnce(ctx); err != nil {
			w.Log.Error("sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) SyncOnce(ctx context.Context) error {
	orders, err := w.Store.ListDispatchedOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	w.Log.Debug("polling provider", zap.Int("pending", len(orders)))

	for _, order := range orders {
		res, err := w.Provider.Result(ctx, order.RemoteOrderID)
		if err != nil {
			w.Log.Warn("provider poll failed",
				zap.Int64("order_id", order.ID),
				zap.String("remote_id", order.RemoteOrderID),
				zap.Error(err))
			continue
		}
		if err := w.applyResult(ctx, order.ID, res.Status, res.Code); err != nil {
			w.Log.Error("apply result failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	return nil
}

// applyResult maps a provider result onto the order. Pending results
// are a no-op; unknown statuses are logged and skipped rather than
// guessed at.
func (w *Worker) applyResult(ctx context.Context, orderID int64, status, code string) error {
	var next models.OrderStatus
	switch status {
	case provider.ResultSuccess:
		next = models.OrderSuccess
	case provider.ResultRejected:
		next = models.OrderRejected
	case provider.ResultPending:
		return nil
	default:
		w.Log.Warn("unknown provider status",
			zap.Int64("order_id", orderID), zap.String("status", status))
		return nil
	}

	if err := w.Store.UpdateOrderStatus(ctx, orderID, next, code); err != nil {
		return err
	}
	w.Log.Info("order resolved",
		zap.Int64("order_id", orderID),
		zap.String("status", string(next)))
	return nil
}

// RunWS consumes the provider's push stream so results land before the
// next poll tick. Connection loss falls back to reconnect with a short
// pause; polling covers any events missed in between.
func (w *Worker) RunWS(ctx context.Context) {
	if w.WSEndpoint == "" {
		w.Log.Info("ws disabled: endpoint is empty")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client := provider.NewWSClient(w.WSEndpoint)
		if err := client.Connect(ctx); err != nil {
			w.Log.Warn("ws connect failed", zap.Error(err))
			time.Sleep(3 * time.Second)
			continue
		}
		w.Log.Info("ws connected", zap.String("endpoint", w.WSEndpoint))

		if err := client.Subscribe(w.WSAPIKey); err != nil {
			w.Log.Warn("ws subscribe failed", zap.Error(err))
			client.Close()
			time.Sleep(3 * time.Second)
			continue
		}

		for {
			msg, err := client.Read(ctx)
			if err != nil {
				w.Log.Warn("ws read failed", zap.Error(err))
				client.Close()
				break
			}

			event, ok, err := provider.ParseEvent(msg)
			if err != nil {
				w.Log.Warn("ws parse failed", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			orderID, err := strconv.ParseInt(event.Reference, 10, 64)
			if err != nil {
				w.Log.Warn("ws bad reference", zap.String("reference", event.Reference))
				continue
			}
			if err := w.applyResult(ctx, orderID, event.Status, event.Code); err != nil {
				w.Log.Error("ws apply result failed", zap.Int64("order_id", orderID), zap.Error(err))
			}
		}

		time.Sleep(2 * time.Second)
	}
}
