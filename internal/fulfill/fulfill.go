// Package fulfill routes freshly created orders to their fulfillment
// backend. Both entry points are fire-and-forget: the placement
// response never waits on them, and their failures only log.
package fulfill

import (
	"context"
	"strconv"
	"time"

	"unlockdesk/internal/provider"
	"unlockdesk/internal/store"

	"go.uber.org/zap"
)

type Dispatcher struct {
	Store    *store.Store
	Provider *provider.Client
	Log      *zap.Logger
}

func New(st *store.Store, pc *provider.Client, log *zap.Logger) *Dispatcher {
	return &Dispatcher{Store: st, Provider: pc, Log: log}
}

// ConsumeInventory attaches one stocked code to an inventory-backed
// order. The order was already created as Success; only the comments
// field gains the delivered code.
func (d *Dispatcher) ConsumeInventory(referenceID string, orderID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		code, err := d.Store.PopInventoryCode(ctx, referenceID, orderID)
		if err != nil {
			d.Log.Warn("inventory pop failed",
				zap.Int64("order_id", orderID),
				zap.String("reference_id", referenceID),
				zap.Error(err))
			return
		}
		if err := d.Store.UpdateOrderComments(ctx, orderID, code); err != nil {
			d.Log.Error("inventory code attach failed",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()
}

// DispatchAsyncFulfillment submits an Api-type order to the remote
// provider and marks it In Process. The terminal status arrives later
// through the worker.
func (d *Dispatcher) DispatchAsyncFulfillment(serviceID, orderID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		order, err := d.Store.FindOrderByID(ctx, orderID)
		if err != nil {
			d.Log.Error("dispatch load order failed",
				zap.Int64("order_id", orderID), zap.Error(err))
			return
		}
		fields, err := d.Store.GetOrderFields(ctx, orderID)
		if err != nil {
			d.Log.Error("dispatch load fields failed",
				zap.Int64("order_id", orderID), zap.Error(err))
			return
		}

		sub := provider.Submission{
			Reference: strconv.FormatInt(orderID, 10),
			APIID:     order.APIID,
			ServiceID: order.RemoteServiceID,
			Fields:    make(map[string]string, len(fields)+1),
		}
		if order.FirstInput != "" {
			sub.Fields["imei"] = order.FirstInput
		}
		for _, f := range fields {
			sub.Fields[f.Name] = f.Value
		}

		res, err := d.Provider.Submit(ctx, sub)
		if err != nil {
			d.Log.Error("provider submit failed",
				zap.Int64("order_id", orderID), zap.Error(err))
			return
		}
		if err := d.Store.MarkOrderDispatched(ctx, orderID, res.RemoteID); err != nil {
			d.Log.Error("mark dispatched failed",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
		d.Log.Info("order dispatched",
			zap.Int64("order_id", orderID),
			zap.String("remote_id", res.RemoteID))
	}()
}
