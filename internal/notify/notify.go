// Package notify queues order notifications for the mail sender.
// Best effort only: a failed insert is logged and forgotten, it never
// changes a placement outcome.
package notify

import (
	"context"
	"fmt"
	"time"

	"unlockdesk/internal/models"
	"unlockdesk/internal/store"

	"go.uber.org/zap"
)

type Notifier struct {
	Store         *store.Store
	OperatorEmail string
	Log           *zap.Logger
}

func New(st *store.Store, operatorEmail string, log *zap.Logger) *Notifier {
	return &Notifier{Store: st, OperatorEmail: operatorEmail, Log: log}
}

func (n *Notifier) NotifyCustomer(customer *models.Customer, order *models.Order) {
	n.enqueue(models.AudienceCustomer, customer.Email, order)
}

func (n *Notifier) NotifyOperator(customer *models.Customer, order *models.Order) {
	if n.OperatorEmail == "" {
		return
	}
	n.enqueue(models.AudienceOperator, n.OperatorEmail, order)
}

func (n *Notifier) enqueue(audience, recipient string, order *models.Order) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := n.Store.InsertMailNotification(ctx, &models.MailNotification{
			Audience:  audience,
			Recipient: recipient,
			Subject:   fmt.Sprintf("Order #%d: %s", order.ID, order.ServiceTitle),
			OrderID:   order.ID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			n.Log.Warn("notification enqueue failed",
				zap.String("audience", audience),
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}()
}
