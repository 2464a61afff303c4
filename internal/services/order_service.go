package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"unlockdesk/internal/models"
	"unlockdesk/internal/request"
	"unlockdesk/internal/schema"
	"unlockdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrServiceNotFound     = errors.New("service not found or inactive")
	ErrPricing             = errors.New("balance process error")
	ErrInsufficientBalance = errors.New("not enough balance")
	ErrOrderNotFound       = errors.New("order not found")
)

type Catalog interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetServiceFields(ctx context.Context, serviceID int64) ([]models.ServiceField, error)
}

type OrderStore interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error
	InsertOrderFields(ctx context.Context, tx pgx.Tx, fields []models.OrderField) error
	FindOrder(ctx context.Context, customerID, orderID int64) (*models.Order, error)
	FindOrders(ctx context.Context, customerID int64, ids []int64) (map[int64]*models.Order, error)
	IncrementSells(ctx context.Context, serviceID int64) error
	InsertStatement(ctx context.Context, st *models.Statement) error
}

type BalanceLedger interface {
	AuthorizeAndDebit(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) (bool, error)
	CurrentBalance(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

type Pricer interface {
	Price(ctx context.Context, serviceID, customerID int64, quantity int) (decimal.Decimal, bool, error)
}

type Dispatcher interface {
	ConsumeInventory(referenceID string, orderID int64)
	DispatchAsyncFulfillment(serviceID, orderID int64)
}

type Notifier interface {
	NotifyCustomer(customer *models.Customer, order *models.Order)
	NotifyOperator(customer *models.Customer, order *models.Order)
}

type OrderService struct {
	Store   OrderStore
	Catalog Catalog
	Ledger  BalanceLedger
	Pricing Pricer
	Fulfill Dispatcher
	Notify  Notifier
	Log     *zap.Logger
}

// PlaceOrder runs one placement end to end: decode, validate against
// the service schema, price, debit-and-create atomically, then hand
// off to fulfillment. It returns the new order id.
//
// No order row exists unless the debit committed, and no debit
// survives a failed order insert: both run in one transaction.
func (s *OrderService) PlaceOrder(ctx context.Context, customer *models.Customer, rawParams string) (int64, error) {
	req, err := request.DecodeOrder(rawParams)
	if err != nil {
		return 0, err
	}

	svc, err := s.Catalog.GetService(ctx, req.ServiceID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrServiceNotFound
	}
	if err != nil {
		return 0, err
	}
	if svc.Status == models.ServiceInactive {
		return 0, ErrServiceNotFound
	}

	declared, err := s.Catalog.GetServiceFields(ctx, svc.ID)
	if err != nil {
		return 0, err
	}
	if err := schema.Validate(svc, declared, req.Primary, req.Fields); err != nil {
		return 0, err
	}

	price, priced, err := s.Pricing.Price(ctx, svc.ID, customer.ID, req.Quantity)
	if err != nil {
		return 0, err
	}
	if (!priced || !price.IsPositive()) && !svc.FreeService {
		return 0, ErrPricing
	}
	if svc.FreeService {
		price = decimal.Zero
	}

	order := s.newOrder(customer, svc, req, price)
	fields := orderFields(svc, declared, req)

	err = s.Store.WithTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.Ledger.AuthorizeAndDebit(ctx, tx, customer.ID, price)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		if err := s.Store.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		for i := range fields {
			fields[i].OrderID = order.ID
		}
		return s.Store.InsertOrderFields(ctx, tx, fields)
	})
	if err != nil {
		return 0, err
	}

	s.afterPlacement(ctx, customer, svc, order)

	switch svc.ProcessType {
	case models.ProcessInventory:
		s.Fulfill.ConsumeInventory(svc.ReferenceID, order.ID)
	case models.ProcessAPI:
		s.Fulfill.DispatchAsyncFulfillment(svc.ID, order.ID)
	}

	return order.ID, nil
}

func (s *OrderService) newOrder(customer *models.Customer, svc *models.Service, req request.Order, price decimal.Decimal) *models.Order {
	status := models.OrderWaitingAction
	if svc.ProcessType == models.ProcessInventory {
		status = models.OrderSuccess
	}

	firstInput := req.Primary
	if svc.ServiceType != models.ServiceTypeIMEI {
		firstInput = ""
		if f, ok := req.Fields.First(); ok {
			firstInput = f.Value
		}
	}

	return &models.Order{
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		InvoiceStatus:   "paid",
		Currency:        customer.Currency,
		ServiceType:     svc.ServiceType,
		ServiceID:       svc.ID,
		ServiceTitle:    svc.Title,
		Quantity:        req.Quantity,
		Price:           price,
		PaymentMethod:   "My Funds",
		TrxID:           "-",
		Status:          status,
		ProcessType:     svc.ProcessType,
		APIID:           svc.APIID,
		RemoteServiceID: svc.ReferenceID,
		FirstInput:      firstInput,
		CreatedAt:       time.Now().UTC(),
	}
}

// orderFields collects the rows persisted next to the order: the
// primary field for IMEI services, then every accepted required
// secondary field.
func orderFields(svc *models.Service, declared []models.ServiceField, req request.Order) []models.OrderField {
	var fields []models.OrderField
	primary, required := schema.Resolve(svc, declared)
	if svc.ServiceType == models.ServiceTypeIMEI && primary != "" {
		fields = append(fields, models.OrderField{Name: primary, Value: req.Primary})
	}
	for _, name := range required {
		if v, ok := req.Fields.Get(name); ok && v != "" {
			fields = append(fields, models.OrderField{Name: name, Value: v})
		}
	}
	return fields
}

// afterPlacement runs the non-transactional side effects. They are
// best effort: the order is committed, so failures only log.
func (s *OrderService) afterPlacement(ctx context.Context, customer *models.Customer, svc *models.Service, order *models.Order) {
	if err := s.Store.IncrementSells(ctx, svc.ID); err != nil {
		s.Log.Warn("sells increment failed", zap.Int64("service_id", svc.ID), zap.Error(err))
	}

	balance, err := s.Ledger.CurrentBalance(ctx, customer.ID)
	if err != nil {
		s.Log.Warn("balance read for statement failed", zap.Int64("customer_id", customer.ID), zap.Error(err))
	} else {
		st := &models.Statement{
			CustomerID:   customer.ID,
			Description:  "Place Order (Api)",
			Kind:         models.StatementDebit,
			Amount:       order.Price,
			OrderID:      order.ID,
			ServiceTitle: order.ServiceTitle,
			Balance:      balance,
			Reference:    uuid.NewString(),
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.Store.InsertStatement(ctx, st); err != nil {
			s.Log.Warn("statement insert failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	s.Notify.NotifyCustomer(customer, order)
	s.Notify.NotifyOperator(customer, order)
}

type StatusResult struct {
	Code     int
	Comments string
}

// OrderStatus resolves one order scoped to the customer and maps its
// internal status to the external code.
func (s *OrderService) OrderStatus(ctx context.Context, customerID, orderID int64) (StatusResult, error) {
	order, err := s.Store.FindOrder(ctx, customerID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return StatusResult{}, ErrOrderNotFound
	}
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		Code:     models.ExternalStatusCode(order.Status),
		Comments: order.Comments,
	}, nil
}

type BulkStatusEntry struct {
	ID       int64
	Found    bool
	Code     int
	Comments string
}

type BulkStatusResult struct {
	Entries []BulkStatusEntry
	EchoID  string
}

// OrderStatusBulk resolves a comma-separated id list in one store
// lookup. Entries come back in the caller's order; a missing id yields
// a not-found entry, never a batch failure. Non-numeric tokens coerce
// to zero, which matches no order.
func (s *OrderService) OrderStatusBulk(ctx context.Context, customerID int64, rawIDs string) (BulkStatusResult, error) {
	tokens := strings.Split(rawIDs, ",")
	ids := make([]int64, 0, len(tokens))
	for _, tok := range tokens {
		id, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
		if err != nil {
			id = 0
		}
		ids = append(ids, id)
	}

	orders, err := s.Store.FindOrders(ctx, customerID, ids)
	if err != nil {
		return BulkStatusResult{}, err
	}

	echo := make([]string, 0, len(ids))
	entries := make([]BulkStatusEntry, 0, len(ids))
	for _, id := range ids {
		echo = append(echo, strconv.FormatInt(id, 10))
		order, ok := orders[id]
		if !ok {
			entries = append(entries, BulkStatusEntry{ID: id})
			continue
		}
		entries = append(entries, BulkStatusEntry{
			ID:       id,
			Found:    true,
			Code:     models.ExternalStatusCode(order.Status),
			Comments: order.Comments,
		})
	}

	return BulkStatusResult{Entries: entries, EchoID: strings.Join(echo, ",")}, nil
}
