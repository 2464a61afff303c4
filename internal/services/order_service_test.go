package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unlockdesk/internal/models"
	"unlockdesk/internal/request"
	"unlockdesk/internal/schema"
	"unlockdesk/internal/store"
)

type fakeStore struct {
	orders     map[int64]*models.Order
	nextID     int64
	created    []*models.Order
	fields     []models.OrderField
	statements []*models.Statement
	sells      map[int64]int

	createErr error
	txErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[int64]*models.Order),
		nextID: 100,
		sells:  make(map[int64]int),
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	if err := fn(nil); err != nil {
		// Rollback: drop everything the closure created.
		for _, o := range f.created {
			delete(f.orders, o.ID)
		}
		f.created = nil
		f.fields = nil
		return err
	}
	return nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	order.ID = f.nextID
	f.orders[order.ID] = order
	f.created = append(f.created, order)
	return nil
}

func (f *fakeStore) InsertOrderFields(ctx context.Context, tx pgx.Tx, fields []models.OrderField) error {
	f.fields = append(f.fields, fields...)
	return nil
}

func (f *fakeStore) FindOrder(ctx context.Context, customerID, orderID int64) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok || o.CustomerID != customerID {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) FindOrders(ctx context.Context, customerID int64, ids []int64) (map[int64]*models.Order, error) {
	out := make(map[int64]*models.Order)
	for _, id := range ids {
		if o, ok := f.orders[id]; ok && o.CustomerID == customerID {
			out[id] = o
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementSells(ctx context.Context, serviceID int64) error {
	f.sells[serviceID]++
	return nil
}

func (f *fakeStore) InsertStatement(ctx context.Context, st *models.Statement) error {
	f.statements = append(f.statements, st)
	return nil
}

type fakeCatalog struct {
	services map[int64]*models.Service
	fields   map[int64][]models.ServiceField
}

func (f *fakeCatalog) GetService(ctx context.Context, id int64) (*models.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return svc, nil
}

func (f *fakeCatalog) GetServiceFields(ctx context.Context, serviceID int64) ([]models.ServiceField, error) {
	return f.fields[serviceID], nil
}

type fakeLedger struct {
	balance decimal.Decimal
	debits  []decimal.Decimal
	err     error
}

func (f *fakeLedger) AuthorizeAndDebit(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.balance.LessThan(amount) {
		return false, nil
	}
	f.balance = f.balance.Sub(amount)
	f.debits = append(f.debits, amount)
	return true, nil
}

func (f *fakeLedger) CurrentBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	return f.balance, nil
}

type fakePricer struct {
	price  decimal.Decimal
	priced bool
	err    error
}

func (f *fakePricer) Price(ctx context.Context, serviceID, customerID int64, quantity int) (decimal.Decimal, bool, error) {
	return f.price, f.priced, f.err
}

type fakeDispatcher struct {
	inventory []int64
	async     []int64
}

func (f *fakeDispatcher) ConsumeInventory(referenceID string, orderID int64) {
	f.inventory = append(f.inventory, orderID)
}

func (f *fakeDispatcher) DispatchAsyncFulfillment(serviceID, orderID int64) {
	f.async = append(f.async, orderID)
}

type fakeNotifier struct {
	customer int
	operator int
}

func (f *fakeNotifier) NotifyCustomer(customer *models.Customer, order *models.Order) { f.customer++ }
func (f *fakeNotifier) NotifyOperator(customer *models.Customer, order *models.Order) { f.operator++ }

type fixture struct {
	svc      *OrderService
	store    *fakeStore
	ledger   *fakeLedger
	pricer   *fakePricer
	dispatch *fakeDispatcher
	notify   *fakeNotifier
	customer *models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStore()
	ledger := &fakeLedger{balance: decimal.NewFromInt(100)}
	pricer := &fakePricer{price: decimal.NewFromFloat(9.50), priced: true}
	dispatch := &fakeDispatcher{}
	notify := &fakeNotifier{}

	catalog := &fakeCatalog{
		services: map[int64]*models.Service{
			5: {
				ID: 5, Title: "iPhone Unlock", ServiceType: models.ServiceTypeIMEI,
				ProcessType: models.ProcessManual, Status: models.ServiceActive,
			},
			6: {
				ID: 6, Title: "Code Inventory", ServiceType: models.ServiceTypeIMEI,
				ProcessType: models.ProcessInventory, Status: models.ServiceActive,
				ReferenceID: "codes-a",
			},
			7: {
				ID: 7, Title: "Remote Flash", ServiceType: models.ServiceTypeServer,
				ProcessType: models.ProcessAPI, Status: models.ServiceActive, APIID: 2,
			},
			8: {
				ID: 8, Title: "Retired", ServiceType: models.ServiceTypeIMEI,
				ProcessType: models.ProcessManual, Status: models.ServiceInactive,
			},
			9: {
				ID: 9, Title: "Free Check", ServiceType: models.ServiceTypeIMEI,
				ProcessType: models.ProcessManual, Status: models.ServiceActive,
				FreeService: true,
			},
		},
		fields: map[int64][]models.ServiceField{
			5: {{ID: 1, ServiceID: 5, Name: "IMEI"}},
			6: {{ID: 2, ServiceID: 6, Name: "IMEI"}},
			7: {{ID: 3, ServiceID: 7, Name: "Username"}, {ID: 4, ServiceID: 7, Name: "MEP"}},
			9: {{ID: 5, ServiceID: 9, Name: "IMEI"}},
		},
	}

	customer := &models.Customer{
		ID: 10, Name: "Acme Wireless", Email: "api@acme.test",
		APIAllow: true, Status: "Active", Currency: "USD",
	}

	return &fixture{
		svc: &OrderService{
			Store:   st,
			Catalog: catalog,
			Ledger:  ledger,
			Pricing: pricer,
			Fulfill: dispatch,
			Notify:  notify,
			Log:     zap.NewNop(),
		},
		store:    st,
		ledger:   ledger,
		pricer:   pricer,
		dispatch: dispatch,
		notify:   notify,
		customer: customer,
	}
}

func orderParams(serviceID string, extra string) string {
	return "<PARAMETERS><ID>" + serviceID + "</ID>" + extra + "</PARAMETERS>"
}

func customBlob(body string) string {
	return "<CUSTOMFIELD>" + base64.StdEncoding.EncodeToString([]byte(body)) + "</CUSTOMFIELD>"
}

func TestPlaceOrderManualService(t *testing.T) {
	fx := newFixture(t)

	id, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
		orderParams("5", "<IMEI>356938035643809</IMEI>"))
	require.NoError(t, err)
	require.NotZero(t, id)

	order := fx.store.orders[id]
	require.NotNil(t, order)
	require.Equal(t, models.OrderWaitingAction, order.Status)
	require.Equal(t, "356938035643809", order.FirstInput)
	require.Equal(t, "paid", order.InvoiceStatus)
	require.Equal(t, "My Funds", order.PaymentMethod)
	require.Equal(t, "-", order.TrxID)
	require.True(t, order.Price.Equal(decimal.NewFromFloat(9.50)))

	require.Len(t, fx.ledger.debits, 1)
	require.True(t, fx.ledger.debits[0].Equal(decimal.NewFromFloat(9.50)))
	require.Equal(t, 1, fx.store.sells[5])
	require.Len(t, fx.store.statements, 1)
	require.Equal(t, models.StatementDebit, fx.store.statements[0].Kind)
	require.NotEmpty(t, fx.store.statements[0].Reference)
	require.Equal(t, 1, fx.notify.customer)
	require.Equal(t, 1, fx.notify.operator)

	require.Empty(t, fx.dispatch.inventory)
	require.Empty(t, fx.dispatch.async)

	require.Len(t, fx.store.fields, 1)
	require.Equal(t, models.OrderField{OrderID: id, Name: "IMEI", Value: "356938035643809"}, fx.store.fields[0])
}

func TestPlaceOrderInventoryServiceCompletesImmediately(t *testing.T) {
	fx := newFixture(t)

	id, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
		orderParams("6", "<IMEI>356938035643809</IMEI>"))
	require.NoError(t, err)

	require.Equal(t, models.OrderSuccess, fx.store.orders[id].Status)
	require.Equal(t, []int64{id}, fx.dispatch.inventory)
	require.Empty(t, fx.dispatch.async)
}

func TestPlaceOrderAPIServiceDispatchesAsync(t *testing.T) {
	fx := newFixture(t)

	id, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
		orderParams("7", customBlob(`{"Username":"tech1","MEP":"MEP-04598"}`)))
	require.NoError(t, err)

	order := fx.store.orders[id]
	require.Equal(t, models.OrderWaitingAction, order.Status)
	require.Equal(t, "tech1", order.FirstInput)
	require.Equal(t, []int64{id}, fx.dispatch.async)
}

func TestPlaceOrderFreeService(t *testing.T) {
	fx := newFixture(t)
	fx.pricer.priced = false

	id, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
		orderParams("9", "<IMEI>356938035643809</IMEI>"))
	require.NoError(t, err)

	require.True(t, fx.store.orders[id].Price.IsZero())
	require.Len(t, fx.ledger.debits, 1)
	require.True(t, fx.ledger.debits[0].IsZero())
}

func TestPlaceOrderErrors(t *testing.T) {
	t.Run("unknown service", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer, orderParams("999", ""))
		require.ErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("inactive service", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
			orderParams("8", "<IMEI>356938035643809</IMEI>"))
		require.ErrorIs(t, err, ErrServiceNotFound)
	})

	t.Run("malformed parameters", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer, "<PARAMETERS></PARAMETERS>")
		require.ErrorIs(t, err, request.ErrMalformed)
	})

	t.Run("missing primary", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer, orderParams("5", ""))
		require.ErrorIs(t, err, schema.ErrMissingPrimary)
	})

	t.Run("missing required field", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
			orderParams("7", customBlob(`{"Username":"tech1"}`)))
		var missing schema.MissingFieldError
		require.ErrorAs(t, err, &missing)
		require.Equal(t, "MEP", missing.Field)
	})

	t.Run("unpriced paid service", func(t *testing.T) {
		fx := newFixture(t)
		fx.pricer.priced = false
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
			orderParams("5", "<IMEI>356938035643809</IMEI>"))
		require.ErrorIs(t, err, ErrPricing)
		require.Empty(t, fx.ledger.debits)
		require.Empty(t, fx.store.orders)
	})

	t.Run("zero price paid service", func(t *testing.T) {
		fx := newFixture(t)
		fx.pricer.price = decimal.Zero
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
			orderParams("5", "<IMEI>356938035643809</IMEI>"))
		require.ErrorIs(t, err, ErrPricing)
	})

	t.Run("insufficient balance leaves no order", func(t *testing.T) {
		fx := newFixture(t)
		fx.ledger.balance = decimal.NewFromInt(1)
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
			orderParams("5", "<IMEI>356938035643809</IMEI>"))
		require.ErrorIs(t, err, ErrInsufficientBalance)
		require.Empty(t, fx.store.orders)
		require.Empty(t, fx.store.statements)
		require.Equal(t, 0, fx.notify.customer)
		require.Empty(t, fx.dispatch.inventory)
		require.Empty(t, fx.dispatch.async)
	})

	t.Run("failed insert keeps balance", func(t *testing.T) {
		fx := newFixture(t)
		fx.store.createErr = errors.New("insert failed")
		_, err := fx.svc.PlaceOrder(context.Background(), fx.customer,
			orderParams("5", "<IMEI>356938035643809</IMEI>"))
		require.Error(t, err)
		require.Empty(t, fx.store.orders)
	})
}

func TestOrderStatus(t *testing.T) {
	fx := newFixture(t)
	fx.store.orders[200] = &models.Order{ID: 200, CustomerID: 10, Status: models.OrderSuccess, Comments: "code: 12345"}
	fx.store.orders[201] = &models.Order{ID: 201, CustomerID: 99, Status: models.OrderSuccess}

	res, err := fx.svc.OrderStatus(context.Background(), 10, 200)
	require.NoError(t, err)
	require.Equal(t, StatusResult{Code: models.StatusCodeSuccess, Comments: "code: 12345"}, res)

	_, err = fx.svc.OrderStatus(context.Background(), 10, 404)
	require.ErrorIs(t, err, ErrOrderNotFound)

	// Another customer's order is invisible.
	_, err = fx.svc.OrderStatus(context.Background(), 10, 201)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderStatusCodes(t *testing.T) {
	tests := []struct {
		status models.OrderStatus
		code   int
	}{
		{models.OrderWaitingAction, 0},
		{models.OrderInProcess, 1},
		{models.OrderRejected, 3},
		{models.OrderSuccess, 4},
		{models.OrderStatus("On Hold"), -1},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			fx := newFixture(t)
			fx.store.orders[300] = &models.Order{ID: 300, CustomerID: 10, Status: tt.status}
			res, err := fx.svc.OrderStatus(context.Background(), 10, 300)
			require.NoError(t, err)
			require.Equal(t, tt.code, res.Code)
		})
	}
}

func TestOrderStatusBulk(t *testing.T) {
	fx := newFixture(t)
	fx.store.orders[1] = &models.Order{ID: 1, CustomerID: 10, Status: models.OrderSuccess, Comments: "done"}
	fx.store.orders[2] = &models.Order{ID: 2, CustomerID: 10, Status: models.OrderInProcess}

	res, err := fx.svc.OrderStatusBulk(context.Background(), 10, "1,2,999")
	require.NoError(t, err)
	require.Equal(t, "1,2,999", res.EchoID)
	require.Len(t, res.Entries, 3)

	require.Equal(t, BulkStatusEntry{ID: 1, Found: true, Code: 4, Comments: "done"}, res.Entries[0])
	require.Equal(t, BulkStatusEntry{ID: 2, Found: true, Code: 1}, res.Entries[1])
	require.Equal(t, BulkStatusEntry{ID: 999}, res.Entries[2])
}

func TestOrderStatusBulkNonNumericTokens(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.svc.OrderStatusBulk(context.Background(), 10, "abc, 7 ,")
	require.NoError(t, err)
	require.Equal(t, "0,7,0", res.EchoID)
	require.Len(t, res.Entries, 3)
	require.False(t, res.Entries[0].Found)
}

func TestOrderStatusBulkScopedToCustomer(t *testing.T) {
	fx := newFixture(t)
	fx.store.orders[5] = &models.Order{ID: 5, CustomerID: 99, Status: models.OrderSuccess}

	res, err := fx.svc.OrderStatusBulk(context.Background(), 10, "5")
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.False(t, res.Entries[0].Found)
}
