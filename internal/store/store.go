package store

import (
	"context"
	"errors"

	"unlockdesk/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// WithTx runs fn inside a single transaction. The balance debit, the
// order row and its field rows all go through here so they commit or
// roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetCustomerByCredentials(ctx context.Context, email, apiKey string) (*models.Customer, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, email, api_key, api_allow, status, balance, currency
		FROM customers WHERE email=$1 AND api_key=$2
	`, email, apiKey)

	var c models.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.APIKey, &c.APIAllow, &c.Status, &c.Balance, &c.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (*models.Service, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, service_group, title, service_type, process_type, status,
			free_service, min_qnt, max_qnt, api_id, reference_id, delivery_time, sells
		FROM services WHERE id=$1
	`, id)

	var svc models.Service
	err := row.Scan(
		&svc.ID, &svc.GroupID, &svc.Title, &svc.ServiceType, &svc.ProcessType,
		&svc.Status, &svc.FreeService, &svc.MinQty, &svc.MaxQty, &svc.APIID,
		&svc.ReferenceID, &svc.DeliveryTime, &svc.Sells,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// GetServiceFields returns the declared input fields in declaration
// order; the order decides which field is primary for IMEI services.
func (s *Store) GetServiceFields(ctx context.Context, serviceID int64) ([]models.ServiceField, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, service_id, name FROM service_inputs
		WHERE service_id=$1 ORDER BY id
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []models.ServiceField
	for rows.Next() {
		var f models.ServiceField
		if err := rows.Scan(&f.ID, &f.ServiceID, &f.Name); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (s *Store) ListActiveGroups(ctx context.Context) ([]models.ServiceGroup, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, type, status FROM service_groups
		WHERE status=$1 ORDER BY name
	`, models.ServiceActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.ServiceGroup
	for rows.Next() {
		var g models.ServiceGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Type, &g.Status); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) ListActiveServices(ctx context.Context, groupID int64) ([]models.Service, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, service_group, title, service_type, process_type, status,
			free_service, min_qnt, max_qnt, api_id, reference_id, delivery_time, sells
		FROM services
		WHERE service_group=$1 AND status=$2
		ORDER BY title DESC
	`, groupID, models.ServiceActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(
			&svc.ID, &svc.GroupID, &svc.Title, &svc.ServiceType, &svc.ProcessType,
			&svc.Status, &svc.FreeService, &svc.MinQty, &svc.MaxQty, &svc.APIID,
			&svc.ReferenceID, &svc.DeliveryTime, &svc.Sells,
		); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *Store) CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	row := tx.QueryRow(ctx, `
		INSERT INTO orders (
			customer_id, customer_name, invoice_status, currency,
			service_type, service_id, service_title, service_qnt, service_price,
			payment_method, trx_id, service_status, process_type,
			api_id, remote_service_id, service_input1, service_comments, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id
	`,
		order.CustomerID,
		order.CustomerName,
		order.InvoiceStatus,
		order.Currency,
		order.ServiceType,
		order.ServiceID,
		order.ServiceTitle,
		order.Quantity,
		order.Price,
		order.PaymentMethod,
		order.TrxID,
		order.Status,
		order.ProcessType,
		order.APIID,
		order.RemoteServiceID,
		order.FirstInput,
		order.Comments,
		order.CreatedAt,
	)
	return row.Scan(&order.ID)
}

func (s *Store) InsertOrderFields(ctx context.Context, tx pgx.Tx, fields []models.OrderField) error {
	for _, f := range fields {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_inputs (order_id, field_name, field_value)
			VALUES ($1,$2,$3)
		`, f.OrderID, f.Name, f.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `
	id, customer_id, customer_name, invoice_status, currency,
	service_type, service_id, service_title, service_qnt, service_price,
	payment_method, trx_id, service_status, process_type,
	api_id, remote_service_id, remote_order_id, service_input1, service_comments, created_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerName, &o.InvoiceStatus, &o.Currency,
		&o.ServiceType, &o.ServiceID, &o.ServiceTitle, &o.Quantity, &o.Price,
		&o.PaymentMethod, &o.TrxID, &o.Status, &o.ProcessType,
		&o.APIID, &o.RemoteServiceID, &o.RemoteOrderID, &o.FirstInput, &o.Comments, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// FindOrder looks up one order scoped to a customer. Orders of other
// customers behave exactly like missing ones.
func (s *Store) FindOrder(ctx context.Context, customerID, orderID int64) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND customer_id=$2`, orderID, customerID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindOrderByID looks up an order without customer scoping. Internal
// callers only (fulfillment, worker); the API paths go through
// FindOrder.
func (s *Store) FindOrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindOrders resolves a batch of ids in one query.
func (s *Store) FindOrders(ctx context.Context, customerID int64, ids []int64) (map[int64]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id=$1 AND id=ANY($2)`, customerID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*models.Order, len(ids))
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out[order.ID] = order
	}
	return out, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus, comments string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE orders SET service_status=$2, service_comments=$3 WHERE id=$1
	`, orderID, status, comments)
	return err
}

func (s *Store) UpdateOrderComments(ctx context.Context, orderID int64, comments string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE orders SET service_comments=$2 WHERE id=$1
	`, orderID, comments)
	return err
}

// MarkOrderDispatched records a successful hand-off to the remote
// provider: the order leaves the manual queue and carries the remote
// reference the worker polls on.
func (s *Store) MarkOrderDispatched(ctx context.Context, orderID int64, remoteOrderID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE orders SET service_status=$2, remote_order_id=$3 WHERE id=$1
	`, orderID, models.OrderInProcess, remoteOrderID)
	return err
}

func (s *Store) ListDispatchedOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE process_type=$1 AND service_status=$2 AND remote_order_id <> ''
	`, models.ProcessAPI, models.OrderInProcess)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *Store) GetOrderFields(ctx context.Context, orderID int64) ([]models.OrderField, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT order_id, field_name, field_value FROM order_inputs
		WHERE order_id=$1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []models.OrderField
	for rows.Next() {
		var f models.OrderField
		if err := rows.Scan(&f.OrderID, &f.Name, &f.Value); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (s *Store) IncrementSells(ctx context.Context, serviceID int64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE services SET sells = sells + 1 WHERE id=$1`, serviceID)
	return err
}

func (s *Store) InsertStatement(ctx context.Context, st *models.Statement) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO statements (
			customer_id, description, kind, amount, order_id,
			service_title, balance, reference, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		st.CustomerID, st.Description, st.Kind, st.Amount, st.OrderID,
		st.ServiceTitle, st.Balance, st.Reference, st.CreatedAt,
	)
	return err
}

func (s *Store) InsertMailNotification(ctx context.Context, m *models.MailNotification) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO mail_queue (audience, recipient, subject, order_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, m.Audience, m.Recipient, m.Subject, m.OrderID, m.CreatedAt)
	return err
}

// PopInventoryCode hands out one unused code from the service's stock
// pool. SKIP LOCKED keeps concurrent inventory orders from fighting
// over the same row.
func (s *Store) PopInventoryCode(ctx context.Context, referenceID string, orderID int64) (string, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE inventory_codes
		SET used=true, order_id=$2, used_at=now()
		WHERE id = (
			SELECT id FROM inventory_codes
			WHERE reference_id=$1 AND NOT used
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING code
	`, referenceID, orderID)

	var code string
	err := row.Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

// SettingEnabled reads a boolean system flag (maintenance mode, demo
// mode) by its settings index.
func (s *Store) SettingEnabled(ctx context.Context, index int) (bool, error) {
	row := s.Pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE index=$1`, index)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return v == "1", nil
}
