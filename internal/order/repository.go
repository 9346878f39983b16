package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultQueryTimeout = 5 * time.Second

const orderColumns = `
	id, order_number, customer_id, establishment_id, driver_id,
	subtotal, delivery_fee, discount, total, payment_method, payment_status,
	delivery_address, delivery_lat, delivery_lng, neighborhood_id,
	distance_km, duration_min, fee_source,
	status, created_at, confirmed_at, preparing_at, ready_at,
	picked_up_at, delivered_at, cancelled_at, cancellation_reason`

// lifecycleStamps lists stamp columns in lifecycle order; a new stamp is never
// earlier than any stamp before it.
var lifecycleStamps = []string{
	"created_at",
	"confirmed_at",
	"preparing_at",
	"ready_at",
	"picked_up_at",
	"delivered_at",
}

type Repository interface {
	Create(ctx context.Context, p NewOrderParams, actor auth.Actor) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByStatus(ctx context.Context, establishmentID uuid.UUID, status Status) ([]*Order, error)
	ListAvailable(ctx context.Context, limit int) ([]*Order, error)
	GetActiveForDriver(ctx context.Context, driverID uuid.UUID) (*Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error)

	// UpdateStatus returns nil, nil when the guard did not match.
	UpdateStatus(ctx context.Context, w StatusWrite) (*Order, error)
	// Claim returns nil, nil when the order was not ready and unclaimed.
	Claim(ctx context.Context, orderID, driverID uuid.UUID) (*Order, error)
}

type repository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db, timeout: defaultQueryTimeout}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.EstablishmentID, &o.DriverID,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total, &o.PaymentMethod, &o.PaymentStatus,
		&o.DeliveryAddress, &o.DeliveryLat, &o.DeliveryLng, &o.NeighborhoodID,
		&o.DistanceKm, &o.DurationMin, &o.FeeSource,
		&o.Status, &o.CreatedAt, &o.ConfirmedAt, &o.PreparingAt, &o.ReadyAt,
		&o.PickedUpAt, &o.DeliveredAt, &o.CancelledAt, &o.CancellationReason,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, p NewOrderParams, actor auth.Actor) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Create"),
		zap.String("establishment_id", p.EstablishmentID.String()),
	)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			customer_id, establishment_id, subtotal, delivery_fee, discount, total,
			payment_method, payment_status, delivery_address, delivery_lat, delivery_lng,
			neighborhood_id, distance_km, duration_min, fee_source, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING`+orderColumns,
		p.CustomerID,
		p.EstablishmentID,
		p.Subtotal,
		p.DeliveryFee,
		p.Discount,
		p.Total,
		p.PaymentMethod,
		PaymentStatusPending,
		p.DeliveryAddress,
		p.DeliveryLat,
		p.DeliveryLng,
		p.NeighborhoodID,
		p.DistanceKm,
		p.DurationMin,
		p.FeeSource,
		StatusPending,
	)
	o, err := scanOrder(row)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return nil, err
	}

	if err := insertStatusLog(ctx, tx, o.ID, nil, StatusPending, actor, nil, o.CreatedAt); err != nil {
		log.Error("failed to insert status log", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order", zap.Error(err))
		return nil, err
	}

	log.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.Int64("order_number", o.OrderNumber),
	)
	return o, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) ListByStatus(ctx context.Context, establishmentID uuid.UUID, status Status) ([]*Order, error) {
	return r.list(ctx, "ListByStatus", `
		SELECT`+orderColumns+`
		FROM orders
		WHERE establishment_id = $1 AND status = $2
		ORDER BY created_at ASC`,
		establishmentID, status,
	)
}

// ListAvailable returns the dispatch pool, oldest ready first.
func (r *repository) ListAvailable(ctx context.Context, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, "ListAvailable", `
		SELECT`+orderColumns+`
		FROM orders
		WHERE status = 'ready' AND driver_id IS NULL
		ORDER BY ready_at ASC
		LIMIT $1`,
		limit,
	)
}

func (r *repository) list(ctx context.Context, method, query string, args ...any) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", method),
	)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	log.Debug("orders fetched", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) GetActiveForDriver(ctx context.Context, driverID uuid.UUID) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders
		WHERE driver_id = $1 AND status = 'out_for_delivery'
		ORDER BY picked_up_at DESC
		LIMIT 1`, driverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) History(ctx context.Context, orderID uuid.UUID) ([]*StatusChange, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, actor_role, actor_id, note, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.OrderID, &c.FromStatus, &c.ToStatus,
			&c.ActorRole, &c.ActorID, &c.Note, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// stampExpr never lets the new stamp precede an earlier one, even when the
// database clock steps backwards.
func stampExpr(to Status) string {
	col := to.stampColumn()
	earlier := lifecycleStamps
	for i, c := range lifecycleStamps {
		if c == col {
			earlier = lifecycleStamps[:i]
			break
		}
	}
	return fmt.Sprintf("%s = GREATEST(now(), %s)", col, strings.Join(earlier, ", "))
}

func (r *repository) UpdateStatus(ctx context.Context, w StatusWrite) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateStatus"),
		zap.String("order_id", w.OrderID.String()),
		zap.String("from", string(w.From)),
		zap.String("to", string(w.To)),
	)

	set := []string{"status = $3", stampExpr(w.To)}
	args := []any{w.OrderID, w.From, w.To}
	if w.To == StatusCancelled {
		args = append(args, w.Reason)
		set = append(set, fmt.Sprintf("cancellation_reason = $%d", len(args)))
	}
	where := "id = $1 AND status = $2"
	if w.DriverID != nil {
		args = append(args, *w.DriverID)
		where += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}

	query := fmt.Sprintf(`
		UPDATE orders
		SET %s
		WHERE %s
		RETURNING`+orderColumns, strings.Join(set, ", "), where)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("guarded status write matched no row")
		return nil, nil
	}
	if err != nil {
		log.Error("failed to update status", zap.Error(err))
		return nil, err
	}

	from := w.From
	if err := insertStatusLog(ctx, tx, o.ID, &from, w.To, w.Actor, w.Reason, *o.StampFor(w.To)); err != nil {
		log.Error("failed to insert status log", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit status write", zap.Error(err))
		return nil, err
	}
	return o, nil
}

// Claim is one conditional write; the affected row count decides the winner.
func (r *repository) Claim(ctx context.Context, orderID, driverID uuid.UUID) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Claim"),
		zap.String("order_id", orderID.String()),
		zap.String("driver_id", driverID.String()),
	)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET driver_id = $2, status = 'out_for_delivery', `+stampExpr(StatusOutForDelivery)+`
		WHERE id = $1 AND status = 'ready' AND driver_id IS NULL`,
		orderID, driverID,
	)
	if err != nil {
		log.Error("claim write failed", zap.Error(err))
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		log.Info("claim lost")
		return nil, nil
	}

	o, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		log.Error("failed to read claimed order", zap.Error(err))
		return nil, err
	}

	from := StatusReady
	actor := auth.Actor{ID: driverID, Role: auth.RoleCourier}
	if err := insertStatusLog(ctx, tx, orderID, &from, StatusOutForDelivery, actor, nil, *o.PickedUpAt); err != nil {
		log.Error("failed to insert status log", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit claim", zap.Error(err))
		return nil, err
	}

	log.Info("claim won")
	return o, nil
}

func insertStatusLog(
	ctx context.Context,
	tx *sql.Tx,
	orderID uuid.UUID,
	from *Status,
	to Status,
	actor auth.Actor,
	note *string,
	at time.Time,
) error {
	var actorID *string
	if actor.ID != uuid.Nil {
		id := actor.ID.String()
		actorID = &id
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_log (
			order_id, from_status, to_status, actor_role, actor_id, note, changed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		orderID, from, to, actor.Role, actorID, note, at,
	)
	return err
}
