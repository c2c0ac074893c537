// README: Order store backed by PostgreSQL; every status write is a compare-and-update.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parcel/internal/types"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrDuplicateNumber = errors.New("order number already taken")
)

const uniqueViolation = "23505"

// Patch lists the columns written together with a status change. Nil fields
// keep their stored value.
type Patch struct {
	RiderAcceptedAt         *time.Time
	CustomerLocationSetAt   *time.Time
	PackagePickedUpAt       *time.Time
	DeliveryStartedAt       *time.Time
	ArrivedAtLocationAt     *time.Time
	DeliveredAt             *time.Time
	CancelledAt             *time.Time
	CancelledBy             *types.ID
	CancellationReason      *string
	CustomerLocationLabel   *string
	CustomerLocationPrecise *string
}

type Filter struct {
	OrgID      *types.ID
	CustomerID *types.ID
	RiderID    *types.ID
	Status     *Status
	Limit      int
	Offset     int
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, order_number, org_id, customer_id, rider_id, status, status_version,
	package_description, rider_current_location,
	customer_location_label, customer_location_precise,
	assigned_at, rider_accepted_at, customer_location_set_at, package_picked_up_at,
	delivery_started_at, arrived_at_location_at, delivered_at, cancelled_at,
	cancelled_by, cancellation_reason, created_at, updated_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, org_id, customer_id, rider_id, status, status_version,
			package_description, assigned_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $10
		)`,
		string(o.ID),
		o.OrderNumber,
		string(o.OrgID),
		string(o.CustomerID),
		string(o.RiderID),
		string(o.Status),
		o.StatusVersion,
		o.PackageDescription,
		o.AssignedAt,
		o.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "order_number") {
		return ErrDuplicateNumber
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]*Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OrgID != nil {
		add("org_id = $%d", string(*f.OrgID))
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", string(*f.CustomerID))
	}
	if f.RiderID != nil {
		add("rider_id = $%d", string(*f.RiderID))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus moves the order from -> to only if nobody changed it since it was
// read at version. It reports false when the row no longer matches.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, p Patch) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
			status_version = status_version + 1,
			updated_at = NOW(),
			rider_accepted_at = COALESCE($2, rider_accepted_at),
			customer_location_set_at = COALESCE($3, customer_location_set_at),
			package_picked_up_at = COALESCE($4, package_picked_up_at),
			delivery_started_at = COALESCE($5, delivery_started_at),
			arrived_at_location_at = COALESCE($6, arrived_at_location_at),
			delivered_at = COALESCE($7, delivered_at),
			cancelled_at = COALESCE($8, cancelled_at),
			cancelled_by = COALESCE($9, cancelled_by),
			cancellation_reason = COALESCE($10, cancellation_reason),
			customer_location_label = COALESCE($11, customer_location_label),
			customer_location_precise = COALESCE($12, customer_location_precise)
		WHERE id = $13 AND status = $14 AND status_version = $15`,
		string(to),
		p.RiderAcceptedAt,
		p.CustomerLocationSetAt,
		p.PackagePickedUpAt,
		p.DeliveryStartedAt,
		p.ArrivedAtLocationAt,
		p.DeliveredAt,
		p.CancelledAt,
		toStringPtr(p.CancelledBy),
		p.CancellationReason,
		p.CustomerLocationLabel,
		p.CustomerLocationPrecise,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetRiderLocation stores the rider's last position. Terminal orders are left
// untouched and false is returned.
func (s *Store) SetRiderLocation(ctx context.Context, id types.ID, coords string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET rider_current_location = $1,
			updated_at = NOW()
		WHERE id = $2 AND status NOT IN ('delivered', 'cancelled')`,
		coords,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_role, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.ActorRole),
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var cancelledBy *string
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.OrgID, &o.CustomerID, &o.RiderID, &o.Status, &o.StatusVersion,
		&o.PackageDescription, &o.RiderCurrentLocation,
		&o.CustomerLocationLabel, &o.CustomerLocationPrecise,
		&o.AssignedAt, &o.RiderAcceptedAt, &o.CustomerLocationSetAt, &o.PackagePickedUpAt,
		&o.DeliveryStartedAt, &o.ArrivedAtLocationAt, &o.DeliveredAt, &o.CancelledAt,
		&cancelledBy, &o.CancellationReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledBy != nil {
		id := types.ID(*cancelledBy)
		o.CancelledBy = &id
	}
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
