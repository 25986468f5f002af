// README: Order store backed by PostgreSQL; offers and locations live in JSONB columns.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"haul/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const orderColumns = `
	id, client_id, item_type, category, weight, weight_unit, vehicle_type,
	pickup, destination, distance_km, suggested_price, currency,
	status, status_version, offers, accepted_offer_id, driver_position, eta_minutes,
	cancel_reason, created_at, updated_at,
	broadcast_at, accepted_at, picked_up_at, delivered_at, cancelled_at`

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21,
			$22, $23, $24, $25, $26
		)`, args...)
	return createErr(err)
}

const (
	uniqueViolation  = "23505"
	activeOrderIndex = "uq_orders_client_active"
)

// createErr maps a clash on the one-live-order index to ErrActiveOrder.
func createErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeOrderIndex {
		return ErrActiveOrder
	}
	return errors.Wrap(err, "insert order")
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *PGStore) Update(ctx context.Context, o *Order, expectedVersion int) (bool, error) {
	args, err := orderArgs(o)
	if err != nil {
		return false, err
	}
	args = append(args, expectedVersion)
	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET
			client_id = $2, item_type = $3, category = $4, weight = $5, weight_unit = $6, vehicle_type = $7,
			pickup = $8, destination = $9, distance_km = $10, suggested_price = $11, currency = $12,
			status = $13, status_version = $14, offers = $15, accepted_offer_id = $16,
			driver_position = $17, eta_minutes = $18, cancel_reason = $19,
			created_at = $20, updated_at = $21,
			broadcast_at = $22, accepted_at = $23, picked_up_at = $24, delivered_at = $25, cancelled_at = $26
		WHERE id = $1 AND status_version = $27 AND archived_at IS NULL`, args...)
	if err != nil {
		return false, errors.Wrap(err, "update order")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AppendTransition(ctx context.Context, t *Transition) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_transitions (
			order_id, from_status, to_status, actor_type, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(t.OrderID),
		string(t.FromStatus),
		string(t.ToStatus),
		t.ActorType,
		toStringPtr(t.ActorID),
		t.Reason,
		t.CreatedAt,
	)
	return errors.Wrap(err, "append transition")
}

func (s *PGStore) Transitions(ctx context.Context, id types.ID) ([]Transition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, reason, created_at
		FROM order_transitions
		WHERE order_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "list transitions")
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var actorID sql.NullString
		if err := rows.Scan(&t.ID, &t.OrderID, &t.FromStatus, &t.ToStatus, &t.ActorType, &actorID, &t.Reason, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transition")
		}
		if actorID.Valid {
			a := types.ID(actorID.String)
			t.ActorID = &a
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "list transitions")
}

func (s *PGStore) HasActiveByClient(ctx context.Context, clientID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE client_id = $1
			  AND archived_at IS NULL
			  AND status IN ('IDLE','CONFIGURING','SEARCHING','NEGOTIATING','ACCEPTED','PICKED_UP')
		)`, string(clientID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check active order")
	}
	return exists, nil
}

func (s *PGStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*Order, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = ANY($1) AND archived_at IS NULL
		ORDER BY created_at, id`, names)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	return out, errors.Wrap(rows.Err(), "list orders")
}

func (s *PGStore) Archive(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET archived_at = COALESCE(archived_at, NOW())
		WHERE id = $1`, string(id))
	if err != nil {
		return errors.Wrap(err, "archive order")
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func orderArgs(o *Order) ([]any, error) {
	pickup, err := json.Marshal(o.Pickup)
	if err != nil {
		return nil, errors.Wrap(err, "marshal pickup")
	}
	offers := o.Offers
	if offers == nil {
		offers = []DriverOffer{}
	}
	offersJSON, err := json.Marshal(offers)
	if err != nil {
		return nil, errors.Wrap(err, "marshal offers")
	}
	dest, err := jsonPtr(o.Destination)
	if err != nil {
		return nil, err
	}
	pos, err := jsonPtr(o.DriverPosition)
	if err != nil {
		return nil, err
	}
	return []any{
		string(o.ID),
		string(o.ClientID),
		o.Cargo.ItemType,
		string(o.Cargo.Category),
		o.Cargo.Weight,
		string(o.Cargo.WeightUnit),
		string(o.Cargo.VehicleType),
		string(pickup),
		dest,
		o.DistanceKm,
		o.SuggestedPrice.Amount,
		o.SuggestedPrice.Currency,
		string(o.Status),
		o.StatusVersion,
		string(offersJSON),
		o.AcceptedOfferID,
		pos,
		o.ETAMinutes,
		o.CancelReason,
		o.CreatedAt,
		o.UpdatedAt,
		o.BroadcastAt,
		o.AcceptedAt,
		o.PickedUpAt,
		o.DeliveredAt,
		o.CancelledAt,
	}, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var category, unit, vehicle string
	var pickup, offers []byte
	var dest, pos []byte
	var acceptedOfferID, cancelReason sql.NullString
	var broadcastAt, acceptedAt, pickedUpAt, deliveredAt, cancelledAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.ClientID, &o.Cargo.ItemType, &category, &o.Cargo.Weight, &unit, &vehicle,
		&pickup, &dest, &o.DistanceKm, &o.SuggestedPrice.Amount, &o.SuggestedPrice.Currency,
		&o.Status, &o.StatusVersion, &offers, &acceptedOfferID, &pos, &o.ETAMinutes,
		&cancelReason, &o.CreatedAt, &o.UpdatedAt,
		&broadcastAt, &acceptedAt, &pickedUpAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	o.Cargo.Category = Category(category)
	o.Cargo.WeightUnit = WeightUnit(unit)
	o.Cargo.VehicleType = types.VehicleType(vehicle)

	if err := json.Unmarshal(pickup, &o.Pickup); err != nil {
		return nil, errors.Wrap(err, "decode pickup")
	}
	if err := json.Unmarshal(offers, &o.Offers); err != nil {
		return nil, errors.Wrap(err, "decode offers")
	}
	if o.Destination, err = decodeLocation(dest); err != nil {
		return nil, errors.Wrap(err, "decode destination")
	}
	if o.DriverPosition, err = decodeLocation(pos); err != nil {
		return nil, errors.Wrap(err, "decode driver position")
	}
	if acceptedOfferID.Valid {
		o.AcceptedOfferID = &acceptedOfferID.String
	}
	if cancelReason.Valid {
		o.CancelReason = &cancelReason.String
	}
	o.BroadcastAt = toTimePtr(broadcastAt)
	o.AcceptedAt = toTimePtr(acceptedAt)
	o.PickedUpAt = toTimePtr(pickedUpAt)
	o.DeliveredAt = toTimePtr(deliveredAt)
	o.CancelledAt = toTimePtr(cancelledAt)
	if o.SuggestedPrice.Currency == "" {
		o.SuggestedPrice.Currency = types.DefaultCurrency
	}
	return &o, nil
}

func jsonPtr(l *types.Location) (*string, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, errors.Wrap(err, "marshal location")
	}
	s := string(b)
	return &s, nil
}

func decodeLocation(b []byte) (*types.Location, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var l types.Location
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
