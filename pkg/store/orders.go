package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/models"
	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/orderfsm"
)

var (
	ErrNoLines       = errors.New("transfer order needs at least one line")
	ErrOrderNotFound = errors.New("transfer order not found")
)

type ordersDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// execer covers both the pool and an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OrderRepo is the pgx-backed order persistence collaborator. The
// uniqueness constraint on idempotency_key is the authoritative exact
// de-duplication mechanism: a conflicting insert is a no-op and the
// existing order is returned instead.
type OrderRepo struct {
	DB  ordersDB
	now func() time.Time
}

func NewOrderRepo(db ordersDB) *OrderRepo {
	return &OrderRepo{DB: db, now: time.Now}
}

// Create inserts the order, its lines and a "created" audit event in one
// transaction, so a stored order always has its lines. When the
// idempotency key already exists the stored order is returned and
// nothing new is written.
func (r *OrderRepo) Create(ctx context.Context, order *models.TransferOrder) (*models.TransferOrder, error) {
	if order == nil || len(order.Lines) == 0 {
		return nil, ErrNoLines
	}
	now := r.now().UTC()
	reasonRaw, err := json.Marshal(order.Reason)
	if err != nil {
		return nil, fmt.Errorf("marshal reason: %w", err)
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()
	tag, err := tx.Exec(ctx, `
		INSERT INTO transfer_orders
		(transfer_id, source_hub, dest_store, status, priority, reason, confidence, requested_by, idempotency_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, order.TransferID, order.SourceHub, order.DestStore, order.Status, order.Priority, reasonRaw, order.Confidence, order.RequestedBy, order.IdempotencyKey, now)
	if err != nil {
		return nil, fmt.Errorf("insert transfer order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race or retried an identical proposal. The re-read
		// happens outside the tx: the conflicting insert has committed
		// with its lines by the time DO NOTHING reports zero rows.
		_ = tx.Rollback(ctx)
		existing, err := r.getByIdempotencyKey(ctx, order.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("load existing order for idempotency key: %w", err)
		}
		return existing, nil
	}
	for _, line := range order.Lines {
		rationaleRaw, err := json.Marshal(line.Rationale)
		if err != nil {
			return nil, fmt.Errorf("marshal line rationale: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO transfer_lines (transfer_id, sku, qty, unit, rationale)
			VALUES ($1,$2,$3,$4,$5)
		`, order.TransferID, line.SKU, line.Qty, line.Unit, rationaleRaw); err != nil {
			return nil, fmt.Errorf("insert transfer line: %w", err)
		}
	}
	if err := r.appendAudit(ctx, tx, models.AuditEvent{
		TransferID: order.TransferID,
		EventType:  "created",
		StatusTo:   order.Status,
		Actor:      order.RequestedBy,
	}); err != nil {
		return nil, fmt.Errorf("append created audit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer order: %w", err)
	}
	created := *order
	created.Persisted = true
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetByTransferID returns the order with its lines, or (nil, nil) when
// absent.
func (r *OrderRepo) GetByTransferID(ctx context.Context, transferID string) (*models.TransferOrder, error) {
	return r.getOrder(ctx, `WHERE transfer_id=$1`, transferID)
}

func (r *OrderRepo) getByIdempotencyKey(ctx context.Context, key string) (*models.TransferOrder, error) {
	return r.getOrder(ctx, `WHERE idempotency_key=$1`, key)
}

func (r *OrderRepo) getOrder(ctx context.Context, where string, arg any) (*models.TransferOrder, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT transfer_id, source_hub, dest_store, status, priority, reason, confidence, requested_by, idempotency_key, created_at, updated_at
		FROM transfer_orders `+where, arg)
	var order models.TransferOrder
	var reasonRaw []byte
	err := row.Scan(&order.TransferID, &order.SourceHub, &order.DestStore, &order.Status, &order.Priority,
		&reasonRaw, &order.Confidence, &order.RequestedBy, &order.IdempotencyKey, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load transfer order: %w", err)
	}
	if len(reasonRaw) > 0 {
		if err := json.Unmarshal(reasonRaw, &order.Reason); err != nil {
			return nil, fmt.Errorf("decode reason: %w", err)
		}
	}
	order.Persisted = true
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, qty, unit, rationale
		FROM transfer_lines WHERE transfer_id=$1 ORDER BY id
	`, order.TransferID)
	if err != nil {
		return nil, fmt.Errorf("load transfer lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line models.TransferLine
		var rationaleRaw []byte
		if err := rows.Scan(&line.ID, &line.SKU, &line.Qty, &line.Unit, &rationaleRaw); err != nil {
			return nil, fmt.Errorf("scan transfer line: %w", err)
		}
		if len(rationaleRaw) > 0 {
			if err := json.Unmarshal(rationaleRaw, &line.Rationale); err != nil {
				return nil, fmt.Errorf("decode line rationale: %w", err)
			}
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer lines: %w", err)
	}
	return &order, nil
}

// UpdateStatus applies an FSM-checked transition and audits it. Returns
// false when the order does not exist; an illegal transition is an error.
func (r *OrderRepo) UpdateStatus(ctx context.Context, transferID, newStatus, actor, note string) (bool, error) {
	if !models.ValidStatus(newStatus) {
		return false, fmt.Errorf("%w: %q", orderfsm.ErrInvalidTransition, newStatus)
	}
	var current string
	err := r.DB.QueryRow(ctx, `SELECT status FROM transfer_orders WHERE transfer_id=$1`, transferID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load current status: %w", err)
	}
	if _, err := orderfsm.Transition(current, newStatus); err != nil {
		return false, fmt.Errorf("%s -> %s: %w", current, newStatus, err)
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `
		UPDATE transfer_orders SET status=$2, updated_at=$3 WHERE transfer_id=$1
	`, transferID, newStatus, r.now().UTC()); err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	if err := r.appendAudit(ctx, tx, models.AuditEvent{
		TransferID: transferID,
		EventType:  "status_change",
		StatusFrom: current,
		StatusTo:   newStatus,
		Actor:      actor,
		Note:       note,
	}); err != nil {
		return false, fmt.Errorf("append status audit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit status update: %w", err)
	}
	return true, nil
}

// AppendAudit writes one decision-trail event.
func (r *OrderRepo) AppendAudit(ctx context.Context, ev models.AuditEvent) error {
	return r.appendAudit(ctx, r.DB, ev)
}

func (r *OrderRepo) appendAudit(ctx context.Context, db execer, ev models.AuditEvent) error {
	var payloadRaw []byte
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		payloadRaw = raw
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now().UTC()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO transfer_audit (transfer_id, event_type, status_from, status_to, actor, note, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ev.TransferID, ev.EventType, ev.StatusFrom, ev.StatusTo, ev.Actor, ev.Note, payloadRaw, createdAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// FindRecentByStoreSKU returns the newest order for (store, sku) created
// within the window, or (nil, nil) when there is none.
func (r *OrderRepo) FindRecentByStoreSKU(ctx context.Context, storeID, sku string, windowHours int) (*models.RecentOrder, error) {
	if windowHours <= 0 {
		return nil, nil
	}
	cutoff := r.now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	row := r.DB.QueryRow(ctx, `
		SELECT o.transfer_id, o.dest_store, l.sku, l.qty, o.created_at
		FROM transfer_orders o
		JOIN transfer_lines l ON l.transfer_id = o.transfer_id
		WHERE o.dest_store=$1 AND l.sku=$2 AND o.created_at >= $3
		ORDER BY o.created_at DESC
		LIMIT 1
	`, storeID, sku, cutoff)
	var recent models.RecentOrder
	err := row.Scan(&recent.TransferID, &recent.DestStore, &recent.SKU, &recent.Qty, &recent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("duplicate window lookup: %w", err)
	}
	return &recent, nil
}

// CountByStatus feeds the pending-orders gauge.
func (r *OrderRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_orders WHERE status=$1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders by status: %w", err)
	}
	return n, nil
}
