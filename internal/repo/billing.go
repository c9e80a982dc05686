package repo

import (
	"context"
	"database/sql"

	"taskbase/internal/domain"
)

const planCols = `id,name,COALESCE(description,''),price_cents,currency,interval,max_workspaces,max_members,active,created_at`

func scanPlan(row *sql.Row) (domain.Plan, error) {
	var p domain.Plan
	var active int
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Interval,
		&p.MaxWorkspaces, &p.MaxMembers, &active, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Active = active != 0
	return p, err
}

func (r Repo) InsertPlan(ctx context.Context, p domain.Plan) error {
	active := 0
	if p.Active {
		active = 1
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO plans(id,name,description,price_cents,currency,interval,max_workspaces,max_members,active,created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.PriceCents, p.Currency, p.Interval,
		p.MaxWorkspaces, p.MaxMembers, active, p.CreatedAt)
	return err
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	return scanPlan(r.DB.QueryRowContext(ctx, `SELECT `+planCols+` FROM plans WHERE id=?`, id))
}

func (r Repo) ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	query := `SELECT ` + planCols + ` FROM plans`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY price_cents`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Plan
	for rows.Next() {
		var p domain.Plan
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Interval,
			&p.MaxWorkspaces, &p.MaxMembers, &active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Active = active != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePlan(ctx context.Context, p domain.Plan) error {
	active := 0
	if p.Active {
		active = 1
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE plans SET name=?,description=?,price_cents=?,currency=?,interval=?,max_workspaces=?,max_members=?,active=? WHERE id=?`,
		p.Name, nullable(p.Description), p.PriceCents, p.Currency, p.Interval,
		p.MaxWorkspaces, p.MaxMembers, active, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePlan(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM plans WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertSubscription(ctx context.Context, tx *sql.Tx, s domain.Subscription) error {
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO subscriptions(id,org_id,plan_id,status,current_period_end,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(org_id) DO UPDATE SET plan_id=excluded.plan_id,status=excluded.status,
		   current_period_end=excluded.current_period_end,updated_at=excluded.updated_at`,
		s.ID, s.OrgID, s.PlanID, s.Status, nullable(s.CurrentPeriodEnd), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSubscription(ctx context.Context, orgID string) (domain.Subscription, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id,org_id,plan_id,status,COALESCE(current_period_end,''),created_at,updated_at FROM subscriptions WHERE org_id=?`, orgID)
	var s domain.Subscription
	err := row.Scan(&s.ID, &s.OrgID, &s.PlanID, &s.Status, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) SetSubscriptionStatus(ctx context.Context, tx *sql.Tx, orgID, status, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx,
		`UPDATE subscriptions SET status=?,updated_at=? WHERE org_id=?`, status, updatedAt, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertPaymentOrder(ctx context.Context, tx *sql.Tx, o domain.PaymentOrder) error {
	_, err := r.q(tx).ExecContext(ctx,
		`INSERT INTO payment_orders(id,org_id,plan_id,gateway_ref,amount_cents,currency,status,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.OrgID, o.PlanID, o.GatewayRef, o.AmountCents, o.Currency, o.Status, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetPaymentOrderByRef(ctx context.Context, gatewayRef string) (domain.PaymentOrder, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id,org_id,plan_id,gateway_ref,amount_cents,currency,status,created_at,updated_at FROM payment_orders WHERE gateway_ref=?`, gatewayRef)
	var o domain.PaymentOrder
	err := row.Scan(&o.ID, &o.OrgID, &o.PlanID, &o.GatewayRef, &o.AmountCents, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) SetPaymentOrderStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx,
		`UPDATE payment_orders SET status=?,updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
