package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskbase/internal/access"
	"taskbase/internal/domain"
	"taskbase/internal/events"
	"taskbase/internal/payment"
)

// ErrBadSignature rejects a payment callback whose signature does not
// verify against the gateway secret.
var ErrBadSignature = errors.New("payment signature verification failed")

func (e Engine) ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	return e.Repo.ListPlans(ctx, activeOnly)
}

func (e Engine) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	return e.Repo.GetPlan(ctx, id)
}

// Plan management is platform-scoped: only super admins shape the catalog.

func (e Engine) CreatePlan(ctx context.Context, p access.Principal, plan domain.Plan) (domain.Plan, error) {
	if !access.CanPerform(p.Role, access.ActionPlanManage) {
		return domain.Plan{}, access.ForbiddenError{Action: access.ActionPlanManage, Role: p.Role}
	}
	if plan.Name == "" || plan.Currency == "" {
		return domain.Plan{}, errors.New("plan name and currency are required")
	}
	if plan.Interval != "monthly" && plan.Interval != "yearly" {
		return domain.Plan{}, errors.New("interval must be monthly or yearly")
	}
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	plan.CreatedAt = e.nowStr()
	if err := e.Repo.InsertPlan(ctx, plan); err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

func (e Engine) UpdatePlan(ctx context.Context, p access.Principal, plan domain.Plan) (domain.Plan, error) {
	if !access.CanPerform(p.Role, access.ActionPlanManage) {
		return domain.Plan{}, access.ForbiddenError{Action: access.ActionPlanManage, Role: p.Role}
	}
	if err := e.Repo.UpdatePlan(ctx, plan); err != nil {
		return domain.Plan{}, err
	}
	return e.Repo.GetPlan(ctx, plan.ID)
}

func (e Engine) DeletePlan(ctx context.Context, p access.Principal, id string) error {
	if !access.CanPerform(p.Role, access.ActionPlanManage) {
		return access.ForbiddenError{Action: access.ActionPlanManage, Role: p.Role}
	}
	return e.Repo.DeletePlan(ctx, id)
}

func (e Engine) GetSubscription(ctx context.Context, p access.Principal, orgID string) (domain.Subscription, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionOrgView, orgID, access.KindOrganization); err != nil {
		return domain.Subscription{}, err
	}
	return e.Repo.GetSubscription(ctx, orgID)
}

// CreateOrder opens a payment order at the gateway for a plan purchase.
// The returned order carries the gateway reference the checkout widget
// needs; nothing is activated until the payment verifies.
func (e Engine) CreateOrder(ctx context.Context, p access.Principal, orgID, planID string) (domain.PaymentOrder, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionSubscriptionManage, orgID, access.KindOrganization); err != nil {
		return domain.PaymentOrder{}, err
	}
	if e.Payment == nil {
		return domain.PaymentOrder{}, errors.New("payment gateway not configured")
	}
	plan, err := e.Repo.GetPlan(ctx, planID)
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	if !plan.Active {
		return domain.PaymentOrder{}, errors.New("plan is not available")
	}
	receipt := fmt.Sprintf("org-%s-%d", orgID, e.now().Unix())
	ref, err := e.Payment.CreateOrder(ctx, plan.PriceCents, plan.Currency, receipt)
	if err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("gateway order: %w", err)
	}
	now := e.nowStr()
	order := domain.PaymentOrder{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		PlanID:      planID,
		GatewayRef:  ref,
		AmountCents: plan.PriceCents,
		Currency:    plan.Currency,
		Status:      "created",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPaymentOrder(ctx, tx, order); err != nil {
		return domain.PaymentOrder{}, err
	}
	if err := e.Events.Append(ctx, tx, "payment.order_created", orgID, "payment_order", order.ID, p.UserID,
		events.EventPayload{"plan_id": planID, "amount_cents": plan.PriceCents}); err != nil {
		return domain.PaymentOrder{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentOrder{}, err
	}
	return order, nil
}

// VerifyPayment completes a checkout: the client posts back the gateway
// order reference, payment id and signature. On a valid signature the
// order is marked paid and the org's subscription activates.
func (e Engine) VerifyPayment(ctx context.Context, p access.Principal, orderRef, paymentID, signature string) (domain.Subscription, error) {
	if e.Payment == nil {
		return domain.Subscription{}, errors.New("payment gateway not configured")
	}
	order, err := e.Repo.GetPaymentOrderByRef(ctx, orderRef)
	if err != nil {
		return domain.Subscription{}, err
	}
	if err := e.Gate.Authorize(ctx, p, access.ActionSubscriptionManage, order.OrgID, access.KindOrganization); err != nil {
		return domain.Subscription{}, err
	}
	if !e.Payment.VerifySignature(orderRef, paymentID, signature) {
		return domain.Subscription{}, ErrBadSignature
	}
	return e.settleOrder(ctx, order, p.UserID, true)
}

// HandleWebhook applies a gateway-side payment notification. It is the
// out-of-band counterpart to VerifyPayment and needs no principal; the
// webhook signature is the authentication.
func (e Engine) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if e.Payment == nil {
		return errors.New("payment gateway not configured")
	}
	if !e.Payment.VerifyWebhook(body, signature) {
		return ErrBadSignature
	}
	evt, err := payment.ParseWebhook(body)
	if err != nil {
		return err
	}
	switch evt.Event {
	case "payment.captured":
		order, err := e.Repo.GetPaymentOrderByRef(ctx, evt.OrderRef)
		if err != nil {
			return err
		}
		_, err = e.settleOrder(ctx, order, "gateway", true)
		return err
	case "payment.failed":
		order, err := e.Repo.GetPaymentOrderByRef(ctx, evt.OrderRef)
		if err != nil {
			return err
		}
		_, err = e.settleOrder(ctx, order, "gateway", false)
		return err
	}
	// Unrecognized events are acknowledged and dropped.
	return nil
}

// settleOrder finalizes a payment order and, on success, activates the
// subscription for the plan's billing interval. Idempotent: replaying a
// settled order is a no-op.
func (e Engine) settleOrder(ctx context.Context, order domain.PaymentOrder, actorID string, paid bool) (domain.Subscription, error) {
	if order.Status == "paid" {
		return e.Repo.GetSubscription(ctx, order.OrgID)
	}
	plan, err := e.Repo.GetPlan(ctx, order.PlanID)
	if err != nil {
		return domain.Subscription{}, err
	}
	now := e.now()
	nowStr := now.UTC().Format(time.RFC3339)
	status := "paid"
	evtType := "payment.captured"
	if !paid {
		status = "failed"
		evtType = "payment.failed"
	}
	var sub domain.Subscription
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetPaymentOrderStatus(ctx, tx, order.ID, status, nowStr); err != nil {
		return domain.Subscription{}, err
	}
	if paid {
		periodEnd := now.AddDate(0, 1, 0)
		if plan.Interval == "yearly" {
			periodEnd = now.AddDate(1, 0, 0)
		}
		sub = domain.Subscription{
			ID:               uuid.New().String(),
			OrgID:            order.OrgID,
			PlanID:           order.PlanID,
			Status:           "active",
			CurrentPeriodEnd: periodEnd.UTC().Format(time.RFC3339),
			CreatedAt:        nowStr,
			UpdatedAt:        nowStr,
		}
		if err := e.Repo.UpsertSubscription(ctx, tx, sub); err != nil {
			return domain.Subscription{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, evtType, order.OrgID, "payment_order", order.ID, actorID,
		events.EventPayload{"plan_id": order.PlanID}); err != nil {
		return domain.Subscription{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subscription{}, err
	}
	if !paid {
		return domain.Subscription{}, nil
	}
	return sub, nil
}

// CancelSubscription marks the org's subscription canceled. Access to the
// already-paid period is a billing-portal concern, not enforced here.
func (e Engine) CancelSubscription(ctx context.Context, p access.Principal, orgID string) (domain.Subscription, error) {
	if err := e.Gate.Authorize(ctx, p, access.ActionSubscriptionManage, orgID, access.KindOrganization); err != nil {
		return domain.Subscription{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Subscription{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetSubscriptionStatus(ctx, tx, orgID, "canceled", e.nowStr()); err != nil {
		return domain.Subscription{}, err
	}
	if err := e.Events.Append(ctx, tx, "subscription.canceled", orgID, "subscription", orgID, p.UserID, nil); err != nil {
		return domain.Subscription{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subscription{}, err
	}
	return e.Repo.GetSubscription(ctx, orgID)
}
