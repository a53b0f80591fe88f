// Package checkout turns a cart session into a recorded sale.
//
// An attempt moves idle -> validating -> persisting -> adjusting_inventory ->
// completed. The sale is appended to the ledger first, with bounded retries
// under one idempotency key; stock is decremented afterwards, line by line,
// and never retried. A failure in that last phase leaves a recorded sale with
// stale stock, which is reported as an InventoryAdjustmentError alongside the
// receipt rather than as a failed checkout.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cart"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/config"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/xid"
)

type Options struct {
	Customer    CustomerPolicy
	MaxAttempts int
	Backoff     time.Duration
	LockTTL     time.Duration
	// Locker is optional; without it only the ledger's idempotency key guards
	// concurrent checkouts.
	Locker Locker
	Logger logrus.FieldLogger
	Now    func() time.Time
}

type Request struct {
	Session        *cart.Session
	IdempotencyKey string
	Customer       domain.CustomerInfo
}

type Receipt struct {
	Sale      domain.SaleDocument `json:"sale"`
	Breakdown domain.TaxBreakdown `json:"breakdown"`
	Duplicate bool                `json:"duplicate"`
	States    []State             `json:"states"`
}

type Coordinator struct {
	ledger    store.SaleLedger
	inventory store.InventoryStore
	audit     store.AuditLog
	breaker   *gobreaker.CircuitBreaker[string]
	validate  *validator.Validate
	opts      Options
	logger    logrus.FieldLogger
}

func New(ledger store.SaleLedger, inventory store.InventoryStore, audit store.AuditLog, opts Options) *Coordinator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	logger := opts.Logger.WithField("component", "checkout")

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "sale-ledger",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrDuplicateSale)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})

	return &Coordinator{
		ledger:    ledger,
		inventory: inventory,
		audit:     audit,
		breaker:   breaker,
		validate:  validator.New(),
		opts:      opts,
		logger:    logger,
	}
}

// Checkout runs one attempt. On success the session's cart is cleared. When
// the returned error is an *InventoryAdjustmentError the receipt is still
// valid: the sale was recorded.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (Receipt, error) {
	m := newMachine()
	receipt, err := c.run(ctx, m, req)
	receipt.States = m.States()
	return receipt, err
}

func (c *Coordinator) run(ctx context.Context, m *machine, req Request) (Receipt, error) {
	if err := m.to(StateValidating); err != nil {
		return Receipt{}, err
	}
	session := req.Session
	if session == nil || session.Cart.Empty() {
		return Receipt{}, m.fail(ErrEmptyCart)
	}
	customer, err := c.opts.Customer.Validate(c.validate, req.Customer)
	if err != nil {
		return Receipt{}, m.fail(err)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, m.fail(err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = xid.New("idem")
	}
	log := c.logger.WithFields(logrus.Fields{"session_id": session.ID, "idempotency_key": key})

	if c.opts.Locker != nil {
		release, err := c.opts.Locker.Obtain(ctx, key, c.opts.LockTTL)
		if err != nil {
			return Receipt{}, m.fail(err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("release checkout lock")
			}
		}()
	}

	if err := m.to(StatePersisting); err != nil {
		return Receipt{}, err
	}
	breakdown := session.Cart.Breakdown().Rounded()

	if existing, err := c.ledger.FindSaleByIdempotencyKey(ctx, key); err == nil {
		log.WithField("sale_id", existing.ID).Info("idempotency key already recorded; returning existing sale")
		session.Cart.Clear()
		if err := m.to(StateCompleted); err != nil {
			return Receipt{}, err
		}
		return Receipt{Sale: *existing, Breakdown: breakdown, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Receipt{}, m.fail(&PersistenceError{Attempts: 0, Err: err})
	}

	doc := buildSale(session, breakdown, key, customer, c.opts.Now().UTC())
	saleID, duplicate, err := c.persist(ctx, log, doc)
	if err != nil {
		return Receipt{}, m.fail(err)
	}
	doc.ID = saleID
	log = log.WithField("sale_id", saleID)

	if duplicate {
		existing, err := c.ledger.FindSaleByIdempotencyKey(ctx, key)
		if err != nil {
			return Receipt{}, m.fail(&PersistenceError{Attempts: 1, Err: err})
		}
		log.Info("concurrent checkout recorded this sale first")
		session.Cart.Clear()
		if err := m.to(StateCompleted); err != nil {
			return Receipt{}, err
		}
		return Receipt{Sale: *existing, Breakdown: breakdown, Duplicate: true}, nil
	}

	c.writeAudit(ctx, session.Cashier, domain.AuditActionCheckout, saleID,
		fmt.Sprintf("total=%s,tax=%s,strategy=%s,lines=%d", breakdown.GrandTotal, breakdown.TotalTax, breakdown.Strategy, len(doc.Items)))

	// The sale is durable from here on; caller cancellation must not stop stock accounting.
	if err := m.to(StateAdjustingInventory); err != nil {
		return Receipt{}, err
	}
	adjustCtx := context.WithoutCancel(ctx)
	lines := session.Cart.Lines()
	session.Cart.Clear()
	receipt := Receipt{Sale: doc, Breakdown: breakdown}

	if invErr := c.adjustInventory(adjustCtx, saleID, lines); invErr != nil {
		config.LogError(log, "checkout", "Checkout", "inventory adjustment after recorded sale", invErr.Failures, invErr)
		c.writeAudit(adjustCtx, session.Cashier, domain.AuditActionInventoryAdjustmentFailed, saleID, invErr.Error())
		return receipt, m.fail(invErr)
	}

	if err := m.to(StateCompleted); err != nil {
		return receipt, err
	}
	log.WithField("total", breakdown.GrandTotal.String()).Info("checkout completed")
	return receipt, nil
}

// persist appends doc with bounded retries. duplicate reports that the key
// was already owned by another checkout when this attempt started.
func (c *Coordinator) persist(ctx context.Context, log logrus.FieldLogger, doc domain.SaleDocument) (string, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		id, err := c.breaker.Execute(func() (string, error) {
			return c.ledger.AppendSale(ctx, doc)
		})
		switch {
		case err == nil:
			return id, false, nil
		case errors.Is(err, store.ErrDuplicateSale):
			// On a retry this is our own earlier write landing late.
			return id, attempt == 1, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return "", false, &PersistenceError{Attempts: attempt, Err: err}
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("append sale failed")

		if attempt == c.opts.MaxAttempts {
			break
		}
		wait := c.opts.Backoff * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			return "", false, &PersistenceError{Attempts: attempt, Err: errors.Join(lastErr, ctx.Err())}
		case <-time.After(wait):
		}
	}
	return "", false, &PersistenceError{Attempts: c.opts.MaxAttempts, Err: lastErr}
}

func (c *Coordinator) adjustInventory(ctx context.Context, saleID string, lines []domain.CartLine) *InventoryAdjustmentError {
	var failures []LineFailure
	for _, line := range lines {
		if err := c.inventory.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			failures = append(failures, LineFailure{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Reason:    err.Error(),
				Err:       err,
			})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &InventoryAdjustmentError{SaleID: saleID, Failures: failures}
}

// writeAudit is best effort.
func (c *Coordinator) writeAudit(ctx context.Context, actor domain.Actor, action string, saleID string, detail string) {
	if c.audit == nil {
		return
	}
	if actor.Username == "" {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	if err := c.audit.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    "sale",
		EntityID:      saleID,
		Detail:        detail,
		CreatedAt:     c.opts.Now().UTC(),
	}); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"action": action, "sale_id": saleID}).Warn("failed to write audit log")
	}
}

func buildSale(session *cart.Session, b domain.TaxBreakdown, key string, customer domain.CustomerInfo, now time.Time) domain.SaleDocument {
	schema := domain.CurrentSaleSchema
	doc := domain.SaleDocument{
		SchemaVersion:  &schema,
		TaxStrategy:    string(b.Strategy),
		IdempotencyKey: key,
		Subtotal:       domain.Float(b.Subtotal.InexactFloat64()),
		SubtotalByRate: make(map[string]float64, len(b.SubtotalByRate)),
		TaxByRate:      make(map[string]float64, len(b.TaxByRate)),
		GSTAmount:      domain.Float(b.TotalTax.InexactFloat64()),
		Total:          domain.Float(b.GrandTotal.InexactFloat64()),
		Cashier:        session.Cashier.Username,
		Timestamp:      &now,
		CustomerName:   customer.Name,
		CustomerPhone:  customer.Phone,
	}
	if b.AppliedRate != nil {
		doc.AppliedTaxRate = domain.Float(float64(*b.AppliedRate))
	}
	for rate, amount := range b.SubtotalByRate {
		doc.SubtotalByRate[rate.Key()] = amount.InexactFloat64()
	}
	for rate, amount := range b.TaxByRate {
		doc.TaxByRate[rate.Key()] = amount.InexactFloat64()
	}

	for _, line := range session.Cart.Lines() {
		rate := line.TaxRate
		if b.AppliedRate != nil {
			rate = *b.AppliedRate
		}
		doc.Items = append(doc.Items, domain.SaleItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Cost:      line.UnitCost.InexactFloat64(),
			TaxRate:   float64(rate),
			Quantity:  line.Quantity,
		})
	}
	return doc
}
