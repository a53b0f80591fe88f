package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cache"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cart"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/checkout"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/config"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/report"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/tax"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/xid"
)

var (
	ErrSessionNotFound = fmt.Errorf("session %w", domain.ErrNotFound)
	ErrForbidden       = errors.New("forbidden")
	ErrNoActor         = errors.New("authenticated actor required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CartView is what the register shows after every cart change.
type CartView struct {
	SessionID string              `json:"session_id"`
	Cashier   string              `json:"cashier"`
	OpenedAt  time.Time           `json:"opened_at"`
	Lines     []domain.CartLine   `json:"lines"`
	Breakdown domain.TaxBreakdown `json:"breakdown"`
}

type CheckoutInput struct {
	IdempotencyKey string `json:"idempotency_key"`
	domain.CustomerInfo
}

type Options struct {
	Sessions   cache.SessionCache
	SessionTTL time.Duration
	Logger     logrus.FieldLogger
}

type Service struct {
	repo        store.Repository
	policy      tax.Policy
	coordinator *checkout.Coordinator
	reports     *report.Engine
	sessions    cache.SessionCache
	sessionTTL  time.Duration
	logger      logrus.FieldLogger

	mu   sync.Mutex
	live map[string]*liveSession
}

// liveSession serializes requests against one cart. touched is guarded by
// Service.mu, not by the session's own lock.
type liveSession struct {
	mu      sync.Mutex
	session *cart.Session
	touched time.Time
}

func New(repo store.Repository, policy tax.Policy, coordinator *checkout.Coordinator, reports *report.Engine, opts Options) *Service {
	if opts.Sessions == nil {
		opts.Sessions = cache.Noop{}
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 8 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Service{
		repo:        repo,
		policy:      policy,
		coordinator: coordinator,
		reports:     reports,
		sessions:    opts.Sessions,
		sessionTTL:  opts.SessionTTL,
		logger:      opts.Logger.WithField("component", "service"),
		live:        make(map[string]*liveSession),
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetStock(ctx context.Context, productID string) (int, error) {
	return s.repo.GetStock(ctx, productID)
}

// OpenSession starts a cart for the calling cashier with a fresh catalog snapshot.
func (s *Service) OpenSession(ctx context.Context) (CartView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return CartView{}, ErrNoActor
	}

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return CartView{}, err
	}

	session := cart.NewSession(xid.New("sess"), actor, catalog, s.policy, time.Now().UTC())
	entry := &liveSession{session: session, touched: time.Now()}

	s.mu.Lock()
	evicted := s.evictExpiredLocked(time.Now())
	s.live[session.ID] = entry
	s.mu.Unlock()
	if evicted > 0 {
		s.logger.WithField("evicted", evicted).Debug("expired sessions dropped")
	}

	s.saveSession(ctx, session)
	s.logger.WithFields(logrus.Fields{"session_id": session.ID, "cashier": actor.Username}).Info("session opened")
	return view(session), nil
}

func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	if err := s.withSession(ctx, sessionID, func(*cart.Session) error { return nil }); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.live, sessionID)
	s.mu.Unlock()

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		config.LogError(s.logger, "service", "CloseSession", "delete cached session", sessionID, err)
	}
	return nil
}

// RefreshCatalog replaces the session's product snapshot. Lines already in
// the cart keep the price they were added at.
func (s *Service) RefreshCatalog(ctx context.Context, sessionID string) (CartView, error) {
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, sessionID, func(session *cart.Session) error {
		session.Catalog = catalog
		return nil
	})
}

func (s *Service) Cart(ctx context.Context, sessionID string) (CartView, error) {
	var out CartView
	err := s.withSession(ctx, sessionID, func(session *cart.Session) error {
		out = view(session)
		return nil
	})
	return out, err
}

func (s *Service) AddToCart(ctx context.Context, sessionID string, productID string) (CartView, error) {
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product_id is required", domain.ErrValidation)
	}
	return s.mutate(ctx, sessionID, func(session *cart.Session) error {
		return session.AddItem(productID)
	})
}

func (s *Service) RemoveFromCart(ctx context.Context, sessionID string, productID string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(session *cart.Session) error {
		session.Cart.RemoveItem(productID)
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, sessionID string) (CartView, error) {
	return s.mutate(ctx, sessionID, func(session *cart.Session) error {
		session.Cart.Clear()
		return nil
	})
}

// Checkout records the session's cart as a sale. An *checkout.InventoryAdjustmentError
// comes back together with a valid receipt.
func (s *Service) Checkout(ctx context.Context, sessionID string, input CheckoutInput) (checkout.Receipt, error) {
	var (
		receipt checkout.Receipt
		runErr  error
	)
	err := s.withSession(ctx, sessionID, func(session *cart.Session) error {
		receipt, runErr = s.coordinator.Checkout(ctx, checkout.Request{
			Session:        session,
			IdempotencyKey: input.IdempotencyKey,
			Customer:       input.CustomerInfo,
		})
		s.saveSession(context.WithoutCancel(ctx), session)
		return nil
	})
	if err != nil {
		return checkout.Receipt{}, err
	}

	if receipt.Sale.ID != "" && !receipt.Duplicate {
		s.reports.Invalidate(context.WithoutCancel(ctx))
	}
	return receipt, runErr
}

func (s *Service) Summary(ctx context.Context) (domain.SalesSummary, error) {
	return s.reports.Summary(ctx)
}

func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.RecentSale, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.reports.RecentSales(ctx, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, action string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.ListAuditLogs(ctx, action, limit)
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*cart.Session) error) (CartView, error) {
	var out CartView
	err := s.withSession(ctx, sessionID, func(session *cart.Session) error {
		if err := fn(session); err != nil {
			return err
		}
		s.saveSession(ctx, session)
		out = view(session)
		return nil
	})
	return out, err
}

// withSession runs fn while holding the session's lock. Only the cashier who
// opened a session, or an admin, may use it.
func (s *Service) withSession(ctx context.Context, sessionID string, fn func(*cart.Session) error) error {
	entry, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrNoActor
	}
	if actor.Role != domain.RoleAdmin && actor.Username != entry.session.Cashier.Username {
		return ErrForbidden
	}

	s.mu.Lock()
	entry.touched = time.Now()
	s.mu.Unlock()
	return fn(entry.session)
}

// SweepSessions drops in-process sessions idle for longer than the session
// TTL, every interval, until ctx is done. Cached copies expire on their own.
func (s *Service) SweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			evicted := s.evictExpiredLocked(now)
			s.mu.Unlock()
			if evicted > 0 {
				s.logger.WithField("evicted", evicted).Info("expired sessions dropped")
			}
		}
	}
}

func (s *Service) evictExpiredLocked(now time.Time) int {
	evicted := 0
	for id, entry := range s.live {
		if now.Sub(entry.touched) > s.sessionTTL {
			delete(s.live, id)
			evicted++
		}
	}
	return evicted
}

func (s *Service) lookup(ctx context.Context, sessionID string) (*liveSession, error) {
	s.mu.Lock()
	entry, ok := s.live[sessionID]
	if ok && time.Since(entry.touched) > s.sessionTTL {
		delete(s.live, sessionID)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return entry, nil
	}

	snap, found, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		config.LogError(s.logger, "service", "lookup", "read cached session", sessionID, err)
	}
	if !found || err != nil {
		return nil, ErrSessionNotFound
	}

	restored := &liveSession{session: cart.Restore(*snap, s.policy), touched: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[sessionID]; ok {
		return existing, nil
	}
	s.live[sessionID] = restored
	return restored, nil
}

// saveSession is write-through and best effort; the live copy stays authoritative.
func (s *Service) saveSession(ctx context.Context, session *cart.Session) {
	if err := s.sessions.SetSession(ctx, session.Snapshot(), s.sessionTTL); err != nil {
		config.LogError(s.logger, "service", "saveSession", "write cached session", session.ID, err)
	}
}

// loadCatalog snapshots the products whose rate the active tax policy accepts.
func (s *Service) loadCatalog(ctx context.Context) (cart.Catalog, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	allowed := products[:0:0]
	for _, p := range products {
		if !s.policy.Allows(p.TaxRate) {
			s.logger.WithFields(logrus.Fields{"product_id": p.ID, "tax_rate": p.TaxRate.String()}).Warn("product rate not configured; left out of catalog")
			continue
		}
		allowed = append(allowed, p)
	}
	return cart.NewCatalog(allowed), nil
}

func view(session *cart.Session) CartView {
	return CartView{
		SessionID: session.ID,
		Cashier:   session.Cashier.Username,
		OpenedAt:  session.OpenedAt,
		Lines:     session.Cart.Lines(),
		Breakdown: session.Cart.Breakdown().Rounded(),
	}
}
