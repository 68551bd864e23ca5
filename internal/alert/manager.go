package alert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/rs/zerolog/log"
)

// ErrInvalidTransition is returned when an alert cannot move to the requested state.
var ErrInvalidTransition = errors.New("invalid alert state transition")

// Outcome describes what Raise did with a detected condition.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpdated    Outcome = "updated"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeNone       Outcome = "none"
)

const defaultCooldownDays = 7

// Condition is a freshly detected problem for a product.
type Condition struct {
	ProductID         int64
	Type              domain.AlertType
	Severity          domain.Severity
	Message           string
	SuggestedQuantity int
}

// Manager decides whether a condition creates, updates or is suppressed,
// and drives the alert state machine.
type Manager struct {
	alerts       repository.AlertRepository
	products     repository.ProductRepository
	cooldownDays int
	publisher    events.Publisher
	now          func() time.Time
}

// NewManager creates a Manager. cooldownDays is the last-resort cool-down
// used when neither product nor supplier has a lead time.
func NewManager(alerts repository.AlertRepository, products repository.ProductRepository, cooldownDays int) *Manager {
	if cooldownDays <= 0 {
		cooldownDays = defaultCooldownDays
	}
	return &Manager{
		alerts:       alerts,
		products:     products,
		cooldownDays: cooldownDays,
		publisher:    events.NewNoopPublisher(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetPublisher routes lifecycle events to p.
func (m *Manager) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.NewNoopPublisher()
	}
	m.publisher = p
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Raise applies the dedup and cool-down rules to c against the most recent
// alert of the same product and type.
func (m *Manager) Raise(ctx context.Context, c Condition) (*domain.Alert, Outcome, error) {
	latest, err := m.alerts.GetLatestAlert(ctx, c.ProductID, c.Type)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to load latest alert: %w", err)
	}

	now := m.now()
	if latest != nil {
		switch latest.State {
		case domain.AlertPending, domain.AlertInProgress:
			latest.Severity = c.Severity
			latest.Message = c.Message
			latest.SuggestedQuantity = c.SuggestedQuantity
			latest.UpdatedAt = now
			if err := m.alerts.UpdateAlert(ctx, latest); err != nil {
				return nil, "", fmt.Errorf("failed to update alert %d: %w", latest.ID, err)
			}
			m.record(c.Type, OutcomeUpdated)
			m.publish(ctx, events.AlertUpdated, latest)
			return latest, OutcomeUpdated, nil

		case domain.AlertResolved, domain.AlertIgnored:
			cooldown := m.cooldown(ctx, c.ProductID)
			closedAt := latest.UpdatedAt
			if latest.ResolvedAt != nil {
				closedAt = *latest.ResolvedAt
			}
			if now.Before(closedAt.Add(cooldown)) {
				log.Debug().
					Int64("product_id", c.ProductID).
					Str("type", string(c.Type)).
					Time("closed_at", closedAt).
					Dur("cooldown", cooldown).
					Msg("alert suppressed by cool-down")
				m.record(c.Type, OutcomeSuppressed)
				return latest, OutcomeSuppressed, nil
			}
		}
	}

	a := &domain.Alert{
		ProductID:         c.ProductID,
		Type:              c.Type,
		Severity:          c.Severity,
		State:             domain.AlertPending,
		Message:           c.Message,
		SuggestedQuantity: c.SuggestedQuantity,
		GeneratedAt:       now,
		UpdatedAt:         now,
	}
	if err := m.alerts.CreateAlert(ctx, a); err != nil {
		return nil, "", fmt.Errorf("failed to create alert: %w", err)
	}
	m.record(c.Type, OutcomeCreated)
	m.publish(ctx, events.AlertCreated, a)
	return a, OutcomeCreated, nil
}

// CheckStock evaluates a stock reading and raises the resulting condition.
func (m *Manager) CheckStock(ctx context.Context, level domain.StockLevel) (*domain.Alert, Outcome, error) {
	c, ok := EvaluateStock(level)
	if !ok {
		return nil, OutcomeNone, nil
	}
	return m.Raise(ctx, c)
}

// cooldown resolves product lead time, then the default supplier's lead
// time, then the configured default.
func (m *Manager) cooldown(ctx context.Context, productID int64) time.Duration {
	days := m.cooldownDays
	product, err := m.products.GetProduct(ctx, productID)
	switch {
	case err != nil:
		log.Warn().Err(err).Int64("product_id", productID).Msg("product lookup failed, using default cool-down")
	case product.LeadTimeDays != nil && *product.LeadTimeDays > 0:
		days = *product.LeadTimeDays
	case product.DefaultSupplierID != nil:
		supplier, err := m.products.GetSupplier(ctx, *product.DefaultSupplierID)
		if err == nil && supplier.LeadTimeDays != nil && *supplier.LeadTimeDays > 0 {
			days = *supplier.LeadTimeDays
		}
	}
	return time.Duration(days) * 24 * time.Hour
}

func (m *Manager) record(t domain.AlertType, o Outcome) {
	metrics.AlertsTotal.WithLabelValues(string(t), string(o)).Inc()
}

func (m *Manager) publish(ctx context.Context, eventType string, a *domain.Alert) {
	err := m.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		ProductID:  a.ProductID,
		AlertID:    a.ID,
		Payload:    a,
		OccurredAt: a.UpdatedAt,
	})
	if err != nil {
		log.Warn().Err(err).Int64("alert_id", a.ID).Str("event", eventType).Msg("failed to publish alert event")
	}
}

// Assign moves a PENDING alert to IN_PROGRESS under user. Reassigning an
// IN_PROGRESS alert only changes the assignee.
func (m *Manager) Assign(ctx context.Context, id int64, user string) (*domain.Alert, error) {
	a, err := m.alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.State.Open() {
		return nil, fmt.Errorf("%w: cannot assign %s alert %d", ErrInvalidTransition, a.State, id)
	}
	a.State = domain.AlertInProgress
	a.AssignedUser = &user
	a.UpdatedAt = m.now()
	if err := m.alerts.UpdateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to assign alert %d: %w", id, err)
	}
	m.publish(ctx, events.AlertAssigned, a)
	return a, nil
}

// Resolve closes an open alert as RESOLVED.
func (m *Manager) Resolve(ctx context.Context, id int64, resolution string) (*domain.Alert, error) {
	return m.close(ctx, id, domain.AlertResolved, resolution)
}

// Ignore closes an open alert as IGNORED.
func (m *Manager) Ignore(ctx context.Context, id int64, reason string) (*domain.Alert, error) {
	return m.close(ctx, id, domain.AlertIgnored, reason)
}

func (m *Manager) close(ctx context.Context, id int64, state domain.AlertState, note string) (*domain.Alert, error) {
	a, err := m.alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.State.Open() {
		return nil, fmt.Errorf("%w: alert %d is already %s", ErrInvalidTransition, id, a.State)
	}
	now := m.now()
	a.State = state
	a.ResolvedAt = &now
	a.UpdatedAt = now
	if note != "" {
		a.Resolution = &note
	}
	if err := m.alerts.UpdateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to close alert %d: %w", id, err)
	}
	eventType := events.AlertResolved
	if state == domain.AlertIgnored {
		eventType = events.AlertIgnored
	}
	m.publish(ctx, eventType, a)
	return a, nil
}

// ResolveMany resolves each alert independently and reports per-id outcomes.
func (m *Manager) ResolveMany(ctx context.Context, ids []int64, resolution string) *domain.BatchJobResult {
	return m.closeMany(ids, "resolve_alerts", func(id int64) (*domain.Alert, error) {
		return m.Resolve(ctx, id, resolution)
	})
}

// IgnoreMany ignores each alert independently and reports per-id outcomes.
func (m *Manager) IgnoreMany(ctx context.Context, ids []int64, reason string) *domain.BatchJobResult {
	return m.closeMany(ids, "ignore_alerts", func(id int64) (*domain.Alert, error) {
		return m.Ignore(ctx, id, reason)
	})
}

func (m *Manager) closeMany(ids []int64, phase string, fn func(int64) (*domain.Alert, error)) *domain.BatchJobResult {
	res := &domain.BatchJobResult{Phase: phase, TotalItems: len(ids), StartedAt: time.Now()}
	for _, id := range ids {
		key := strconv.FormatInt(id, 10)
		if _, err := fn(id); err != nil {
			res.FailedIDs = append(res.FailedIDs, key)
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("alert %d: %v", id, err))
			continue
		}
		res.SucceededIDs = append(res.SucceededIDs, key)
	}
	res.Finish()
	return res
}

// EvaluateStock maps a stock reading onto the severity ladder. It reports
// false when stock is comfortably above the reorder point.
func EvaluateStock(level domain.StockLevel) (Condition, bool) {
	stock, minimum, rop := level.Stock, level.MinimumStock, level.ReorderPoint

	var severity domain.Severity
	qty := 0
	switch {
	case stock <= 0:
		severity = domain.SeverityCritical
		qty = max(2*rop, 3*minimum)
	case stock < minimum:
		severity = domain.SeverityHigh
		qty = max(2*minimum-stock, rop-stock)
	case stock <= rop:
		severity = domain.SeverityMedium
		qty = int(math.Ceil(1.5*float64(rop))) - stock
	case float64(stock) <= float64(rop)*1.2:
		severity = domain.SeverityLow
	default:
		return Condition{}, false
	}
	if qty <= 0 {
		qty = max(rop-stock, minimum-stock, 0)
	}

	return Condition{
		ProductID:         level.ProductID,
		Type:              typeFor(severity),
		Severity:          severity,
		SuggestedQuantity: qty,
		Message: fmt.Sprintf("Stock for product %d is %d units (minimum %d, reorder point %d); suggested order %d units",
			level.ProductID, stock, minimum, rop, qty),
	}, true
}

func typeFor(s domain.Severity) domain.AlertType {
	switch s {
	case domain.SeverityCritical:
		return domain.AlertStockCritical
	case domain.SeverityHigh:
		return domain.AlertStockLow
	default:
		return domain.AlertReorderPoint
	}
}
