package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xraph/reckon/calc"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *zap.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onQuoteCalculated      []OnQuoteCalculated
	onInvoiceCreated       []OnInvoiceCreated
	onInvoiceStatusChanged []OnInvoiceStatusChanged
	onPaymentApplied       []OnPaymentApplied
	onPaymentReplayed      []OnPaymentReplayed
	onPaymentVoided        []OnPaymentVoided
	onFXRateAdded          []OnFXRateAdded
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	r.logger = logger.Named("plugin")
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnQuoteCalculated); ok {
		r.onQuoteCalculated = append(r.onQuoteCalculated, v)
		hooks = append(hooks, "OnQuoteCalculated")
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
		hooks = append(hooks, "OnInvoiceCreated")
	}
	if v, ok := p.(OnInvoiceStatusChanged); ok {
		r.onInvoiceStatusChanged = append(r.onInvoiceStatusChanged, v)
		hooks = append(hooks, "OnInvoiceStatusChanged")
	}
	if v, ok := p.(OnPaymentApplied); ok {
		r.onPaymentApplied = append(r.onPaymentApplied, v)
		hooks = append(hooks, "OnPaymentApplied")
	}
	if v, ok := p.(OnPaymentReplayed); ok {
		r.onPaymentReplayed = append(r.onPaymentReplayed, v)
		hooks = append(hooks, "OnPaymentReplayed")
	}
	if v, ok := p.(OnPaymentVoided); ok {
		r.onPaymentVoided = append(r.onPaymentVoided, v)
		hooks = append(hooks, "OnPaymentVoided")
	}
	if v, ok := p.(OnFXRateAdded); ok {
		r.onFXRateAdded = append(r.onFXRateAdded, v)
		hooks = append(hooks, "OnFXRateAdded")
	}

	r.logger.Info("plugin registered",
		zap.String("name", p.Name()),
		zap.Strings("hooks", hooks),
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// hooks snapshots a cached hook list under the read lock.
func hooks[T Plugin](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// emit calls fn for each plugin, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				zap.String("hook", hook),
				zap.String("plugin", p.Name()),
				zap.Error(err),
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", hooks(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", hooks(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitQuoteCalculated emits a quote calculated event.
func (r *Registry) EmitQuoteCalculated(ctx context.Context, res *calc.Result) {
	emit(ctx, r, "OnQuoteCalculated", hooks(r, &r.onQuoteCalculated), func(p OnQuoteCalculated) error {
		return p.OnQuoteCalculated(ctx, res)
	})
}

// EmitInvoiceCreated emits an invoice created event.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceCreated", hooks(r, &r.onInvoiceCreated), func(p OnInvoiceCreated) error {
		return p.OnInvoiceCreated(ctx, inv)
	})
}

// EmitInvoiceStatusChanged emits a status change event. It is a no-op when
// the status did not change.
func (r *Registry) EmitInvoiceStatusChanged(ctx context.Context, inv *invoice.Invoice, from invoice.Status) {
	if inv.Status == from {
		return
	}
	emit(ctx, r, "OnInvoiceStatusChanged", hooks(r, &r.onInvoiceStatusChanged), func(p OnInvoiceStatusChanged) error {
		return p.OnInvoiceStatusChanged(ctx, inv, from)
	})
}

// EmitPaymentApplied emits a payment applied event.
func (r *Registry) EmitPaymentApplied(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) {
	emit(ctx, r, "OnPaymentApplied", hooks(r, &r.onPaymentApplied), func(h OnPaymentApplied) error {
		return h.OnPaymentApplied(ctx, p, inv)
	})
}

// EmitPaymentReplayed emits a payment replayed event.
func (r *Registry) EmitPaymentReplayed(ctx context.Context, p *payment.Payment) {
	emit(ctx, r, "OnPaymentReplayed", hooks(r, &r.onPaymentReplayed), func(h OnPaymentReplayed) error {
		return h.OnPaymentReplayed(ctx, p)
	})
}

// EmitPaymentVoided emits a payment voided event.
func (r *Registry) EmitPaymentVoided(ctx context.Context, p *payment.Payment, inv *invoice.Invoice) {
	emit(ctx, r, "OnPaymentVoided", hooks(r, &r.onPaymentVoided), func(h OnPaymentVoided) error {
		return h.OnPaymentVoided(ctx, p, inv)
	})
}

// EmitFXRateAdded emits an exchange rate added event.
func (r *Registry) EmitFXRateAdded(ctx context.Context, rate *fxrate.Rate) {
	emit(ctx, r, "OnFXRateAdded", hooks(r, &r.onFXRateAdded), func(p OnFXRateAdded) error {
		return p.OnFXRateAdded(ctx, rate)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
