package degraded

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

// Registry is the slice of the resilience registry the watcher needs.
type Registry interface {
	DegradedIntegrations() []resilience.DegradedIntegration
	ForceOpen(name string) error
}

// Watcher is the one-way escalation path from "breaker observed open" to
// whole-app offline mode. It listens for breaker transitions and flips the
// persisted application mode when a critical integration degrades.
type Watcher struct {
	registry Registry
	store    *Store
	logger   *logging.Logger

	mu       sync.Mutex
	critical map[string]bool
	// open critical breakers, by integration name
	openCritical map[string]bool
}

// NewWatcher creates a watcher over the given registry and mode store.
// Critical names the integrations whose open breaker forces offline mode.
func NewWatcher(registry Registry, store *Store, critical []string, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewDefault()
	}
	criticalSet := make(map[string]bool, len(critical))
	for _, name := range critical {
		criticalSet[name] = true
	}
	return &Watcher{
		registry:     registry,
		store:        store,
		logger:       logger,
		critical:     criticalSet,
		openCritical: make(map[string]bool),
	}
}

// OnStateChange implements resilience.StateChangeListener.
func (w *Watcher) OnStateChange(event resilience.StateChangeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.critical[event.Integration] {
		return
	}

	switch event.To {
	case resilience.StateOpen:
		w.openCritical[event.Integration] = true
		if err := w.store.SetMode(ModeOffline, "circuit open: "+event.Integration); err != nil {
			w.logger.Error("failed to persist offline mode", zap.Error(err))
		}
		w.logger.Warn("entering offline mode",
			zap.String("integration", event.Integration),
			zap.String("event_id", event.ID))
	case resilience.StateClosed:
		delete(w.openCritical, event.Integration)
		if len(w.openCritical) == 0 {
			if err := w.store.SetMode(ModeLive, ""); err != nil {
				w.logger.Error("failed to persist live mode", zap.Error(err))
			}
			w.logger.Info("returning to live mode",
				zap.String("integration", event.Integration))
		}
	}
}

// Reconcile re-derives the application mode from current breaker state.
// Transition events alone cannot clear a persisted offline mode: after a
// restart the in-memory breakers start closed, and a reset of an
// already-closed breaker fires no event. Callers invoke this after
// administrative resets so a healthy registry returns the app to live mode.
func (w *Watcher) Reconcile() {
	w.mu.Lock()
	defer w.mu.Unlock()

	stillOpen := make(map[string]bool)
	for _, d := range w.registry.DegradedIntegrations() {
		if w.critical[d.Name] {
			stillOpen[d.Name] = true
		}
	}
	w.openCritical = stillOpen

	if len(stillOpen) > 0 || w.store.Mode() != ModeOffline {
		return
	}
	if err := w.store.SetMode(ModeLive, ""); err != nil {
		w.logger.Error("failed to persist live mode", zap.Error(err))
		return
	}
	w.logger.Info("returning to live mode, no critical breaker open")
}

// HandleError attributes a caught error to an integration by keyword and
// forces that breaker open. Returns the integration name and whether the
// error was attributed. This backs the external error boundary described by
// the dashboard contract.
func (w *Watcher) HandleError(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	name, ok := Classify(err.Error())
	if !ok {
		return "", false
	}
	if ferr := w.registry.ForceOpen(name); ferr != nil {
		w.logger.Warn("could not force breaker open",
			zap.String("integration", name),
			zap.Error(ferr))
		return "", false
	}
	return name, true
}

// classification keyword sets, checked in order
var keywordRules = []struct {
	integration string
	keywords    []string
}{
	{"ai-generation", []string{"ai service", "generation", "model overloaded", "completion"}},
	{"database", []string{"database", "sql", "connection refused", "persistence"}},
	{"market-data", []string{"market data", "feed", "quote stream", "websocket"}},
}

// Classify maps a dependency-failure message to the integration it most
// likely came from.
func Classify(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.integration, true
			}
		}
	}
	return "", false
}
