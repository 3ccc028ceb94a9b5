package automation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters the engine reports. A nil *Metrics
// is valid and records nothing, so the engine works without observability
// wired in.
type Metrics struct {
	evaluations   *prometheus.CounterVec
	actions       *prometheus.CounterVec
	formulaErrors prometheus.Counter
}

// NewMetrics creates and registers the engine counters on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affilium_rule_evaluations_total",
			Help: "Rule evaluations by outcome (met or unmet).",
		}, []string{"outcome"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affilium_rule_actions_total",
			Help: "Executed rule actions by status.",
		}, []string{"status"}),
		formulaErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "affilium_payout_formula_errors_total",
			Help: "Custom payout formulas rejected at evaluation time.",
		}),
	}
}

func (m *Metrics) observeEvaluation(met bool) {
	if m == nil {
		return
	}
	outcome := "unmet"
	if met {
		outcome = "met"
	}
	m.evaluations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeAction(status ActionStatus) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeFormulaError() {
	if m == nil {
		return
	}
	m.formulaErrors.Inc()
}
