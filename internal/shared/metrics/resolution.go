package metrics

import "github.com/prometheus/client_golang/prometheus"

// Resolution agrupa os contadores do ciclo de resolução.
// Usado pelo resolution-service e pelo sweeper (ambos liquidam apostas).
type Resolution struct {
	VotesCast          *prometheus.CounterVec // kind
	Transitions        *prometheus.CounterVec // from, to
	Settlements        *prometheus.CounterVec // policy
	SettlementFailures prometheus.Counter
	Conflicts          *prometheus.CounterVec // op
	PayoutCents        prometheus.Counter
}

// NewResolution cria e registra os contadores no registry informado
func NewResolution(reg prometheus.Registerer) *Resolution {
	m := &Resolution{
		VotesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_votes_cast_total", Help: "votos e julgamentos registrados",
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_bet_transitions_total", Help: "transições de status de apostas",
		}, []string{"from", "to"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_settlements_total", Help: "apostas liquidadas por política",
		}, []string{"policy"}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolution_settlement_failures_total", Help: "settlements revertidos (aposta fica em RESOLVING)",
		}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_conflicts_total", Help: "perdas de corrida em transições",
		}, []string{"op"}),
		PayoutCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resolution_payout_cents_total", Help: "créditos pagos em settlements",
		}),
	}
	reg.MustRegister(m.VotesCast, m.Transitions, m.Settlements, m.SettlementFailures, m.Conflicts, m.PayoutCents)
	return m
}

// Outbox agrupa os contadores do dispatcher
type Outbox struct {
	Dispatched *prometheus.CounterVec // topic
	Retried    *prometheus.CounterVec // topic
	DeadLetter *prometheus.CounterVec // topic
	Broadcasts prometheus.Counter
	Errors     *prometheus.CounterVec // stage
}

func NewOutbox(reg prometheus.Registerer) *Outbox {
	m := &Outbox{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_dispatched_total", Help: "mensagens publicadas no kafka",
		}, []string{"topic"}),
		Retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_retried_total", Help: "mensagens que falharam e serão reenviadas",
		}, []string{"topic"}),
		DeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_dead_letter_total", Help: "mensagens enviadas para a DLQ",
		}, []string{"topic"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_broadcasts_total", Help: "atualizações espelhadas no redis pub/sub",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_errors_total", Help: "erros por estágio",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.Dispatched, m.Retried, m.DeadLetter, m.Broadcasts, m.Errors)
	return m
}
