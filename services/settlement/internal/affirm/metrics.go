package affirm

import (
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	metricsNamespace = "confidential_settlement"

	pathSender   = "sender"
	pathVerify   = "verify_and_affirm"
	pathObserver = "observer"

	opMoveFunds = "move_funds"
	opBurn      = "burn"

	outcomeAffirmed = "affirmed"
	outcomeRejected = "rejected"
	outcomeNotFound = "not_found"
	outcomeInternal = "internal"
	outcomeUpstream = "upstream"
)

var affirmations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "affirmations_total",
		Help:      "Leg affirmation attempts by path and outcome",
	},
	[]string{"path", "outcome"},
)

var fundOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "fund_operations_total",
		Help:      "Proved fund moves and burns by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// alertField marks log lines that point at a chain/indexer disagreement
// rather than a caller mistake.
var alertField = zap.Bool("alert", true)

func outcomeFor(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		if err == nil {
			return outcomeAffirmed
		}
		return outcomeInternal
	case apperr.KindValidation:
		return outcomeRejected
	case apperr.KindNotFound:
		return outcomeNotFound
	case apperr.KindUpstream:
		return outcomeUpstream
	default:
		return outcomeInternal
	}
}
