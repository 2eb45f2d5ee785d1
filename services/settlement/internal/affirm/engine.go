// Package affirm decides when a leg of a confidential transaction may be
// affirmed. It tracks which legs carry a sender proof, works out what a public
// key can see in each leg, asks the proof server to generate or decrypt
// proofs, and only submits an affirmation once the decrypted amounts agree
// with what the caller expects.
//
// The engine keeps no state between calls. Everything it knows is read from
// the Ledger and ProofOracle ports on each request.
package affirm

import (
	"context"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"go.uber.org/zap"
)

// Ledger is the read/write view of on-chain settlement state.
type Ledger interface {
	// Transaction returns the transaction header together with its legs.
	Transaction(ctx context.Context, txID uint64) (domain.Transaction, error)
	Legs(ctx context.Context, txID uint64) ([]domain.Leg, error)
	SenderProofs(ctx context.Context, txID uint64) ([]domain.LegProofs, error)
	AccountBalance(ctx context.Context, account, assetID string) (string, error)
	AffirmLeg(ctx context.Context, txID uint64, params domain.AffirmLegParams) (domain.Submission, error)
	AssetAuditors(ctx context.Context, assetID string) ([]string, error)
	MoveFunds(ctx context.Context, moves []domain.ProvedMove, opts domain.TxOptions) (domain.Submission, error)
	BurnAsset(ctx context.Context, assetID string, params domain.BurnParams) (domain.Submission, error)
}

// ProofOracle holds the confidential account private keys.
type ProofOracle interface {
	VerifySenderProof(ctx context.Context, account string, req DecryptRequest) (domain.ProofVerification, error)
	GenerateSenderProof(ctx context.Context, account string, req domain.SenderProofRequest) (string, error)
	GenerateBurnProof(ctx context.Context, account string, req domain.BurnProofRequest) (string, error)
}

const defaultConcurrency = 8

type Engine struct {
	ledger      Ledger
	oracle      ProofOracle
	logger      *zap.Logger
	concurrency int
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConcurrency caps the number of in-flight calls per request fan-out.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func New(ledger Ledger, oracle ProofOracle, opts ...Option) *Engine {
	e := &Engine{
		ledger:      ledger,
		oracle:      oracle,
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
