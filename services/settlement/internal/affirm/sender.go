package affirm

import (
	"context"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type SenderAffirmation struct {
	Submission domain.Submission   `json:"submission"`
	Proofs     []domain.AssetProof `json:"proofs"`
}

// GenerateSenderProofs builds the per-asset proofs a sender must attach to
// its affirmation. Every requested asset is checked against the leg before
// any balance or proof call is made. The output follows the input order.
func (e *Engine) GenerateSenderProofs(ctx context.Context, leg domain.Leg, amounts []domain.LegAmount) ([]domain.AssetProof, error) {
	if len(amounts) == 0 {
		return nil, apperr.Validation("at least one leg amount must be provided")
	}
	auditors := make([][]string, len(amounts))
	for i, la := range amounts {
		a, ok := leg.Auditors(la.AssetID)
		if !ok {
			return nil, apperr.Validation("Asset not found in the leg")
		}
		if err := domain.ValidateAmount(la.Amount); err != nil {
			return nil, err
		}
		auditors[i] = a
	}

	transfers := make([]transfer, len(amounts))
	for i, la := range amounts {
		transfers[i] = transfer{from: leg.Sender, to: leg.Receiver, assetID: la.AssetID, amount: la.Amount, auditors: auditors[i]}
	}
	raw, err := e.proveTransfers(ctx, transfers)
	if err != nil {
		return nil, err
	}
	proofs := make([]domain.AssetProof, len(amounts))
	for i, la := range amounts {
		proofs[i] = domain.AssetProof{AssetID: la.AssetID, Proof: raw[i]}
	}
	return proofs, nil
}

// transfer is one asset amount a sender proves it can pay to a receiver.
type transfer struct {
	from     string
	to       string
	assetID  string
	amount   domain.Amount
	auditors []string
}

// proveTransfers reads each sender balance and asks the proof server for a
// sender proof. proofs[i] belongs to transfers[i].
func (e *Engine) proveTransfers(ctx context.Context, transfers []transfer) ([]string, error) {
	proofs := make([]string, len(transfers))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i, t := range transfers {
		i, t := i, t
		g.Go(func() error {
			balance, err := e.ledger.AccountBalance(ctx, t.from, t.assetID)
			if err != nil {
				return apperr.Upstreamf(err, "load balance of %s for asset %s", t.from, t.assetID)
			}
			auditors := t.auditors
			if auditors == nil {
				auditors = []string{}
			}
			proof, err := e.oracle.GenerateSenderProof(ctx, t.from, domain.SenderProofRequest{
				Amount:           t.amount,
				Auditors:         auditors,
				Receiver:         t.to,
				EncryptedBalance: balance,
			})
			if err != nil {
				return apperr.Upstreamf(err, "generate sender proof from %s for asset %s", t.from, t.assetID)
			}
			proofs[i] = proof
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}

// SenderAffirmLeg generates the sender proofs for a leg and affirms it as the
// sender.
func (e *Engine) SenderAffirmLeg(ctx context.Context, txID uint64, legID int, amounts []domain.LegAmount, opts domain.TxOptions) (SenderAffirmation, error) {
	out, err := e.senderAffirmLeg(ctx, txID, legID, amounts, opts)
	affirmations.WithLabelValues(pathSender, outcomeFor(err)).Inc()
	if err != nil {
		e.logger.Info("sender affirmation rejected",
			zap.Uint64("transaction_id", txID), zap.Int("leg_id", legID), zap.Error(err))
		return SenderAffirmation{}, err
	}
	e.logger.Info("sender affirmed leg",
		zap.Uint64("transaction_id", txID),
		zap.Int("leg_id", legID),
		zap.Int("assets", len(out.Proofs)),
		zap.String("tx_hash", out.Submission.TransactionHash))
	return out, nil
}

func (e *Engine) senderAffirmLeg(ctx context.Context, txID uint64, legID int, amounts []domain.LegAmount, opts domain.TxOptions) (SenderAffirmation, error) {
	if err := opts.Validate(); err != nil {
		return SenderAffirmation{}, err
	}
	tx, err := e.ledger.Transaction(ctx, txID)
	if err != nil {
		return SenderAffirmation{}, apperr.Upstreamf(err, "load transaction %d", txID)
	}
	if legID < 0 || legID >= len(tx.Legs) {
		return SenderAffirmation{}, apperr.Validation("Invalid leg ID received")
	}
	leg := tx.Legs[legID]

	proofs, err := e.GenerateSenderProofs(ctx, leg, amounts)
	if err != nil {
		return SenderAffirmation{}, err
	}

	sub, err := e.ledger.AffirmLeg(ctx, txID, domain.AffirmLegParams{
		LegID:   legID,
		Party:   domain.PartySender,
		Proofs:  proofs,
		Options: opts,
	})
	if err != nil {
		return SenderAffirmation{}, apperr.Upstreamf(err, "affirm leg %d of transaction %d as sender", legID, txID)
	}
	return SenderAffirmation{Submission: sub, Proofs: proofs}, nil
}
