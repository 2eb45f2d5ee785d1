package affirm

import (
	"context"
	"strings"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type FundsMovement struct {
	Submission domain.Submission   `json:"submission"`
	Moves      []domain.ProvedMove `json:"moves"`
}

// MoveFunds proves every asset move against the sender's current balance and
// the asset's auditors, then submits all moves in one ledger operation.
// Nothing is submitted unless every proof was generated.
func (e *Engine) MoveFunds(ctx context.Context, moves []domain.FundMove, opts domain.TxOptions) (FundsMovement, error) {
	out, err := e.moveFunds(ctx, moves, opts)
	countFundOperation(opMoveFunds, err)
	if err != nil {
		return FundsMovement{}, err
	}
	e.logger.Info("moved funds",
		zap.Int("moves", len(out.Moves)),
		zap.String("tx_hash", out.Submission.TransactionHash))
	return out, nil
}

func (e *Engine) moveFunds(ctx context.Context, moves []domain.FundMove, opts domain.TxOptions) (FundsMovement, error) {
	if err := opts.Validate(); err != nil {
		return FundsMovement{}, err
	}
	if err := domain.ValidateFundMoves(moves); err != nil {
		return FundsMovement{}, err
	}

	auditors, err := e.auditorsOf(ctx, moves)
	if err != nil {
		return FundsMovement{}, err
	}
	var transfers []transfer
	for _, m := range moves {
		for _, a := range m.Assets {
			transfers = append(transfers, transfer{
				from:     m.From,
				to:       m.To,
				assetID:  a.AssetID,
				amount:   a.Amount,
				auditors: auditors[a.AssetID],
			})
		}
	}
	proofs, err := e.proveTransfers(ctx, transfers)
	if err != nil {
		return FundsMovement{}, err
	}

	proved := make([]domain.ProvedMove, len(moves))
	slot := 0
	for i, m := range moves {
		pm := domain.ProvedMove{From: m.From, To: m.To, Proofs: make([]domain.MoveProof, len(m.Assets))}
		for j, a := range m.Assets {
			pm.Proofs[j] = domain.MoveProof{AssetID: a.AssetID, Amount: a.Amount, Proof: proofs[slot]}
			slot++
		}
		proved[i] = pm
	}

	sub, err := e.ledger.MoveFunds(ctx, proved, opts)
	if err != nil {
		return FundsMovement{}, apperr.Upstreamf(err, "submit %d fund moves", len(proved))
	}
	return FundsMovement{Submission: sub, Moves: proved}, nil
}

// auditorsOf loads the auditors of every distinct asset in moves.
func (e *Engine) auditorsOf(ctx context.Context, moves []domain.FundMove) (map[string][]string, error) {
	var assets []string
	seen := make(map[string]struct{})
	for _, m := range moves {
		for _, a := range m.Assets {
			if _, ok := seen[a.AssetID]; !ok {
				seen[a.AssetID] = struct{}{}
				assets = append(assets, a.AssetID)
			}
		}
	}

	found := make([][]string, len(assets))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i, assetID := range assets {
		i, assetID := i, assetID
		g.Go(func() error {
			a, err := e.ledger.AssetAuditors(ctx, assetID)
			if err != nil {
				return apperr.Upstreamf(err, "load auditors of asset %s", assetID)
			}
			found[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(assets))
	for i, assetID := range assets {
		out[assetID] = found[i]
	}
	return out, nil
}

// BurnAsset destroys amount of assetID held by account. The burn proof is
// built from the account's current encrypted balance.
func (e *Engine) BurnAsset(ctx context.Context, assetID, account string, amount domain.Amount, opts domain.TxOptions) (domain.Submission, error) {
	sub, err := e.burnAsset(ctx, assetID, account, amount, opts)
	countFundOperation(opBurn, err)
	if err != nil {
		return domain.Submission{}, err
	}
	e.logger.Info("burned asset",
		zap.String("asset_id", assetID),
		zap.String("account", account),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", sub.TransactionHash))
	return sub, nil
}

func (e *Engine) burnAsset(ctx context.Context, assetID, account string, amount domain.Amount, opts domain.TxOptions) (domain.Submission, error) {
	if err := opts.Validate(); err != nil {
		return domain.Submission{}, err
	}
	if err := domain.ValidateAssetID(assetID); err != nil {
		return domain.Submission{}, err
	}
	if strings.TrimSpace(account) == "" {
		return domain.Submission{}, apperr.Validation("confidentialAccount is required")
	}
	if err := domain.ValidateBurnAmount(amount); err != nil {
		return domain.Submission{}, err
	}

	balance, err := e.ledger.AccountBalance(ctx, account, assetID)
	if err != nil {
		return domain.Submission{}, apperr.Upstreamf(err, "load balance of %s for asset %s", account, assetID)
	}
	proof, err := e.oracle.GenerateBurnProof(ctx, account, domain.BurnProofRequest{
		Amount:           amount,
		EncryptedBalance: balance,
	})
	if err != nil {
		return domain.Submission{}, apperr.Upstreamf(err, "generate burn proof for asset %s", assetID)
	}
	sub, err := e.ledger.BurnAsset(ctx, assetID, domain.BurnParams{
		Account: account,
		Amount:  amount,
		Proof:   proof,
		Options: opts,
	})
	if err != nil {
		return domain.Submission{}, apperr.Upstreamf(err, "burn asset %s", assetID)
	}
	return sub, nil
}

func countFundOperation(op string, err error) {
	outcome := "submitted"
	if err != nil {
		outcome = outcomeFor(err)
	}
	fundOperations.WithLabelValues(op, outcome).Inc()
}
