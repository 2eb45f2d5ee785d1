package affirm

import (
	"context"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"go.uber.org/zap"
)

type ProvedAsset struct {
	AssetID  string   `json:"assetId"`
	Proof    string   `json:"proof"`
	Auditors []string `json:"auditors"`
}

type ProvedLeg struct {
	Leg    domain.Leg    `json:"leg"`
	Proofs []ProvedAsset `json:"proofs"`
}

type PendingLeg struct {
	Leg     domain.Leg `json:"leg"`
	Missing []string   `json:"missingAssets"`
}

type ProofDetails struct {
	Pending []PendingLeg `json:"pending"`
	Proved  []ProvedLeg  `json:"proved"`
}

// ProvedLeg returns the proved leg with the given id, if any.
func (d ProofDetails) ProvedLeg(legID int) (ProvedLeg, bool) {
	for _, p := range d.Proved {
		if p.Leg.ID == legID {
			return p, true
		}
	}
	return ProvedLeg{}, false
}

// Partition splits legs by whether every asset carries a sender proof.
//
// A proof record that names a leg or asset the leg metadata does not know is
// reported as an internal error: the chain and its indexed projection
// disagree, which the caller cannot fix.
func Partition(legs []domain.Leg, records []domain.LegProofs) (ProofDetails, error) {
	if len(legs) == 0 {
		return ProofDetails{}, apperr.NotFoundResource("transaction legs not found; the transaction may have been executed", "transaction")
	}

	byLeg := make(map[int]map[string]string, len(records))
	for _, rec := range records {
		leg, ok := findLeg(legs, rec.LegID)
		if !ok {
			return ProofDetails{}, apperr.Internalf("sender proof recorded for leg %d which has no leg metadata", rec.LegID)
		}
		proofs := byLeg[rec.LegID]
		if proofs == nil {
			proofs = make(map[string]string, len(rec.Proofs))
			byLeg[rec.LegID] = proofs
		}
		for _, p := range rec.Proofs {
			if _, ok := leg.Auditors(p.AssetID); !ok {
				return ProofDetails{}, apperr.Internalf("sender proof for leg %d references asset %s not present in the leg", rec.LegID, p.AssetID)
			}
			proofs[p.AssetID] = p.Proof
		}
	}

	out := ProofDetails{Pending: []PendingLeg{}, Proved: []ProvedLeg{}}
	for _, leg := range legs {
		proofs := byLeg[leg.ID]
		var missing []string
		proved := make([]ProvedAsset, 0, len(leg.AssetAuditors))
		for _, aa := range leg.AssetAuditors {
			proof, ok := proofs[aa.AssetID]
			if !ok {
				missing = append(missing, aa.AssetID)
				continue
			}
			proved = append(proved, ProvedAsset{AssetID: aa.AssetID, Proof: proof, Auditors: aa.Auditors})
		}
		if len(missing) > 0 || len(leg.AssetAuditors) == 0 {
			out.Pending = append(out.Pending, PendingLeg{Leg: leg, Missing: missing})
			continue
		}
		out.Proved = append(out.Proved, ProvedLeg{Leg: leg, Proofs: proved})
	}
	return out, nil
}

// ProofDetails loads the transaction and its proof records and partitions
// the transaction's legs.
func (e *Engine) ProofDetails(ctx context.Context, txID uint64) (ProofDetails, error) {
	tx, err := e.ledger.Transaction(ctx, txID)
	if err != nil {
		return ProofDetails{}, apperr.Upstreamf(err, "load transaction %d", txID)
	}
	records, err := e.ledger.SenderProofs(ctx, txID)
	if err != nil {
		return ProofDetails{}, apperr.Upstreamf(err, "load sender proofs of transaction %d", txID)
	}
	details, err := Partition(tx.Legs, records)
	if err != nil {
		if apperr.IsInternal(err) {
			e.logger.Error("proof records disagree with leg metadata",
				zap.Uint64("transaction_id", txID), zap.Error(err), alertField)
		}
		return ProofDetails{}, err
	}
	return details, nil
}

func findLeg(legs []domain.Leg, id int) (domain.Leg, bool) {
	for _, l := range legs {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Leg{}, false
}
