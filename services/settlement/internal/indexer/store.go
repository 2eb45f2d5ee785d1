// Package indexer reads sender proofs from the chain indexer's database.
// The tables belong to the indexer; this package only reads them.
package indexer

import (
	"context"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

type proofRow struct {
	LegID   int
	AssetID string
	Proof   string
}

func (s *Store) SenderProofs(ctx context.Context, txID uint64) ([]domain.LegProofs, error) {
	rows, err := s.DB.Query(ctx, `
SELECT leg_id, asset_id, proof
FROM confidential_sender_proofs
WHERE transaction_id=$1
ORDER BY leg_id, asset_id`, int64(txID))
	if err != nil {
		return nil, apperr.Upstreamf(err, "query sender proofs of transaction %d", txID)
	}
	defer rows.Close()
	var out []proofRow
	for rows.Next() {
		var r proofRow
		if err := rows.Scan(&r.LegID, &r.AssetID, &r.Proof); err != nil {
			return nil, apperr.Upstreamf(err, "scan sender proof of transaction %d", txID)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstreamf(err, "read sender proofs of transaction %d", txID)
	}
	return groupByLeg(out), nil
}

// groupByLeg folds rows sorted by leg id into one record per leg.
func groupByLeg(rows []proofRow) []domain.LegProofs {
	out := []domain.LegProofs{}
	for _, r := range rows {
		if n := len(out); n == 0 || out[n-1].LegID != r.LegID {
			out = append(out, domain.LegProofs{LegID: r.LegID})
		}
		last := &out[len(out)-1]
		last.Proofs = append(last.Proofs, domain.AssetProof{AssetID: r.AssetID, Proof: r.Proof})
	}
	return out
}
