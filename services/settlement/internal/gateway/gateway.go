// Package gateway assembles the engine's view of the ledger from the node
// gateway and, when configured, the indexer database.
package gateway

import (
	"context"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/ledgerclient"
)

// ProofIndex serves sender proof records from a projection of the chain.
type ProofIndex interface {
	SenderProofs(ctx context.Context, txID uint64) ([]domain.LegProofs, error)
}

type Gateway struct {
	*ledgerclient.Client
	proofs ProofIndex
}

// New returns a Gateway that reads everything from client. A non-nil index
// takes over SenderProofs.
func New(client *ledgerclient.Client, index ProofIndex) *Gateway {
	return &Gateway{Client: client, proofs: index}
}

func (g *Gateway) SenderProofs(ctx context.Context, txID uint64) ([]domain.LegProofs, error) {
	if g.proofs != nil {
		return g.proofs.SenderProofs(ctx, txID)
	}
	return g.Client.SenderProofs(ctx, txID)
}
