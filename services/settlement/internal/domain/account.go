package domain

import (
	"strings"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
)

// AssetBalance is the encrypted balance an account holds of one asset.
type AssetBalance struct {
	AssetID string `json:"confidentialAsset"`
	Balance string `json:"balance"`
}

// AppliedBalance is an incoming balance that was folded into the account
// balance. Amount is the encrypted incoming amount, Balance the new total.
type AppliedBalance struct {
	AssetID string `json:"confidentialAsset"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

// FundMove moves assets between two confidential accounts of the signer.
type FundMove struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Assets []LegAmount `json:"assetMoves"`
}

type MoveProof struct {
	AssetID string `json:"asset"`
	Amount  Amount `json:"amount"`
	Proof   string `json:"proof"`
}

// ProvedMove is a FundMove with a sender proof for every asset.
type ProvedMove struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Proofs []MoveProof `json:"proofs"`
}

func ValidateFundMoves(moves []FundMove) error {
	if len(moves) == 0 {
		return apperr.Validation("at least one fund move is required")
	}
	for i, m := range moves {
		if strings.TrimSpace(m.From) == "" || strings.TrimSpace(m.To) == "" {
			return apperr.Validationf("move %d: from and to are required", i)
		}
		if m.From == m.To {
			return apperr.Validationf("move %d: cannot move funds to the same account", i)
		}
		if len(m.Assets) == 0 {
			return apperr.Validationf("move %d: at least one asset move is required", i)
		}
		seen := make(map[string]struct{}, len(m.Assets))
		for _, a := range m.Assets {
			if _, dup := seen[a.AssetID]; dup {
				return apperr.Validationf("move %d: asset %s is listed twice", i, a.AssetID)
			}
			seen[a.AssetID] = struct{}{}
		}
		if err := ValidateLegAmounts(m.Assets); err != nil {
			return err
		}
	}
	return nil
}

type BurnProofRequest struct {
	Amount           Amount
	EncryptedBalance string
}

// BurnParams is a proved burn of Amount from Account.
type BurnParams struct {
	Account string
	Amount  Amount
	Proof   string
	Options TxOptions
}

// ValidateBurnAmount accepts whole amounts greater than zero.
func ValidateBurnAmount(a Amount) error {
	if err := ValidateAmount(a); err != nil {
		return err
	}
	if a.IsZero() {
		return apperr.Validation("amount to burn must be greater than zero")
	}
	return nil
}
