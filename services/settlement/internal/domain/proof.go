package domain

import (
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/shopspring/decimal"
)

// Amount is a plain asset quantity. It travels as a JSON string.
type Amount = decimal.Decimal

func NewAmount(v int64) Amount { return decimal.NewFromInt(v) }

// ValidateAmount accepts non-negative whole amounts.
func ValidateAmount(a Amount) error {
	if a.IsNegative() {
		return apperr.Validationf("amount %s must not be negative", a.String())
	}
	if !a.Equal(a.Truncate(0)) {
		return apperr.Validationf("amount %s must be a whole number", a.String())
	}
	return nil
}

type AssetProof struct {
	AssetID string `json:"asset"`
	Proof   string `json:"proof"`
}

// LegProofs are the sender proofs recorded on chain for one leg.
type LegProofs struct {
	LegID  int          `json:"legId"`
	Proofs []AssetProof `json:"proofs"`
}

type LegAmount struct {
	AssetID string `json:"confidentialAsset"`
	Amount  Amount `json:"amount"`
}

type LegAmounts struct {
	LegID           int         `json:"legId"`
	ExpectedAmounts []LegAmount `json:"expectedAmounts"`
}

func ValidateLegAmounts(amounts []LegAmount) error {
	for _, a := range amounts {
		if err := ValidateAssetID(a.AssetID); err != nil {
			return err
		}
		if err := ValidateAmount(a.Amount); err != nil {
			return err
		}
	}
	return nil
}

// ProofVerification is the proof server's answer to a decrypt request.
type ProofVerification struct {
	Amount  *Amount
	IsValid bool
	ErrMsg  *string
}

type SenderProofRequest struct {
	Amount           Amount
	Auditors         []string
	Receiver         string
	EncryptedBalance string
}

// VerificationResult is the outcome for one (leg, asset) pair. Amount and
// IsValid are set only when AmountDecrypted is true.
type VerificationResult struct {
	LegID           int     `json:"legId"`
	AssetID         string  `json:"assetId"`
	IsProved        bool    `json:"isProved"`
	IsAuditor       bool    `json:"isAuditor"`
	IsReceiver      bool    `json:"isReceiver"`
	AmountDecrypted bool    `json:"amountDecrypted"`
	Amount          *Amount `json:"amount"`
	IsValid         *bool   `json:"isValid"`
	ErrMsg          *string `json:"errMsg"`
}
