package domain

import (
	"strings"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/google/uuid"
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "Pending"
	StatusExecuted TransactionStatus = "Executed"
	StatusRejected TransactionStatus = "Rejected"
)

// IsFinal reports whether the transaction can no longer change.
func (s TransactionStatus) IsFinal() bool {
	return s == StatusExecuted || s == StatusRejected
}

type Transaction struct {
	ID        uint64            `json:"id,string"`
	VenueID   uint64            `json:"venueId,string"`
	CreatedAt uint64            `json:"createdAt,string"`
	Status    TransactionStatus `json:"status"`
	Memo      string            `json:"memo,omitempty"`
	Legs      []Leg             `json:"legs"`
}

type AssetAuditors struct {
	AssetID  string   `json:"asset"`
	Auditors []string `json:"auditors"`
}

type Leg struct {
	ID            int             `json:"id"`
	Sender        string          `json:"sender"`
	Receiver      string          `json:"receiver"`
	Mediators     []string        `json:"mediators"`
	AssetAuditors []AssetAuditors `json:"assetAuditors"`
}

// Auditors returns the auditor keys configured for assetID in this leg.
func (l Leg) Auditors(assetID string) ([]string, bool) {
	for _, aa := range l.AssetAuditors {
		if aa.AssetID == assetID {
			return aa.Auditors, true
		}
	}
	return nil, false
}

func (l Leg) AssetIDs() []string {
	out := make([]string, 0, len(l.AssetAuditors))
	for _, aa := range l.AssetAuditors {
		out = append(out, aa.AssetID)
	}
	return out
}

type Party string

const (
	PartySender   Party = "Sender"
	PartyReceiver Party = "Receiver"
	PartyMediator Party = "Mediator"
)

// ValidateObserverParty accepts the parties that affirm without a proof.
func ValidateObserverParty(p Party) error {
	switch p {
	case PartyReceiver, PartyMediator:
		return nil
	case PartySender:
		return apperr.Validation("sender affirmation requires proofs; use the sender affirmation endpoint")
	default:
		return apperr.Validationf("unknown party %q", p)
	}
}

type TxOptions struct {
	Signer string `json:"signer"`
}

func (o TxOptions) Validate() error {
	if strings.TrimSpace(o.Signer) == "" {
		return apperr.Validation("signer is required")
	}
	return nil
}

type AffirmLegParams struct {
	LegID   int
	Party   Party
	Proofs  []AssetProof
	Options TxOptions
}

// Submission describes a ledger operation that was accepted by the chain.
type Submission struct {
	TransactionHash string `json:"transactionHash"`
	BlockHash       string `json:"blockHash"`
	BlockNumber     uint64 `json:"blockNumber,string"`
	Tag             string `json:"transactionTag"`
}

type Venue struct {
	ID      uint64 `json:"id,string"`
	Creator string `json:"creator"`
}

type CreationEvent struct {
	BlockNumber uint64 `json:"blockNumber,string"`
	BlockHash   string `json:"blockHash"`
	BlockDate   string `json:"blockDate"`
	EventIndex  uint64 `json:"eventIndex,string"`
}

// NewLeg is a leg as requested when adding a transaction to a venue.
type NewLeg struct {
	Assets    []string `json:"assets"`
	Sender    string   `json:"sender"`
	Receiver  string   `json:"receiver"`
	Auditors  []string `json:"auditors"`
	Mediators []string `json:"mediators"`
}

const MaxMemoBytes = 32

func ValidateNewTransaction(legs []NewLeg, memo string) error {
	if len(legs) == 0 {
		return apperr.Validation("at least one leg is required")
	}
	if len(memo) > MaxMemoBytes {
		return apperr.Validationf("memo must be at most %d bytes", MaxMemoBytes)
	}
	for i, leg := range legs {
		if strings.TrimSpace(leg.Sender) == "" || strings.TrimSpace(leg.Receiver) == "" {
			return apperr.Validationf("leg %d: sender and receiver are required", i)
		}
		if len(leg.Assets) == 0 {
			return apperr.Validationf("leg %d: at least one asset is required", i)
		}
		for _, a := range leg.Assets {
			if err := ValidateAssetID(a); err != nil {
				return apperr.Validationf("leg %d: %s", i, err.Error())
			}
		}
	}
	return nil
}

// ValidateAssetID checks that id is a confidential asset id (a UUID).
func ValidateAssetID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validationf("invalid confidential asset id %q", id)
	}
	return nil
}
