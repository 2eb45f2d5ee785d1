package affirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"go.uber.org/zap"
)

type VerifyAndAffirmParams struct {
	LegID           int
	PublicKey       string
	ExpectedAmounts []domain.LegAmount
	Party           domain.Party
	Options         domain.TxOptions
}

// VerifyAndAffirmLeg decrypts a proved leg with the caller's key and affirms
// it only when the decrypted assets and amounts are exactly the expected
// ones. Any failed check returns before the ledger is written.
//
// Checks run in order: validity, completeness, asset match, amounts. A proof
// the proof server rejects is reported before any bookkeeping mismatch.
func (e *Engine) VerifyAndAffirmLeg(ctx context.Context, txID uint64, p VerifyAndAffirmParams) (domain.Submission, error) {
	sub, err := e.verifyAndAffirm(ctx, txID, p)
	affirmations.WithLabelValues(pathVerify, outcomeFor(err)).Inc()
	if err != nil {
		fields := []zap.Field{zap.Uint64("transaction_id", txID), zap.Int("leg_id", p.LegID), zap.Error(err)}
		if apperr.IsInternal(err) {
			e.logger.Error("verify and affirm failed", append(fields, alertField)...)
		} else {
			e.logger.Info("verify and affirm rejected", fields...)
		}
	}
	return sub, err
}

func (e *Engine) verifyAndAffirm(ctx context.Context, txID uint64, p VerifyAndAffirmParams) (domain.Submission, error) {
	if err := p.Options.Validate(); err != nil {
		return domain.Submission{}, err
	}
	if strings.TrimSpace(p.PublicKey) == "" {
		return domain.Submission{}, apperr.Validation("publicKey is required")
	}
	if len(p.ExpectedAmounts) == 0 {
		return domain.Submission{}, apperr.Validation("At least one amount must be provided")
	}
	if err := domain.ValidateObserverParty(p.Party); err != nil {
		return domain.Submission{}, err
	}
	details, err := e.ProofDetails(ctx, txID)
	if err != nil {
		return domain.Submission{}, err
	}
	leg, ok := details.ProvedLeg(p.LegID)
	if !ok {
		return domain.Submission{}, apperr.NotFoundResource("leg was not proven", "transaction")
	}

	results, err := e.DecryptLeg(ctx, leg, p.PublicKey, p.ExpectedAmounts)
	if err != nil {
		return domain.Submission{}, err
	}
	decrypted := make([]domain.VerificationResult, 0, len(results))
	for _, r := range results {
		if r.AmountDecrypted {
			decrypted = append(decrypted, r)
		}
	}

	if err := checkValidity(decrypted); err != nil {
		return domain.Submission{}, err
	}
	if len(decrypted) != len(p.ExpectedAmounts) {
		return domain.Submission{}, apperr.Validationf(
			"Expected amounts and decrypted amounts were different. Expected %d assets but decrypted %d",
			len(p.ExpectedAmounts), len(decrypted))
	}
	if err := checkAssetMatch(p.ExpectedAmounts, decrypted); err != nil {
		return domain.Submission{}, err
	}
	if err := checkAmounts(p.ExpectedAmounts, decrypted); err != nil {
		return domain.Submission{}, err
	}

	sub, err := e.ledger.AffirmLeg(ctx, txID, domain.AffirmLegParams{
		LegID:   p.LegID,
		Party:   p.Party,
		Options: p.Options,
	})
	if err != nil {
		return domain.Submission{}, apperr.Upstreamf(err, "affirm leg %d of transaction %d as %s", p.LegID, txID, p.Party)
	}
	e.logger.Info("verified and affirmed leg",
		zap.Uint64("transaction_id", txID),
		zap.Int("leg_id", p.LegID),
		zap.String("party", string(p.Party)),
		zap.String("tx_hash", sub.TransactionHash))
	return sub, nil
}

// ObserverAffirmLeg affirms a leg as receiver or mediator without decrypting
// it first.
func (e *Engine) ObserverAffirmLeg(ctx context.Context, txID uint64, legID int, party domain.Party, opts domain.TxOptions) (domain.Submission, error) {
	if err := opts.Validate(); err != nil {
		return domain.Submission{}, err
	}
	if err := domain.ValidateObserverParty(party); err != nil {
		return domain.Submission{}, err
	}
	if _, err := e.ledger.Transaction(ctx, txID); err != nil {
		return domain.Submission{}, apperr.Upstreamf(err, "load transaction %d", txID)
	}
	sub, err := e.ledger.AffirmLeg(ctx, txID, domain.AffirmLegParams{LegID: legID, Party: party, Options: opts})
	affirmations.WithLabelValues(pathObserver, outcomeFor(err)).Inc()
	if err != nil {
		return domain.Submission{}, apperr.Upstreamf(err, "affirm leg %d of transaction %d as %s", legID, txID, party)
	}
	return sub, nil
}

func checkValidity(decrypted []domain.VerificationResult) error {
	var legs, msgs []string
	for _, r := range decrypted {
		if r.IsValid != nil && *r.IsValid {
			continue
		}
		legs = append(legs, fmt.Sprint(r.LegID))
		msg := ""
		if r.ErrMsg != nil {
			msg = *r.ErrMsg
		}
		msgs = append(msgs, msg)
	}
	if len(legs) == 0 {
		return nil
	}
	return apperr.Validationf("Invalid legs: [%s], errors: [%s]", strings.Join(legs, ","), strings.Join(msgs, ","))
}

func checkAssetMatch(expected []domain.LegAmount, decrypted []domain.VerificationResult) error {
	decryptedSet := make(map[string]struct{}, len(decrypted))
	for _, r := range decrypted {
		decryptedSet[r.AssetID] = struct{}{}
	}
	expectedSet := make(map[string]struct{}, len(expected))
	for _, ea := range expected {
		expectedSet[ea.AssetID] = struct{}{}
	}

	var missing, extra []string
	for _, ea := range expected {
		if _, ok := decryptedSet[ea.AssetID]; !ok {
			missing = append(missing, ea.AssetID)
		}
	}
	for _, r := range decrypted {
		if _, ok := expectedSet[r.AssetID]; !ok {
			extra = append(extra, r.AssetID)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return apperr.Validationf("Expected and decrypted had different assets. Expected assets: %s, decrypted: %s",
		strings.Join(missing, ","), strings.Join(extra, ","))
}

// checkAmounts compares amounts the proof server returned with the declared
// ones. An answer without an amount relies on the server's validity flag.
func checkAmounts(expected []domain.LegAmount, decrypted []domain.VerificationResult) error {
	var mismatched []string
	for _, r := range decrypted {
		want := findExpected(expected, r.AssetID)
		if want == nil || r.Amount == nil {
			continue
		}
		if !want.Equal(*r.Amount) {
			mismatched = append(mismatched, r.AssetID)
		}
	}
	if len(mismatched) == 0 {
		return nil
	}
	return apperr.Validationf("Expected leg amounts did not match actual amounts for assets: %s", strings.Join(mismatched, ","))
}
