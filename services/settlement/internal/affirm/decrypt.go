package affirm

import (
	"context"
	"sort"
	"strings"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DecryptRequest asks the proof server to open a sender proof. It is either
// an AuditorRequest or a ReceiverRequest.
type DecryptRequest interface {
	decryptRequest()
}

type ReceiverRequest struct {
	SenderProof string
	// Amount is an optional hint that lets the proof server skip the search.
	Amount *domain.Amount
}

type AuditorRequest struct {
	SenderProof  string
	AuditorIndex int
	Amount       *domain.Amount
}

func (ReceiverRequest) decryptRequest() {}
func (AuditorRequest) decryptRequest()  {}

func NewReceiverRequest(senderProof string, hint *domain.Amount) DecryptRequest {
	return ReceiverRequest{SenderProof: senderProof, Amount: hint}
}

func NewAuditorRequest(senderProof string, auditorIndex int, hint *domain.Amount) DecryptRequest {
	return AuditorRequest{SenderProof: senderProof, AuditorIndex: auditorIndex, Amount: hint}
}

type decryptJob struct {
	slot      int
	legID     int
	assetID   string
	isAuditor bool
	req       DecryptRequest
}

func (j decryptJob) result(v domain.ProofVerification) domain.VerificationResult {
	_, receiver := j.req.(ReceiverRequest)
	valid := v.IsValid
	return domain.VerificationResult{
		LegID:           j.legID,
		AssetID:         j.assetID,
		IsProved:        true,
		IsAuditor:       j.isAuditor,
		IsReceiver:      receiver,
		AmountDecrypted: true,
		Amount:          v.Amount,
		IsValid:         &valid,
		ErrMsg:          v.ErrMsg,
	}
}

// VerifyTransactionAmounts reports, for every leg and asset of the
// transaction, whether the sender has proved it and what publicKey can
// decrypt from it. legAmounts are optional per-leg hints for the proof server.
// The result is ordered by leg id.
func (e *Engine) VerifyTransactionAmounts(ctx context.Context, txID uint64, publicKey string, legAmounts []domain.LegAmounts) ([]domain.VerificationResult, error) {
	if strings.TrimSpace(publicKey) == "" {
		return nil, apperr.Validation("publicKey is required")
	}
	details, err := e.ProofDetails(ctx, txID)
	if err != nil {
		return nil, err
	}

	var (
		results []domain.VerificationResult
		jobs    []decryptJob
	)
	for _, p := range details.Pending {
		for _, ar := range ResolveRoles(p.Leg, publicKey) {
			results = append(results, domain.VerificationResult{
				LegID:      p.Leg.ID,
				AssetID:    ar.AssetID,
				IsAuditor:  ar.Role.IsAuditor(),
				IsReceiver: ar.Role.Receiver,
			})
		}
	}
	for _, leg := range details.Proved {
		results, jobs = planLeg(results, jobs, leg, publicKey, hintsFor(legAmounts, leg.Leg.ID))
	}

	if err := e.runDecrypts(ctx, publicKey, results, jobs); err != nil {
		return nil, err
	}
	sortByLeg(results)
	e.logger.Debug("verified transaction amounts",
		zap.Uint64("transaction_id", txID),
		zap.Int("results", len(results)),
		zap.Int("decrypted", len(jobs)))
	return results, nil
}

// DecryptLeg decrypts every asset of one proved leg that publicKey can open.
// Assets the key cannot open come back with AmountDecrypted false.
func (e *Engine) DecryptLeg(ctx context.Context, leg ProvedLeg, publicKey string, expected []domain.LegAmount) ([]domain.VerificationResult, error) {
	results, jobs := planLeg(nil, nil, leg, publicKey, expected)
	if err := e.runDecrypts(ctx, publicKey, results, jobs); err != nil {
		return nil, err
	}
	sortByLeg(results)
	return results, nil
}

// planLeg appends one result slot per asset of a proved leg and a decrypt job
// for each slot the key can open. A receiver is asked once per asset even when
// it is also an auditor of that asset.
func planLeg(results []domain.VerificationResult, jobs []decryptJob, leg ProvedLeg, key string, expected []domain.LegAmount) ([]domain.VerificationResult, []decryptJob) {
	for _, asset := range leg.Proofs {
		role := roleFor(leg.Leg.Sender, leg.Leg.Receiver, asset.Auditors, key)
		slot := len(results)
		results = append(results, domain.VerificationResult{
			LegID:    leg.Leg.ID,
			AssetID:  asset.AssetID,
			IsProved: true,
		})
		hint := findExpected(expected, asset.AssetID)
		switch {
		case role.Receiver:
			jobs = append(jobs, decryptJob{
				slot: slot, legID: leg.Leg.ID, assetID: asset.AssetID, isAuditor: role.IsAuditor(),
				req: NewReceiverRequest(asset.Proof, hint),
			})
		case role.IsAuditor():
			jobs = append(jobs, decryptJob{
				slot: slot, legID: leg.Leg.ID, assetID: asset.AssetID, isAuditor: true,
				req: NewAuditorRequest(asset.Proof, role.AuditorIndex, hint),
			})
		}
	}
	return results, jobs
}

// runDecrypts sends every job to the proof server and writes each answer into
// its slot. All calls finish before it returns; the first failure is reported.
func (e *Engine) runDecrypts(ctx context.Context, key string, results []domain.VerificationResult, jobs []decryptJob) error {
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			v, err := e.oracle.VerifySenderProof(ctx, key, job.req)
			if err != nil {
				return apperr.Upstreamf(err, "decrypt sender proof for leg %d asset %s", job.legID, job.assetID)
			}
			results[job.slot] = job.result(v)
			return nil
		})
	}
	return g.Wait()
}

func hintsFor(legAmounts []domain.LegAmounts, legID int) []domain.LegAmount {
	for _, la := range legAmounts {
		if la.LegID == legID {
			return la.ExpectedAmounts
		}
	}
	return nil
}

func findExpected(expected []domain.LegAmount, assetID string) *domain.Amount {
	for _, ea := range expected {
		if ea.AssetID == assetID {
			amt := ea.Amount
			return &amt
		}
	}
	return nil
}

func sortByLeg(results []domain.VerificationResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].LegID < results[j].LegID })
}
