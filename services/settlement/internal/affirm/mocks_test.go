package affirm

import (
	"context"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/stretchr/testify/mock"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Transaction(ctx context.Context, txID uint64) (domain.Transaction, error) {
	args := m.Called(ctx, txID)
	return args.Get(0).(domain.Transaction), args.Error(1)
}

func (m *mockLedger) Legs(ctx context.Context, txID uint64) ([]domain.Leg, error) {
	args := m.Called(ctx, txID)
	return args.Get(0).([]domain.Leg), args.Error(1)
}

func (m *mockLedger) SenderProofs(ctx context.Context, txID uint64) ([]domain.LegProofs, error) {
	args := m.Called(ctx, txID)
	return args.Get(0).([]domain.LegProofs), args.Error(1)
}

func (m *mockLedger) AccountBalance(ctx context.Context, account, assetID string) (string, error) {
	args := m.Called(ctx, account, assetID)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) AffirmLeg(ctx context.Context, txID uint64, params domain.AffirmLegParams) (domain.Submission, error) {
	args := m.Called(ctx, txID, params)
	return args.Get(0).(domain.Submission), args.Error(1)
}

func (m *mockLedger) AssetAuditors(ctx context.Context, assetID string) ([]string, error) {
	args := m.Called(ctx, assetID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedger) MoveFunds(ctx context.Context, moves []domain.ProvedMove, opts domain.TxOptions) (domain.Submission, error) {
	args := m.Called(ctx, moves, opts)
	return args.Get(0).(domain.Submission), args.Error(1)
}

func (m *mockLedger) BurnAsset(ctx context.Context, assetID string, params domain.BurnParams) (domain.Submission, error) {
	args := m.Called(ctx, assetID, params)
	return args.Get(0).(domain.Submission), args.Error(1)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) VerifySenderProof(ctx context.Context, account string, req DecryptRequest) (domain.ProofVerification, error) {
	args := m.Called(ctx, account, req)
	return args.Get(0).(domain.ProofVerification), args.Error(1)
}

func (m *mockOracle) GenerateSenderProof(ctx context.Context, account string, req domain.SenderProofRequest) (string, error) {
	args := m.Called(ctx, account, req)
	return args.String(0), args.Error(1)
}

func (m *mockOracle) GenerateBurnProof(ctx context.Context, account string, req domain.BurnProofRequest) (string, error) {
	args := m.Called(ctx, account, req)
	return args.String(0), args.Error(1)
}

const (
	txID       = uint64(7)
	assetX     = "76702175-d8cb-e3a5-5a19-734433351e25"
	assetY     = "0a6f2f1e-5b7c-4a5e-9c1d-2b3e4f5a6b7c"
	senderKey  = "0xsender"
	receiverKy = "0xreceiver"
	auditorKey = "0xauditor1"
	otherKey   = "0xunrelated"
)

func oneLeg() domain.Leg {
	return domain.Leg{
		ID:       0,
		Sender:   senderKey,
		Receiver: receiverKy,
		AssetAuditors: []domain.AssetAuditors{
			{AssetID: assetX, Auditors: []string{auditorKey}},
		},
	}
}

func amountPtr(v int64) *domain.Amount {
	a := domain.NewAmount(v)
	return &a
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func newTestEngine() (*Engine, *mockLedger, *mockOracle) {
	l := &mockLedger{}
	o := &mockOracle{}
	return New(l, o), l, o
}

// expectLegs serves the transaction header and its legs.
func expectLegs(l *mockLedger, legs []domain.Leg) {
	l.On("Transaction", mock.Anything, txID).Return(domain.Transaction{ID: txID, Status: domain.StatusPending, Legs: legs}, nil)
}

// expectTransaction serves the transaction and its sender proof records.
func expectTransaction(l *mockLedger, legs []domain.Leg, proofs []domain.LegProofs) {
	expectLegs(l, legs)
	l.On("SenderProofs", mock.Anything, txID).Return(proofs, nil)
}

// auditorReq matches an AuditorRequest regardless of how the hint pointer was
// built.
func auditorReq(proof string, index int, hint *domain.Amount) any {
	return mock.MatchedBy(func(r DecryptRequest) bool {
		ar, ok := r.(AuditorRequest)
		return ok && ar.SenderProof == proof && ar.AuditorIndex == index && sameHint(ar.Amount, hint)
	})
}

func receiverReq(proof string, hint *domain.Amount) any {
	return mock.MatchedBy(func(r DecryptRequest) bool {
		rr, ok := r.(ReceiverRequest)
		return ok && rr.SenderProof == proof && sameHint(rr.Amount, hint)
	})
}

func sameHint(a, b *domain.Amount) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
