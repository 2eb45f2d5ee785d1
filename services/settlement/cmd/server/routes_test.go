package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/affirm"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/proofclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	assetX     = "76702175-d8cb-e3a5-5a19-734433351e25"
	auditorKey = "0xauditor"
	receiver   = "0xreceiver"
)

type fakeLedger struct {
	legs     []domain.Leg
	proofs   []domain.LegProofs
	affirmed []domain.AffirmLegParams
	venueTx  []domain.NewLeg
	moved    []domain.ProvedMove
	burned   []domain.BurnParams
}

func (f *fakeLedger) Transaction(_ context.Context, txID uint64) (domain.Transaction, error) {
	if txID != 1 {
		return domain.Transaction{}, apperr.NotFound("transaction not found")
	}
	return domain.Transaction{ID: 1, VenueID: 2, Status: domain.StatusPending, Legs: f.legs}, nil
}

func (f *fakeLedger) Legs(context.Context, uint64) ([]domain.Leg, error) { return f.legs, nil }

func (f *fakeLedger) SenderProofs(context.Context, uint64) ([]domain.LegProofs, error) {
	return f.proofs, nil
}

func (f *fakeLedger) AccountBalance(context.Context, string, string) (string, error) {
	return "0xbalance", nil
}

func (f *fakeLedger) AffirmLeg(_ context.Context, _ uint64, p domain.AffirmLegParams) (domain.Submission, error) {
	f.affirmed = append(f.affirmed, p)
	return domain.Submission{TransactionHash: "0xaffirm", BlockNumber: 5}, nil
}

func (f *fakeLedger) PendingAffirmsCount(context.Context, uint64) (int, error) { return 3, nil }

func (f *fakeLedger) InvolvedParties(context.Context, uint64) ([]string, error) {
	return []string{"did:alice", "did:bob"}, nil
}

func (f *fakeLedger) TransactionCreatedAt(_ context.Context, txID uint64) (*domain.CreationEvent, error) {
	if txID != 1 {
		return nil, nil
	}
	return &domain.CreationEvent{BlockNumber: 10, BlockHash: "0xb"}, nil
}

func (f *fakeLedger) RejectTransaction(context.Context, uint64, domain.TxOptions) (domain.Submission, error) {
	return domain.Submission{TransactionHash: "0xreject"}, nil
}

func (f *fakeLedger) ExecuteTransaction(context.Context, uint64, domain.TxOptions) (domain.Submission, error) {
	return domain.Submission{}, apperr.Upstream(assert.AnError, "ledger gateway unreachable")
}

func (f *fakeLedger) CreateVenue(context.Context, domain.TxOptions) (uint64, domain.Submission, error) {
	return 8, domain.Submission{TransactionHash: "0xvenue"}, nil
}

func (f *fakeLedger) Venue(_ context.Context, id uint64) (domain.Venue, error) {
	return domain.Venue{ID: id, Creator: "did:alice"}, nil
}

func (f *fakeLedger) AddTransaction(_ context.Context, _ uint64, legs []domain.NewLeg, _ string, _ domain.TxOptions) (uint64, domain.Submission, error) {
	f.venueTx = legs
	return 44, domain.Submission{TransactionHash: "0xtx"}, nil
}

func (f *fakeLedger) AccountBalances(_ context.Context, account string) ([]domain.AssetBalance, error) {
	if account != receiver {
		return nil, apperr.NotFound("confidential account not found")
	}
	return []domain.AssetBalance{{AssetID: assetX, Balance: "0xbalance"}}, nil
}

func (f *fakeLedger) IncomingBalances(context.Context, string) ([]domain.AssetBalance, error) {
	return []domain.AssetBalance{{AssetID: assetX, Balance: "0xincoming"}}, nil
}

func (f *fakeLedger) IncomingBalance(context.Context, string, string) (string, error) {
	return "0xincoming", nil
}

func (f *fakeLedger) ApplyIncomingBalances(context.Context, string, domain.TxOptions) ([]domain.AppliedBalance, domain.Submission, error) {
	return []domain.AppliedBalance{{AssetID: assetX, Amount: "0xincoming", Balance: "0xnew"}}, domain.Submission{TransactionHash: "0xapply"}, nil
}

func (f *fakeLedger) AssetAuditors(context.Context, string) ([]string, error) {
	return []string{auditorKey}, nil
}

func (f *fakeLedger) MoveFunds(_ context.Context, moves []domain.ProvedMove, _ domain.TxOptions) (domain.Submission, error) {
	f.moved = append(f.moved, moves...)
	return domain.Submission{TransactionHash: "0xmove"}, nil
}

func (f *fakeLedger) BurnAsset(_ context.Context, _ string, p domain.BurnParams) (domain.Submission, error) {
	f.burned = append(f.burned, p)
	return domain.Submission{TransactionHash: "0xburn"}, nil
}

type fakeProofs struct {
	amount int64
	valid  bool
}

func (f *fakeProofs) VerifySenderProof(context.Context, string, affirm.DecryptRequest) (domain.ProofVerification, error) {
	amt := domain.NewAmount(f.amount)
	return domain.ProofVerification{Amount: &amt, IsValid: f.valid}, nil
}

func (f *fakeProofs) GenerateSenderProof(context.Context, string, domain.SenderProofRequest) (string, error) {
	return "0xgenerated", nil
}

func (f *fakeProofs) GenerateBurnProof(context.Context, string, domain.BurnProofRequest) (string, error) {
	return "0xburnproof", nil
}

func (f *fakeProofs) ListAccounts(context.Context) ([]proofclient.Account, error) {
	return []proofclient.Account{{ConfidentialAccount: auditorKey}}, nil
}

func (f *fakeProofs) CreateAccount(context.Context) (proofclient.Account, error) {
	return proofclient.Account{ConfidentialAccount: "0xnew"}, nil
}

func (f *fakeProofs) AuditorVerify(_ context.Context, _, _ string, _ int, _ *domain.Amount) (domain.ProofVerification, error) {
	return f.VerifySenderProof(context.Background(), "", nil)
}

func (f *fakeProofs) ReceiverVerify(_ context.Context, _, _ string, _ *domain.Amount) (domain.ProofVerification, error) {
	return f.VerifySenderProof(context.Background(), "", nil)
}

func (f *fakeProofs) DecryptBalance(context.Context, string, string) (domain.Amount, error) {
	return domain.NewAmount(77), nil
}

func provedLedger() *fakeLedger {
	return &fakeLedger{
		legs: []domain.Leg{{
			ID: 0, Sender: "0xsender", Receiver: receiver,
			AssetAuditors: []domain.AssetAuditors{{AssetID: assetX, Auditors: []string{auditorKey}}},
		}},
		proofs: []domain.LegProofs{{LegID: 0, Proofs: []domain.AssetProof{{AssetID: assetX, Proof: "0xproof"}}}},
	}
}

func newTestServer(l *fakeLedger, p *fakeProofs) http.Handler {
	engine := affirm.New(l, p)
	return newRouter(engine, l, p, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	code, _ := do(t, newTestServer(provedLedger(), &fakeProofs{}), http.MethodGet, "/health", nil)
	assert.Equal(t, 200, code)
}

func TestVerifyAmountsEndpoint(t *testing.T) {
	h := newTestServer(provedLedger(), &fakeProofs{amount: 100, valid: true})

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/verify-amounts", map[string]any{
		"publicKey": auditorKey,
	})
	require.Equal(t, 200, code)
	verifications, _ := out["verifications"].([]any)
	require.Len(t, verifications, 1)
	v := verifications[0].(map[string]any)
	assert.Equal(t, float64(0), v["legId"])
	assert.Equal(t, assetX, v["assetId"])
	assert.Equal(t, true, v["isProved"])
	assert.Equal(t, true, v["isAuditor"])
	assert.Equal(t, false, v["isReceiver"])
	assert.Equal(t, true, v["amountDecrypted"])
	assert.Equal(t, "100", v["amount"])
	assert.Equal(t, true, v["isValid"])
	assert.Nil(t, v["errMsg"])
	assert.NotEmpty(t, out["request_id"])
}

func TestVerifyAmountsRejectsBadInput(t *testing.T) {
	h := newTestServer(provedLedger(), &fakeProofs{})

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/verify-amounts", map[string]any{"publicKey": ""})
	assert.Equal(t, 400, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(out))

	code, out = do(t, h, http.MethodPost, "/confidential-transactions/abc/verify-amounts", map[string]any{"publicKey": auditorKey})
	assert.Equal(t, 400, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(out))

	code, out = do(t, h, http.MethodPost, "/confidential-transactions/1/verify-amounts", map[string]any{"publicKey": auditorKey, "extra": 1})
	assert.Equal(t, 400, code)
	assert.Equal(t, "BAD_JSON", errorCode(out))
}

func TestVerifyAndAffirmEndpoint(t *testing.T) {
	l := provedLedger()
	h := newTestServer(l, &fakeProofs{amount: 100, valid: true})

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/verify-and-affirm-leg", map[string]any{
		"signer":          "bob",
		"legId":           0,
		"publicKey":       receiver,
		"party":           "Receiver",
		"expectedAmounts": []any{map[string]any{"confidentialAsset": assetX, "amount": "100"}},
	})
	require.Equal(t, 201, code, out)
	sub := out["submission"].(map[string]any)
	assert.Equal(t, "0xaffirm", sub["transactionHash"])
	require.Len(t, l.affirmed, 1)
	assert.Equal(t, domain.PartyReceiver, l.affirmed[0].Party)
}

func TestVerifyAndAffirmMismatchDoesNotAffirm(t *testing.T) {
	l := provedLedger()
	h := newTestServer(l, &fakeProofs{amount: 100, valid: true})

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/verify-and-affirm-leg", map[string]any{
		"signer":          "bob",
		"legId":           0,
		"publicKey":       receiver,
		"party":           "Receiver",
		"expectedAmounts": []any{map[string]any{"confidentialAsset": assetX, "amount": "100"}, map[string]any{"confidentialAsset": "0a6f2f1e-5b7c-4a5e-9c1d-2b3e4f5a6b7c", "amount": "1"}},
	})
	assert.Equal(t, 400, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(out))
	assert.Empty(t, l.affirmed)
}

func TestVerifyAndAffirmPendingLegIsNotFound(t *testing.T) {
	l := provedLedger()
	l.proofs = nil
	h := newTestServer(l, &fakeProofs{})

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/verify-and-affirm-leg", map[string]any{
		"signer":          "bob",
		"legId":           0,
		"publicKey":       receiver,
		"party":           "Receiver",
		"expectedAmounts": []any{map[string]any{"confidentialAsset": assetX, "amount": "100"}},
	})
	assert.Equal(t, 404, code)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
	details := out["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "transaction", details["resource"])
}

func TestSenderAffirmEndpoint(t *testing.T) {
	l := provedLedger()
	l.proofs = nil
	h := newTestServer(l, &fakeProofs{})

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/affirm-leg/sender", map[string]any{
		"signer":     "alice",
		"legId":      0,
		"legAmounts": []any{map[string]any{"confidentialAsset": assetX, "amount": "10"}},
	})
	require.Equal(t, 201, code, out)
	proofs := out["proofs"].([]any)
	require.Len(t, proofs, 1)
	assert.Equal(t, "0xgenerated", proofs[0].(map[string]any)["proof"])
	require.Len(t, l.affirmed, 1)
	assert.Equal(t, domain.PartySender, l.affirmed[0].Party)

	code, out = do(t, h, http.MethodPost, "/confidential-transactions/1/affirm-leg/sender", map[string]any{
		"signer":     "alice",
		"legId":      3,
		"legAmounts": []any{map[string]any{"confidentialAsset": assetX, "amount": "10"}},
	})
	assert.Equal(t, 400, code)
	assert.Equal(t, "Invalid leg ID received", out["error"].(map[string]any)["message"])
}

func TestObserverAffirmAndSubmissions(t *testing.T) {
	l := provedLedger()
	h := newTestServer(l, &fakeProofs{})

	code, _ := do(t, h, http.MethodPost, "/confidential-transactions/1/affirm-leg/observer", map[string]any{
		"signer": "carol", "legId": 0, "party": "Mediator",
	})
	assert.Equal(t, 201, code)

	code, out := do(t, h, http.MethodPost, "/confidential-transactions/1/reject", map[string]any{"signer": "carol"})
	assert.Equal(t, 201, code)
	assert.Equal(t, "0xreject", out["submission"].(map[string]any)["transactionHash"])

	code, out = do(t, h, http.MethodPost, "/confidential-transactions/1/execute", map[string]any{"signer": "carol"})
	assert.Equal(t, 502, code)
	assert.Equal(t, "UPSTREAM_ERROR", errorCode(out))

	code, _ = do(t, h, http.MethodPost, "/confidential-transactions/1/reject", map[string]any{"signer": ""})
	assert.Equal(t, 400, code)
}

func TestTransactionReads(t *testing.T) {
	h := newTestServer(provedLedger(), &fakeProofs{})

	code, out := do(t, h, http.MethodGet, "/confidential-transactions/1", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "1", out["transaction"].(map[string]any)["id"])

	code, _ = do(t, h, http.MethodGet, "/confidential-transactions/2", nil)
	assert.Equal(t, 404, code)

	code, out = do(t, h, http.MethodGet, "/confidential-transactions/1/proofs", nil)
	require.Equal(t, 200, code)
	proofs := out["proofs"].(map[string]any)
	assert.Len(t, proofs["proved"], 1)
	assert.Len(t, proofs["pending"], 0)

	code, out = do(t, h, http.MethodGet, "/confidential-transactions/1/involved-parties", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, []any{"did:alice", "did:bob"}, out["identities"])

	code, out = do(t, h, http.MethodGet, "/confidential-transactions/1/pending-affirmations-count", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, float64(3), out["pendingAffirmations"])

	code, _ = do(t, h, http.MethodGet, "/confidential-transactions/1/created-at", nil)
	assert.Equal(t, 200, code)
	code, _ = do(t, h, http.MethodGet, "/confidential-transactions/9/created-at", nil)
	assert.Equal(t, 404, code)
}

func TestVenueEndpoints(t *testing.T) {
	l := provedLedger()
	h := newTestServer(l, &fakeProofs{})

	code, out := do(t, h, http.MethodPost, "/confidential-venues/create", map[string]any{"signer": "alice"})
	require.Equal(t, 201, code)
	assert.Equal(t, "8", out["venue"].(map[string]any)["id"])

	code, out = do(t, h, http.MethodGet, "/confidential-venues/8", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "did:alice", out["venue"].(map[string]any)["creator"])

	leg := map[string]any{"assets": []string{assetX}, "sender": "0xs", "receiver": "0xr", "auditors": []string{}, "mediators": []string{}}
	code, out = do(t, h, http.MethodPost, "/confidential-venues/8/transactions", map[string]any{
		"signer": "alice", "legs": []any{leg}, "memo": "invoice 7",
	})
	require.Equal(t, 201, code, out)
	assert.Equal(t, "44", out["transaction"].(map[string]any)["id"])
	require.Len(t, l.venueTx, 1)

	code, _ = do(t, h, http.MethodPost, "/confidential-venues/8/transactions", map[string]any{
		"signer": "alice", "legs": []any{leg}, "memo": "this memo is definitely longer than thirty two bytes",
	})
	assert.Equal(t, 400, code)

	badLeg := map[string]any{"assets": []string{"not-a-uuid"}, "sender": "0xs", "receiver": "0xr"}
	code, _ = do(t, h, http.MethodPost, "/confidential-venues/8/transactions", map[string]any{
		"signer": "alice", "legs": []any{badLeg},
	})
	assert.Equal(t, 400, code)
}

func TestAccountEndpoints(t *testing.T) {
	h := newTestServer(provedLedger(), &fakeProofs{amount: 5, valid: true})

	code, out := do(t, h, http.MethodGet, "/confidential-accounts", nil)
	require.Equal(t, 200, code)
	assert.Len(t, out["accounts"], 1)

	code, out = do(t, h, http.MethodPost, "/confidential-accounts/create", nil)
	require.Equal(t, 201, code)
	assert.Equal(t, "0xnew", out["account"].(map[string]any)["confidentialAccount"])

	code, out = do(t, h, http.MethodPost, "/confidential-accounts/0xacc/auditor-verify", map[string]any{
		"senderProof": "0xproof", "auditorId": 0,
	})
	require.Equal(t, 200, code)
	assert.Equal(t, true, out["verification"].(map[string]any)["isValid"])

	code, _ = do(t, h, http.MethodPost, "/confidential-accounts/0xacc/receiver-verify", map[string]any{"senderProof": ""})
	assert.Equal(t, 400, code)

	code, out = do(t, h, http.MethodPost, "/confidential-accounts/0xacc/decrypt-balance", map[string]any{"encryptedValue": "0xenc"})
	require.Equal(t, 200, code)
	assert.Equal(t, "77", out["value"])
}

func TestBalanceEndpoints(t *testing.T) {
	h := newTestServer(provedLedger(), &fakeProofs{})

	code, out := do(t, h, http.MethodGet, "/confidential-accounts/"+receiver+"/balances", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, []any{map[string]any{"confidentialAsset": assetX, "balance": "0xbalance"}}, out["balances"])

	code, out = do(t, h, http.MethodGet, "/confidential-accounts/0xghost/balances", nil)
	assert.Equal(t, 404, code)
	assert.Equal(t, "NOT_FOUND", errorCode(out))

	code, out = do(t, h, http.MethodGet, "/confidential-accounts/"+receiver+"/balances/"+assetX, nil)
	require.Equal(t, 200, code)
	assert.Equal(t, map[string]any{"confidentialAsset": assetX, "balance": "0xbalance"}, out["balance"])

	code, _ = do(t, h, http.MethodGet, "/confidential-accounts/"+receiver+"/balances/not-a-uuid", nil)
	assert.Equal(t, 400, code)

	code, out = do(t, h, http.MethodGet, "/confidential-accounts/"+receiver+"/incoming-balances", nil)
	require.Equal(t, 200, code)
	assert.Len(t, out["balances"], 1)

	code, out = do(t, h, http.MethodGet, "/confidential-accounts/"+receiver+"/incoming-balances/"+assetX, nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "0xincoming", out["balance"].(map[string]any)["balance"])

	code, out = do(t, h, http.MethodPost, "/confidential-accounts/"+receiver+"/incoming-balances/apply", map[string]any{"signer": "bob"})
	require.Equal(t, 201, code, out)
	assert.Equal(t, "0xapply", out["submission"].(map[string]any)["transactionHash"])
	applied := out["appliedAssetBalances"].([]any)
	require.Len(t, applied, 1)
	assert.Equal(t, "0xnew", applied[0].(map[string]any)["balance"])

	code, _ = do(t, h, http.MethodPost, "/confidential-accounts/"+receiver+"/incoming-balances/apply", map[string]any{"signer": ""})
	assert.Equal(t, 400, code)
}

func TestMoveFundsEndpoint(t *testing.T) {
	l := provedLedger()
	h := newTestServer(l, &fakeProofs{})

	code, out := do(t, h, http.MethodPost, "/confidential-accounts/move-funds", map[string]any{
		"signer": "alice",
		"moves": []any{map[string]any{
			"from": "0xsender", "to": receiver,
			"assetMoves": []any{map[string]any{"confidentialAsset": assetX, "amount": "25"}},
		}},
	})
	require.Equal(t, 201, code, out)
	assert.Equal(t, "0xmove", out["submission"].(map[string]any)["transactionHash"])
	require.Len(t, l.moved, 1)
	require.Len(t, l.moved[0].Proofs, 1)
	assert.Equal(t, "0xgenerated", l.moved[0].Proofs[0].Proof)
	assert.True(t, l.moved[0].Proofs[0].Amount.Equal(domain.NewAmount(25)))

	code, out = do(t, h, http.MethodPost, "/confidential-accounts/move-funds", map[string]any{"signer": "alice", "moves": []any{}})
	assert.Equal(t, 400, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(out))
}

func TestBurnEndpoint(t *testing.T) {
	l := provedLedger()
	h := newTestServer(l, &fakeProofs{})

	code, out := do(t, h, http.MethodPost, "/confidential-assets/"+assetX+"/burn", map[string]any{
		"signer": "alice", "confidentialAccount": "0xsender", "amount": "9",
	})
	require.Equal(t, 201, code, out)
	assert.Equal(t, "0xburn", out["submission"].(map[string]any)["transactionHash"])
	require.Len(t, l.burned, 1)
	assert.Equal(t, "0xburnproof", l.burned[0].Proof)
	assert.Equal(t, "0xsender", l.burned[0].Account)

	code, _ = do(t, h, http.MethodPost, "/confidential-assets/"+assetX+"/burn", map[string]any{
		"signer": "alice", "confidentialAccount": "0xsender", "amount": "0",
	})
	assert.Equal(t, 400, code)
}
