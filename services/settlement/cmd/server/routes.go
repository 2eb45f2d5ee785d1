package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/httpx"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/affirm"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/proofclient"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ledgerAPI is the part of the ledger gateway the handlers use directly.
type ledgerAPI interface {
	Transaction(ctx context.Context, txID uint64) (domain.Transaction, error)
	PendingAffirmsCount(ctx context.Context, txID uint64) (int, error)
	InvolvedParties(ctx context.Context, txID uint64) ([]string, error)
	TransactionCreatedAt(ctx context.Context, txID uint64) (*domain.CreationEvent, error)
	RejectTransaction(ctx context.Context, txID uint64, opts domain.TxOptions) (domain.Submission, error)
	ExecuteTransaction(ctx context.Context, txID uint64, opts domain.TxOptions) (domain.Submission, error)
	CreateVenue(ctx context.Context, opts domain.TxOptions) (uint64, domain.Submission, error)
	Venue(ctx context.Context, venueID uint64) (domain.Venue, error)
	AddTransaction(ctx context.Context, venueID uint64, legs []domain.NewLeg, memo string, opts domain.TxOptions) (uint64, domain.Submission, error)
	AccountBalances(ctx context.Context, account string) ([]domain.AssetBalance, error)
	AccountBalance(ctx context.Context, account, assetID string) (string, error)
	IncomingBalances(ctx context.Context, account string) ([]domain.AssetBalance, error)
	IncomingBalance(ctx context.Context, account, assetID string) (string, error)
	ApplyIncomingBalances(ctx context.Context, account string, opts domain.TxOptions) ([]domain.AppliedBalance, domain.Submission, error)
}

type proofAPI interface {
	ListAccounts(ctx context.Context) ([]proofclient.Account, error)
	CreateAccount(ctx context.Context) (proofclient.Account, error)
	AuditorVerify(ctx context.Context, account, senderProof string, auditorID int, amount *domain.Amount) (domain.ProofVerification, error)
	ReceiverVerify(ctx context.Context, account, senderProof string, amount *domain.Amount) (domain.ProofVerification, error)
	DecryptBalance(ctx context.Context, account, encryptedValue string) (domain.Amount, error)
}

type server struct {
	engine *affirm.Engine
	ledger ledgerAPI
	proofs proofAPI
	logger *zap.Logger
}

func newRouter(engine *affirm.Engine, ledger ledgerAPI, proofs proofAPI, logger *zap.Logger) http.Handler {
	s := &server{engine: engine, ledger: ledger, proofs: proofs, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/confidential-transactions/{transaction_id}", func(api chi.Router) {
		api.Get("/", s.getTransaction)
		api.Get("/proofs", s.getProofs)
		api.Get("/involved-parties", s.getInvolvedParties)
		api.Get("/pending-affirmations-count", s.getPendingAffirmationsCount)
		api.Get("/created-at", s.getCreatedAt)
		api.Post("/affirm-leg/observer", s.observerAffirmLeg)
		api.Post("/affirm-leg/sender", s.senderAffirmLeg)
		api.Post("/verify-amounts", s.verifyAmounts)
		api.Post("/verify-and-affirm-leg", s.verifyAndAffirmLeg)
		api.Post("/reject", s.rejectTransaction)
		api.Post("/execute", s.executeTransaction)
	})

	r.Post("/confidential-venues/create", s.createVenue)
	r.Get("/confidential-venues/{venue_id}", s.getVenue)
	r.Post("/confidential-venues/{venue_id}/transactions", s.addTransaction)

	r.Get("/confidential-accounts", s.listAccounts)
	r.Post("/confidential-accounts/create", s.createAccount)
	r.Post("/confidential-accounts/move-funds", s.moveFunds)
	r.Route("/confidential-accounts/{confidential_account}", func(api chi.Router) {
		api.Post("/auditor-verify", s.auditorVerify)
		api.Post("/receiver-verify", s.receiverVerify)
		api.Post("/decrypt-balance", s.decryptBalance)
		api.Get("/balances", s.getBalances)
		api.Get("/balances/{confidential_asset}", s.getBalance)
		api.Get("/incoming-balances", s.getIncomingBalances)
		api.Get("/incoming-balances/{confidential_asset}", s.getIncomingBalance)
		api.Post("/incoming-balances/apply", s.applyIncomingBalances)
	})

	r.Post("/confidential-assets/{confidential_asset}/burn", s.burnAsset)
	return r
}

// fail writes err to the client. Internal errors carry the alert field so
// they can be told apart from bad requests in the logs.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	fields := []zap.Field{zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err)}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation:
		s.logger.Info("request rejected", fields...)
	case apperr.KindUpstream:
		s.logger.Warn("upstream failure", fields...)
	default:
		s.logger.Error("internal error", append(fields, zap.Bool("alert", true))...)
	}
	httpx.WriteAppError(w, err)
}

func readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.ReadJSON(r, dst); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return false
	}
	return true
}

func parseID(r *http.Request, param string) (uint64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, apperr.Validationf("%s must be a non-negative integer, got %q", param, raw)
	}
	return id, nil
}

func (s *server) txID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := parseID(r, "transaction_id")
	if err != nil {
		s.fail(w, r, err)
		return 0, false
	}
	return id, true
}

func (s *server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	tx, err := s.ledger.Transaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "transaction": tx})
}

func (s *server) getProofs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	details, err := s.engine.ProofDetails(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "proofs": details})
}

func (s *server) getInvolvedParties(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	parties, err := s.ledger.InvolvedParties(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "identities": parties})
}

func (s *server) getPendingAffirmationsCount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	n, err := s.ledger.PendingAffirmsCount(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "pendingAffirmations": n})
}

func (s *server) getCreatedAt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	ev, err := s.ledger.TransactionCreatedAt(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ev == nil {
		s.fail(w, r, apperr.NotFoundResource("transaction creation event not found", "transaction"))
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "createdAt": ev})
}

func (s *server) observerAffirmLeg(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	var req struct {
		Signer string       `json:"signer"`
		LegID  int          `json:"legId"`
		Party  domain.Party `json:"party"`
	}
	if !readBody(w, r, &req) {
		return
	}
	sub, err := s.engine.ObserverAffirmLeg(r.Context(), id, req.LegID, req.Party, domain.TxOptions{Signer: req.Signer})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "submission": sub})
}

func (s *server) senderAffirmLeg(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	var req struct {
		Signer     string             `json:"signer"`
		LegID      int                `json:"legId"`
		LegAmounts []domain.LegAmount `json:"legAmounts"`
	}
	if !readBody(w, r, &req) {
		return
	}
	if err := domain.ValidateLegAmounts(req.LegAmounts); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.engine.SenderAffirmLeg(r.Context(), id, req.LegID, req.LegAmounts, domain.TxOptions{Signer: req.Signer})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{
		"request_id": httpx.NewRequestID(),
		"submission": out.Submission,
		"proofs":     out.Proofs,
	})
}

func (s *server) verifyAmounts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	var req struct {
		PublicKey  string              `json:"publicKey"`
		LegAmounts []domain.LegAmounts `json:"legAmounts"`
	}
	if !readBody(w, r, &req) {
		return
	}
	for _, la := range req.LegAmounts {
		if err := domain.ValidateLegAmounts(la.ExpectedAmounts); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	results, err := s.engine.VerifyTransactionAmounts(r.Context(), id, req.PublicKey, req.LegAmounts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []domain.VerificationResult{}
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "verifications": results})
}

func (s *server) verifyAndAffirmLeg(w http.ResponseWriter, r *http.Request) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	var req struct {
		Signer          string             `json:"signer"`
		LegID           int                `json:"legId"`
		PublicKey       string             `json:"publicKey"`
		ExpectedAmounts []domain.LegAmount `json:"expectedAmounts"`
		Party           domain.Party       `json:"party"`
	}
	if !readBody(w, r, &req) {
		return
	}
	if err := domain.ValidateLegAmounts(req.ExpectedAmounts); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.engine.VerifyAndAffirmLeg(r.Context(), id, affirm.VerifyAndAffirmParams{
		LegID:           req.LegID,
		PublicKey:       req.PublicKey,
		ExpectedAmounts: req.ExpectedAmounts,
		Party:           req.Party,
		Options:         domain.TxOptions{Signer: req.Signer},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "submission": sub})
}

func (s *server) rejectTransaction(w http.ResponseWriter, r *http.Request) {
	s.submitTransaction(w, r, s.ledger.RejectTransaction)
}

func (s *server) executeTransaction(w http.ResponseWriter, r *http.Request) {
	s.submitTransaction(w, r, s.ledger.ExecuteTransaction)
}

func (s *server) submitTransaction(w http.ResponseWriter, r *http.Request, submit func(context.Context, uint64, domain.TxOptions) (domain.Submission, error)) {
	id, ok := s.txID(w, r)
	if !ok {
		return
	}
	var req struct {
		Signer string `json:"signer"`
	}
	if !readBody(w, r, &req) {
		return
	}
	opts := domain.TxOptions{Signer: req.Signer}
	if err := opts.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := submit(r.Context(), id, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "submission": sub})
}

func (s *server) createVenue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signer string `json:"signer"`
	}
	if !readBody(w, r, &req) {
		return
	}
	opts := domain.TxOptions{Signer: req.Signer}
	if err := opts.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	venueID, sub, err := s.ledger.CreateVenue(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{
		"request_id": httpx.NewRequestID(),
		"venue":      map[string]any{"id": strconv.FormatUint(venueID, 10)},
		"submission": sub,
	})
}

func (s *server) getVenue(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "venue_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v, err := s.ledger.Venue(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "venue": v})
}

func (s *server) addTransaction(w http.ResponseWriter, r *http.Request) {
	venueID, err := parseID(r, "venue_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Signer string          `json:"signer"`
		Legs   []domain.NewLeg `json:"legs"`
		Memo   string          `json:"memo"`
	}
	if !readBody(w, r, &req) {
		return
	}
	opts := domain.TxOptions{Signer: req.Signer}
	if err := opts.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := domain.ValidateNewTransaction(req.Legs, req.Memo); err != nil {
		s.fail(w, r, err)
		return
	}
	txID, sub, err := s.ledger.AddTransaction(r.Context(), venueID, req.Legs, req.Memo, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{
		"request_id":  httpx.NewRequestID(),
		"transaction": map[string]any{"id": strconv.FormatUint(txID, 10)},
		"submission":  sub,
	})
}

func (s *server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.proofs.ListAccounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "accounts": accounts})
}

func (s *server) createAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.proofs.CreateAccount(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "account": acc})
}

// verification is domain.ProofVerification as the service API spells it.
type verification struct {
	Amount  *domain.Amount `json:"amount"`
	IsValid bool           `json:"isValid"`
	ErrMsg  *string        `json:"errMsg"`
}

func (s *server) auditorVerify(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "confidential_account")
	var req struct {
		SenderProof string         `json:"senderProof"`
		AuditorID   int            `json:"auditorId"`
		Amount      *domain.Amount `json:"amount"`
	}
	if !readBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SenderProof) == "" {
		s.fail(w, r, apperr.Validation("senderProof is required"))
		return
	}
	if req.AuditorID < 0 {
		s.fail(w, r, apperr.Validation("auditorId must not be negative"))
		return
	}
	v, err := s.proofs.AuditorVerify(r.Context(), account, req.SenderProof, req.AuditorID, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "verification": verification(v)})
}

func (s *server) receiverVerify(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "confidential_account")
	var req struct {
		SenderProof string         `json:"senderProof"`
		Amount      *domain.Amount `json:"amount"`
	}
	if !readBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SenderProof) == "" {
		s.fail(w, r, apperr.Validation("senderProof is required"))
		return
	}
	v, err := s.proofs.ReceiverVerify(r.Context(), account, req.SenderProof, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "verification": verification(v)})
}

func (s *server) decryptBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "confidential_account")
	var req struct {
		EncryptedValue string `json:"encryptedValue"`
	}
	if !readBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.EncryptedValue) == "" {
		s.fail(w, r, apperr.Validation("encryptedValue is required"))
		return
	}
	v, err := s.proofs.DecryptBalance(r.Context(), account, req.EncryptedValue)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "value": v})
}

func (s *server) getBalances(w http.ResponseWriter, r *http.Request) {
	s.listBalances(w, r, s.ledger.AccountBalances)
}

func (s *server) getIncomingBalances(w http.ResponseWriter, r *http.Request) {
	s.listBalances(w, r, s.ledger.IncomingBalances)
}

func (s *server) listBalances(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]domain.AssetBalance, error)) {
	balances, err := list(r.Context(), chi.URLParam(r, "confidential_account"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "balances": balances})
}

func (s *server) getBalance(w http.ResponseWriter, r *http.Request) {
	s.oneBalance(w, r, s.ledger.AccountBalance)
}

func (s *server) getIncomingBalance(w http.ResponseWriter, r *http.Request) {
	s.oneBalance(w, r, s.ledger.IncomingBalance)
}

func (s *server) oneBalance(w http.ResponseWriter, r *http.Request, get func(context.Context, string, string) (string, error)) {
	assetID := chi.URLParam(r, "confidential_asset")
	if err := domain.ValidateAssetID(assetID); err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := get(r.Context(), chi.URLParam(r, "confidential_account"), assetID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"balance":    domain.AssetBalance{AssetID: assetID, Balance: balance},
	})
}

func (s *server) applyIncomingBalances(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signer string `json:"signer"`
	}
	if !readBody(w, r, &req) {
		return
	}
	opts := domain.TxOptions{Signer: req.Signer}
	if err := opts.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	applied, sub, err := s.ledger.ApplyIncomingBalances(r.Context(), chi.URLParam(r, "confidential_account"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if applied == nil {
		applied = []domain.AppliedBalance{}
	}
	httpx.WriteJSON(w, 201, map[string]any{
		"request_id":           httpx.NewRequestID(),
		"submission":           sub,
		"appliedAssetBalances": applied,
	})
}

func (s *server) moveFunds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signer string            `json:"signer"`
		Moves  []domain.FundMove `json:"moves"`
	}
	if !readBody(w, r, &req) {
		return
	}
	out, err := s.engine.MoveFunds(r.Context(), req.Moves, domain.TxOptions{Signer: req.Signer})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{
		"request_id": httpx.NewRequestID(),
		"submission": out.Submission,
		"moves":      out.Moves,
	})
}

func (s *server) burnAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signer              string        `json:"signer"`
		ConfidentialAccount string        `json:"confidentialAccount"`
		Amount              domain.Amount `json:"amount"`
	}
	if !readBody(w, r, &req) {
		return
	}
	sub, err := s.engine.BurnAsset(r.Context(), chi.URLParam(r, "confidential_asset"), req.ConfidentialAccount, req.Amount, domain.TxOptions{Signer: req.Signer})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "submission": sub})
}
