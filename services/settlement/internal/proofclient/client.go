// Package proofclient talks to the proof server, which holds the confidential
// account keys and generates, verifies and decrypts proofs on their behalf.
package proofclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/apperr"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/affirm"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	opAuditorVerify  = "auditor_verify"
	opReceiverVerify = "receiver_verify"
	opSenderProof    = "sender_proof"
	opBurnProof      = "burn_proof"
	opListAccounts   = "list_accounts"
	opCreateAccount  = "create_account"
	opDecrypt        = "decrypt_balance"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type Account struct {
	ConfidentialAccount string `json:"confidentialAccount"`
}

type verifyResponse struct {
	IsValid bool             `json:"is_valid"`
	Amount  *decimal.Decimal `json:"amount"`
	ErrMsg  *string          `json:"err_msg"`
}

func (r verifyResponse) toDomain() domain.ProofVerification {
	return domain.ProofVerification{Amount: r.Amount, IsValid: r.IsValid, ErrMsg: r.ErrMsg}
}

// VerifySenderProof asks the proof server to decrypt and check a sender proof
// with account's key, either as the leg receiver or as one of the asset's
// auditors.
func (c *Client) VerifySenderProof(ctx context.Context, account string, req affirm.DecryptRequest) (domain.ProofVerification, error) {
	switch r := req.(type) {
	case affirm.AuditorRequest:
		return c.AuditorVerify(ctx, account, r.SenderProof, r.AuditorIndex, r.Amount)
	case affirm.ReceiverRequest:
		return c.ReceiverVerify(ctx, account, r.SenderProof, r.Amount)
	default:
		return domain.ProofVerification{}, apperr.Internalf("unsupported decrypt request %T", req)
	}
}

func (c *Client) AuditorVerify(ctx context.Context, account, senderProof string, auditorID int, amount *domain.Amount) (domain.ProofVerification, error) {
	out, err := call[verifyResponse](ctx, c, opAuditorVerify, http.MethodPost, accountPath(account, "auditor_verify"), map[string]any{
		"sender_proof": senderProof,
		"auditor_id":   auditorID,
		"amount":       amount,
	})
	if err != nil {
		return domain.ProofVerification{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) ReceiverVerify(ctx context.Context, account, senderProof string, amount *domain.Amount) (domain.ProofVerification, error) {
	out, err := call[verifyResponse](ctx, c, opReceiverVerify, http.MethodPost, accountPath(account, "receiver_verify"), map[string]any{
		"sender_proof": senderProof,
		"amount":       amount,
	})
	if err != nil {
		return domain.ProofVerification{}, err
	}
	return out.toDomain(), nil
}

// GenerateSenderProof has account build a proof that it sends req.Amount to
// req.Receiver out of its encrypted balance.
func (c *Client) GenerateSenderProof(ctx context.Context, account string, req domain.SenderProofRequest) (string, error) {
	auditors := req.Auditors
	if auditors == nil {
		auditors = []string{}
	}
	out, err := call[struct {
		Proof string `json:"proof"`
	}](ctx, c, opSenderProof, http.MethodPost, accountPath(account, "send"), map[string]any{
		"amount":            req.Amount,
		"auditors":          auditors,
		"receiver":          req.Receiver,
		"encrypted_balance": req.EncryptedBalance,
	})
	if err != nil {
		return "", err
	}
	if out.Proof == "" {
		return "", apperr.Upstream(errors.New("empty proof"), "proof server returned no sender proof")
	}
	return out.Proof, nil
}

// GenerateBurnProof has account prove it holds at least req.Amount in its
// encrypted balance so the amount can be burned.
func (c *Client) GenerateBurnProof(ctx context.Context, account string, req domain.BurnProofRequest) (string, error) {
	out, err := call[struct {
		Proof string `json:"proof"`
	}](ctx, c, opBurnProof, http.MethodPost, accountPath(account, "burn"), map[string]any{
		"amount":            req.Amount,
		"encrypted_balance": req.EncryptedBalance,
	})
	if err != nil {
		return "", err
	}
	if out.Proof == "" {
		return "", apperr.Upstream(errors.New("empty proof"), "proof server returned no burn proof")
	}
	return out.Proof, nil
}

func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	out, err := call[[]struct {
		ConfidentialAccount string `json:"confidential_account"`
	}](ctx, c, opListAccounts, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(*out))
	for _, a := range *out {
		accounts = append(accounts, Account{ConfidentialAccount: a.ConfidentialAccount})
	}
	return accounts, nil
}

func (c *Client) CreateAccount(ctx context.Context) (Account, error) {
	out, err := call[struct {
		ConfidentialAccount string `json:"confidential_account"`
	}](ctx, c, opCreateAccount, http.MethodPost, "/accounts", map[string]any{})
	if err != nil {
		return Account{}, err
	}
	return Account{ConfidentialAccount: out.ConfidentialAccount}, nil
}

// DecryptBalance decrypts an encrypted balance held by account.
func (c *Client) DecryptBalance(ctx context.Context, account, encryptedValue string) (domain.Amount, error) {
	out, err := call[struct {
		Value decimal.Decimal `json:"value"`
	}](ctx, c, opDecrypt, http.MethodPost, accountPath(account, "decrypt"), map[string]any{
		"encrypted_value": encryptedValue,
	})
	if err != nil {
		return domain.Amount{}, err
	}
	return out.Value, nil
}

func accountPath(account, action string) string {
	return fmt.Sprintf("/accounts/%s/%s", url.PathEscape(account), action)
}

// call performs one proof server request and records its outcome.
func call[T any](ctx context.Context, c *Client, op, method, path string, in any) (*T, error) {
	start := time.Now()
	out, err := doJSON[T](ctx, c, method, path, in)
	observe(op, start, err)
	return out, err
}

func doJSON[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "proof server unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(raw))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, apperr.NotFound("confidential account not found in the proof server")
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			if msg == "" {
				msg = "proof server rejected the request"
			}
			return nil, apperr.Validation(msg)
		default:
			return nil, apperr.Upstreamf(fmt.Errorf("proof server returned %d: %s", resp.StatusCode, msg), "%s %s", method, path)
		}
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Upstream(errors.Wrap(err, "decode response"), "proof server returned a malformed body")
	}
	return &out, nil
}
