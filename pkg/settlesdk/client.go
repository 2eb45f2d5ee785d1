// Package settlesdk is a Go client for the confidential settlement service.
package settlesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// APIError is the service's error envelope together with the HTTP status.
type APIError struct {
	Status    int    `json:"-"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

type LegAmount struct {
	ConfidentialAsset string          `json:"confidentialAsset"`
	Amount            decimal.Decimal `json:"amount"`
}

type LegAmounts struct {
	LegID           int         `json:"legId"`
	ExpectedAmounts []LegAmount `json:"expectedAmounts"`
}

type Verification struct {
	LegID           int              `json:"legId"`
	AssetID         string           `json:"assetId"`
	IsProved        bool             `json:"isProved"`
	IsAuditor       bool             `json:"isAuditor"`
	IsReceiver      bool             `json:"isReceiver"`
	AmountDecrypted bool             `json:"amountDecrypted"`
	Amount          *decimal.Decimal `json:"amount"`
	IsValid         *bool            `json:"isValid"`
	ErrMsg          *string          `json:"errMsg"`
}

type VerificationsResponse struct {
	RequestID     string         `json:"request_id"`
	Verifications []Verification `json:"verifications"`
}

type Submission struct {
	TransactionHash string `json:"transactionHash"`
	BlockHash       string `json:"blockHash"`
	BlockNumber     string `json:"blockNumber"`
	Tag             string `json:"transactionTag"`
}

type AssetProof struct {
	Asset string `json:"asset"`
	Proof string `json:"proof"`
}

type SubmissionResponse struct {
	RequestID  string       `json:"request_id"`
	Submission Submission   `json:"submission"`
	Proofs     []AssetProof `json:"proofs,omitempty"`
}

type ProofsResponse struct {
	RequestID string         `json:"request_id"`
	Proofs    map[string]any `json:"proofs"`
}

type VerifyAmountsRequest struct {
	PublicKey  string       `json:"publicKey"`
	LegAmounts []LegAmounts `json:"legAmounts,omitempty"`
}

type SenderAffirmRequest struct {
	Signer     string      `json:"signer"`
	LegID      int         `json:"legId"`
	LegAmounts []LegAmount `json:"legAmounts"`
}

type ObserverAffirmRequest struct {
	Signer string `json:"signer"`
	LegID  int    `json:"legId"`
	Party  string `json:"party"`
}

type VerifyAndAffirmRequest struct {
	Signer          string      `json:"signer"`
	LegID           int         `json:"legId"`
	PublicKey       string      `json:"publicKey"`
	ExpectedAmounts []LegAmount `json:"expectedAmounts"`
	Party           string      `json:"party"`
}

type FundMove struct {
	From       string      `json:"from"`
	To         string      `json:"to"`
	AssetMoves []LegAmount `json:"assetMoves"`
}

type MoveFundsRequest struct {
	Signer string     `json:"signer"`
	Moves  []FundMove `json:"moves"`
}

type MoveFundsResponse struct {
	RequestID  string           `json:"request_id"`
	Submission Submission       `json:"submission"`
	Moves      []map[string]any `json:"moves"`
}

type BurnRequest struct {
	Signer              string          `json:"signer"`
	ConfidentialAccount string          `json:"confidentialAccount"`
	Amount              decimal.Decimal `json:"amount"`
}

type AssetBalance struct {
	ConfidentialAsset string `json:"confidentialAsset"`
	Balance           string `json:"balance"`
}

type BalancesResponse struct {
	RequestID string         `json:"request_id"`
	Balances  []AssetBalance `json:"balances"`
}

func (c *Client) VerifyAmounts(ctx context.Context, txID uint64, in VerifyAmountsRequest) (*VerificationsResponse, error) {
	return postJSON[VerificationsResponse](ctx, c, fmt.Sprintf("/confidential-transactions/%d/verify-amounts", txID), in)
}

func (c *Client) Proofs(ctx context.Context, txID uint64) (*ProofsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/confidential-transactions/%d/proofs", c.BaseURL, txID), nil)
	if err != nil {
		return nil, err
	}
	return doJSON[ProofsResponse](c, req)
}

func (c *Client) SenderAffirmLeg(ctx context.Context, txID uint64, in SenderAffirmRequest) (*SubmissionResponse, error) {
	return postJSON[SubmissionResponse](ctx, c, fmt.Sprintf("/confidential-transactions/%d/affirm-leg/sender", txID), in)
}

func (c *Client) ObserverAffirmLeg(ctx context.Context, txID uint64, in ObserverAffirmRequest) (*SubmissionResponse, error) {
	return postJSON[SubmissionResponse](ctx, c, fmt.Sprintf("/confidential-transactions/%d/affirm-leg/observer", txID), in)
}

func (c *Client) VerifyAndAffirmLeg(ctx context.Context, txID uint64, in VerifyAndAffirmRequest) (*SubmissionResponse, error) {
	return postJSON[SubmissionResponse](ctx, c, fmt.Sprintf("/confidential-transactions/%d/verify-and-affirm-leg", txID), in)
}

func (c *Client) MoveFunds(ctx context.Context, in MoveFundsRequest) (*MoveFundsResponse, error) {
	return postJSON[MoveFundsResponse](ctx, c, "/confidential-accounts/move-funds", in)
}

func (c *Client) BurnAsset(ctx context.Context, assetID string, in BurnRequest) (*SubmissionResponse, error) {
	return postJSON[SubmissionResponse](ctx, c, "/confidential-assets/"+url.PathEscape(assetID)+"/burn", in)
}

// Balances lists the encrypted balances of account. With incoming set it lists
// the amounts received but not yet applied.
func (c *Client) Balances(ctx context.Context, account string, incoming bool) (*BalancesResponse, error) {
	kind := "balances"
	if incoming {
		kind = "incoming-balances"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/confidential-accounts/%s/%s", c.BaseURL, url.PathEscape(account), kind), nil)
	if err != nil {
		return nil, err
	}
	return doJSON[BalancesResponse](c, req)
}

func postJSON[T any](ctx context.Context, c *Client, path string, in any) (*T, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON[T](c, req)
}

func doJSON[T any](c *Client, req *http.Request) (*T, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody struct {
			RequestID string   `json:"request_id"`
			Error     APIError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		apiErr := errBody.Error
		apiErr.Status = resp.StatusCode
		apiErr.RequestID = errBody.RequestID
		return nil, &apiErr
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
