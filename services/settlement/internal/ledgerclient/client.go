// Package ledgerclient talks to the ledger node gateway: it reads confidential
// transactions, legs, proofs and balances, and submits signed extrinsics.
package ledgerclient

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
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/pkg/errors"
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

type wireTransaction struct {
	ID        uint64 `json:"id"`
	VenueID   uint64 `json:"venue_id"`
	CreatedAt uint64 `json:"created_at"`
	Status    string `json:"status"`
	Memo      string `json:"memo"`
}

type wireAssetAuditors struct {
	AssetID  string   `json:"asset_id"`
	Auditors []string `json:"auditors"`
}

type wireLeg struct {
	ID            int                 `json:"id"`
	Sender        string              `json:"sender"`
	Receiver      string              `json:"receiver"`
	Mediators     []string            `json:"mediators"`
	AssetAuditors []wireAssetAuditors `json:"asset_auditors"`
}

func (l wireLeg) toDomain() domain.Leg {
	out := domain.Leg{
		ID:            l.ID,
		Sender:        l.Sender,
		Receiver:      l.Receiver,
		Mediators:     l.Mediators,
		AssetAuditors: make([]domain.AssetAuditors, 0, len(l.AssetAuditors)),
	}
	for _, aa := range l.AssetAuditors {
		out.AssetAuditors = append(out.AssetAuditors, domain.AssetAuditors{AssetID: aa.AssetID, Auditors: aa.Auditors})
	}
	return out
}

type wireAssetProof struct {
	AssetID string `json:"asset_id"`
	Proof   string `json:"proof"`
}

type wireLegProofs struct {
	LegID  int              `json:"leg_id"`
	Proofs []wireAssetProof `json:"proofs"`
}

type wireSubmission struct {
	TransactionHash string `json:"transaction_hash"`
	BlockHash       string `json:"block_hash"`
	BlockNumber     uint64 `json:"block_number"`
	Tag             string `json:"transaction_tag"`
}

func (s wireSubmission) toDomain() domain.Submission {
	return domain.Submission{
		TransactionHash: s.TransactionHash,
		BlockHash:       s.BlockHash,
		BlockNumber:     s.BlockNumber,
		Tag:             s.Tag,
	}
}

type submissionEnvelope struct {
	Submission wireSubmission `json:"submission"`
}

// Transaction loads the transaction header together with its legs.
func (c *Client) Transaction(ctx context.Context, txID uint64) (domain.Transaction, error) {
	out, err := getJSON[struct {
		Transaction wireTransaction `json:"transaction"`
	}](ctx, c, fmt.Sprintf("/transactions/%d", txID))
	if err != nil {
		return domain.Transaction{}, err
	}
	legs, err := c.Legs(ctx, txID)
	if err != nil {
		return domain.Transaction{}, err
	}
	t := out.Transaction
	return domain.Transaction{
		ID:        t.ID,
		VenueID:   t.VenueID,
		CreatedAt: t.CreatedAt,
		Status:    domain.TransactionStatus(t.Status),
		Memo:      t.Memo,
		Legs:      legs,
	}, nil
}

func (c *Client) Legs(ctx context.Context, txID uint64) ([]domain.Leg, error) {
	out, err := getJSON[struct {
		Legs []wireLeg `json:"legs"`
	}](ctx, c, fmt.Sprintf("/transactions/%d/legs", txID))
	if err != nil {
		return nil, err
	}
	legs := make([]domain.Leg, 0, len(out.Legs))
	for _, l := range out.Legs {
		legs = append(legs, l.toDomain())
	}
	return legs, nil
}

// SenderProofs reads the proof records the chain stored for each proved leg.
func (c *Client) SenderProofs(ctx context.Context, txID uint64) ([]domain.LegProofs, error) {
	out, err := getJSON[struct {
		SenderProofs []wireLegProofs `json:"sender_proofs"`
	}](ctx, c, fmt.Sprintf("/transactions/%d/sender-proofs", txID))
	if err != nil {
		return nil, err
	}
	records := make([]domain.LegProofs, 0, len(out.SenderProofs))
	for _, rec := range out.SenderProofs {
		lp := domain.LegProofs{LegID: rec.LegID, Proofs: make([]domain.AssetProof, 0, len(rec.Proofs))}
		for _, p := range rec.Proofs {
			lp.Proofs = append(lp.Proofs, domain.AssetProof{AssetID: p.AssetID, Proof: p.Proof})
		}
		records = append(records, lp)
	}
	return records, nil
}

func (c *Client) PendingAffirmsCount(ctx context.Context, txID uint64) (int, error) {
	out, err := getJSON[struct {
		Count int `json:"count"`
	}](ctx, c, fmt.Sprintf("/transactions/%d/pending-affirms-count", txID))
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) InvolvedParties(ctx context.Context, txID uint64) ([]string, error) {
	out, err := getJSON[struct {
		Identities []string `json:"identities"`
	}](ctx, c, fmt.Sprintf("/transactions/%d/involved-parties", txID))
	if err != nil {
		return nil, err
	}
	if out.Identities == nil {
		return []string{}, nil
	}
	return out.Identities, nil
}

// TransactionCreatedAt returns the block event that created the transaction.
// A nil event means the gateway has no record of it.
func (c *Client) TransactionCreatedAt(ctx context.Context, txID uint64) (*domain.CreationEvent, error) {
	out, err := getJSON[struct {
		Event struct {
			BlockNumber uint64 `json:"block_number"`
			BlockHash   string `json:"block_hash"`
			BlockDate   string `json:"block_date"`
			EventIndex  uint64 `json:"event_index"`
		} `json:"event"`
	}](ctx, c, fmt.Sprintf("/transactions/%d/created-at", txID))
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.CreationEvent{
		BlockNumber: out.Event.BlockNumber,
		BlockHash:   out.Event.BlockHash,
		BlockDate:   out.Event.BlockDate,
		EventIndex:  out.Event.EventIndex,
	}, nil
}

// AccountBalance returns the encrypted balance of account for assetID.
func (c *Client) AccountBalance(ctx context.Context, account, assetID string) (string, error) {
	out, err := getJSON[struct {
		Balance string `json:"balance"`
	}](ctx, c, fmt.Sprintf("/accounts/%s/balances/%s", url.PathEscape(account), url.PathEscape(assetID)))
	if err != nil {
		return "", err
	}
	return out.Balance, nil
}

type wireBalance struct {
	AssetID string `json:"asset_id"`
	Balance string `json:"balance"`
}

func toBalances(in []wireBalance) []domain.AssetBalance {
	out := make([]domain.AssetBalance, 0, len(in))
	for _, b := range in {
		out = append(out, domain.AssetBalance{AssetID: b.AssetID, Balance: b.Balance})
	}
	return out
}

func (c *Client) AccountBalances(ctx context.Context, account string) ([]domain.AssetBalance, error) {
	out, err := getJSON[struct {
		Balances []wireBalance `json:"balances"`
	}](ctx, c, fmt.Sprintf("/accounts/%s/balances", url.PathEscape(account)))
	if err != nil {
		return nil, err
	}
	return toBalances(out.Balances), nil
}

// IncomingBalances lists the encrypted amounts received by account that are
// not yet part of its balance.
func (c *Client) IncomingBalances(ctx context.Context, account string) ([]domain.AssetBalance, error) {
	out, err := getJSON[struct {
		Balances []wireBalance `json:"balances"`
	}](ctx, c, fmt.Sprintf("/accounts/%s/incoming-balances", url.PathEscape(account)))
	if err != nil {
		return nil, err
	}
	return toBalances(out.Balances), nil
}

func (c *Client) IncomingBalance(ctx context.Context, account, assetID string) (string, error) {
	out, err := getJSON[struct {
		Balance string `json:"balance"`
	}](ctx, c, fmt.Sprintf("/accounts/%s/incoming-balances/%s", url.PathEscape(account), url.PathEscape(assetID)))
	if err != nil {
		return "", err
	}
	return out.Balance, nil
}

// ApplyIncomingBalances folds every incoming balance of account into its
// balance.
func (c *Client) ApplyIncomingBalances(ctx context.Context, account string, opts domain.TxOptions) ([]domain.AppliedBalance, domain.Submission, error) {
	out, err := postJSON[struct {
		Applied []struct {
			AssetID string `json:"asset_id"`
			Amount  string `json:"amount"`
			Balance string `json:"balance"`
		} `json:"applied"`
		Submission wireSubmission `json:"submission"`
	}](ctx, c, fmt.Sprintf("/accounts/%s/incoming-balances/apply", url.PathEscape(account)), map[string]any{"signer": opts.Signer})
	if err != nil {
		return nil, domain.Submission{}, err
	}
	applied := make([]domain.AppliedBalance, 0, len(out.Applied))
	for _, a := range out.Applied {
		applied = append(applied, domain.AppliedBalance{AssetID: a.AssetID, Amount: a.Amount, Balance: a.Balance})
	}
	return applied, out.Submission.toDomain(), nil
}

func (c *Client) AssetAuditors(ctx context.Context, assetID string) ([]string, error) {
	out, err := getJSON[struct {
		Auditors []string `json:"auditors"`
	}](ctx, c, fmt.Sprintf("/assets/%s/auditors", url.PathEscape(assetID)))
	if err != nil {
		return nil, err
	}
	return nonNil(out.Auditors), nil
}

type wireMoveProof struct {
	AssetID string        `json:"asset_id"`
	Amount  domain.Amount `json:"amount"`
	Proof   string        `json:"proof"`
}

type wireMove struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Proofs []wireMoveProof `json:"proofs"`
}

func (c *Client) MoveFunds(ctx context.Context, moves []domain.ProvedMove, opts domain.TxOptions) (domain.Submission, error) {
	wireMoves := make([]wireMove, 0, len(moves))
	for _, m := range moves {
		wm := wireMove{From: m.From, To: m.To, Proofs: make([]wireMoveProof, 0, len(m.Proofs))}
		for _, p := range m.Proofs {
			wm.Proofs = append(wm.Proofs, wireMoveProof{AssetID: p.AssetID, Amount: p.Amount, Proof: p.Proof})
		}
		wireMoves = append(wireMoves, wm)
	}
	out, err := postJSON[submissionEnvelope](ctx, c, "/accounts/move-funds", map[string]any{
		"signer": opts.Signer,
		"moves":  wireMoves,
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return out.Submission.toDomain(), nil
}

func (c *Client) BurnAsset(ctx context.Context, assetID string, params domain.BurnParams) (domain.Submission, error) {
	out, err := postJSON[submissionEnvelope](ctx, c, fmt.Sprintf("/assets/%s/burn", url.PathEscape(assetID)), map[string]any{
		"signer":  params.Options.Signer,
		"account": params.Account,
		"amount":  params.Amount,
		"proof":   params.Proof,
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return out.Submission.toDomain(), nil
}

func (c *Client) AffirmLeg(ctx context.Context, txID uint64, params domain.AffirmLegParams) (domain.Submission, error) {
	body := map[string]any{
		"signer": params.Options.Signer,
		"leg_id": params.LegID,
		"party":  string(params.Party),
	}
	if len(params.Proofs) > 0 {
		proofs := make([]wireAssetProof, 0, len(params.Proofs))
		for _, p := range params.Proofs {
			proofs = append(proofs, wireAssetProof{AssetID: p.AssetID, Proof: p.Proof})
		}
		body["proofs"] = proofs
	}
	out, err := postJSON[submissionEnvelope](ctx, c, fmt.Sprintf("/transactions/%d/affirm", txID), body)
	if err != nil {
		return domain.Submission{}, err
	}
	return out.Submission.toDomain(), nil
}

func (c *Client) RejectTransaction(ctx context.Context, txID uint64, opts domain.TxOptions) (domain.Submission, error) {
	out, err := postJSON[submissionEnvelope](ctx, c, fmt.Sprintf("/transactions/%d/reject", txID), map[string]any{"signer": opts.Signer})
	if err != nil {
		return domain.Submission{}, err
	}
	return out.Submission.toDomain(), nil
}

func (c *Client) ExecuteTransaction(ctx context.Context, txID uint64, opts domain.TxOptions) (domain.Submission, error) {
	out, err := postJSON[submissionEnvelope](ctx, c, fmt.Sprintf("/transactions/%d/execute", txID), map[string]any{"signer": opts.Signer})
	if err != nil {
		return domain.Submission{}, err
	}
	return out.Submission.toDomain(), nil
}

func (c *Client) CreateVenue(ctx context.Context, opts domain.TxOptions) (uint64, domain.Submission, error) {
	out, err := postJSON[struct {
		VenueID    uint64         `json:"venue_id"`
		Submission wireSubmission `json:"submission"`
	}](ctx, c, "/venues", map[string]any{"signer": opts.Signer})
	if err != nil {
		return 0, domain.Submission{}, err
	}
	return out.VenueID, out.Submission.toDomain(), nil
}

func (c *Client) Venue(ctx context.Context, venueID uint64) (domain.Venue, error) {
	out, err := getJSON[struct {
		Venue struct {
			ID      uint64 `json:"id"`
			Creator string `json:"creator"`
		} `json:"venue"`
	}](ctx, c, fmt.Sprintf("/venues/%d", venueID))
	if err != nil {
		return domain.Venue{}, err
	}
	return domain.Venue{ID: out.Venue.ID, Creator: out.Venue.Creator}, nil
}

// AddTransaction creates a new confidential transaction in venueID.
func (c *Client) AddTransaction(ctx context.Context, venueID uint64, legs []domain.NewLeg, memo string, opts domain.TxOptions) (uint64, domain.Submission, error) {
	wireLegs := make([]map[string]any, 0, len(legs))
	for _, l := range legs {
		wireLegs = append(wireLegs, map[string]any{
			"assets":    l.Assets,
			"sender":    l.Sender,
			"receiver":  l.Receiver,
			"auditors":  nonNil(l.Auditors),
			"mediators": nonNil(l.Mediators),
		})
	}
	out, err := postJSON[struct {
		TransactionID uint64         `json:"transaction_id"`
		Submission    wireSubmission `json:"submission"`
	}](ctx, c, fmt.Sprintf("/venues/%d/transactions", venueID), map[string]any{
		"signer": opts.Signer,
		"legs":   wireLegs,
		"memo":   memo,
	})
	if err != nil {
		return 0, domain.Submission{}, err
	}
	return out.TransactionID, out.Submission.toDomain(), nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func getJSON[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return doJSON[T](c, req)
}

func postJSON[T any](ctx context.Context, c *Client, path string, in any) (*T, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	return doJSON[T](c, req)
}

func doJSON[T any](c *Client, req *http.Request) (*T, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "ledger gateway unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError(req, resp)
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Upstream(errors.Wrap(err, "decode response"), "ledger gateway returned a malformed body")
	}
	return &out, nil
}

// statusError classifies a non-2xx gateway answer. The gateway message is kept
// for caller mistakes; everything else is reported as an upstream failure.
func statusError(req *http.Request, resp *http.Response) error {
	msg := gatewayMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		if msg == "" {
			msg = "not found"
		}
		return apperr.NotFound(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "ledger gateway rejected the request"
		}
		return apperr.Validation(msg)
	default:
		return apperr.Upstreamf(fmt.Errorf("ledger gateway returned %d: %s", resp.StatusCode, msg),
			"%s %s", req.Method, req.URL.Path)
	}
}

func gatewayMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var env struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
