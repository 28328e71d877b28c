package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SignerClient handles communication with the trusted off-chain eligibility
// signer service.
type SignerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSignerClient creates a new signer client
func NewSignerClient(baseURL string) *SignerClient {
	return &SignerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SignRequest is the request to POST /v1/eligibility
type SignRequest struct {
	User      string `json:"user"`
	ListingID string `json:"listingId"`
}

// SignResponse is the signer service's reply: a time-bounded proof for the
// requested user and listing.
type SignResponse struct {
	Expiry    uint64        `json:"expiry"`
	Nonce     uint64        `json:"nonce"`
	Signature hexutil.Bytes `json:"signature"`
}

// Sign requests an eligibility proof via POST /v1/eligibility
func (c *SignerClient) Sign(ctx context.Context, user common.Address, listingID *big.Int) (*SignResponse, error) {
	body, err := json.Marshal(SignRequest{
		User:      user.Hex(),
		ListingID: listingID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/eligibility", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call signer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("signer service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var signResp SignResponse
	if err := json.NewDecoder(resp.Body).Decode(&signResp); err != nil {
		return nil, fmt.Errorf("failed to decode sign response: %w", err)
	}

	return &signResp, nil
}
