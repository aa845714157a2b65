// internal/signer/client.go
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUserNotFound means the signing service has no record of the user or wallet.
	ErrUserNotFound = errors.New("signer: user or wallet not found")
	// ErrMissingSecret means the wallet record exists but carries no secret data.
	ErrMissingSecret = errors.New("signer: wallet secret data missing")
	// ErrSigningFailed means the service failed to sign or submit the transaction.
	ErrSigningFailed = errors.New("signer: signing or submission failed")
)

// Response is the signing service's answer. Uncertain marks the 202 case:
// the transaction was submitted but its confirmation status is unknown, and
// the attached signature must still reach the user.
type Response struct {
	Signature string
	Message   string
	Uncertain bool
}

// Client talks to the custodial signing service. Key handling is entirely
// the service's concern; this side only ships the unsigned transaction and
// interprets the status contract.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("signer"),
	}
}

type signRequest struct {
	UserID                string `json:"userId"`
	WalletPublicKey       string `json:"walletPublicKey"`
	SerializedTransaction string `json:"serializedTransaction"`
}

type signResponse struct {
	Signature string   `json:"signature"`
	Message   string   `json:"message"`
	Error     string   `json:"error"`
	Logs      []string `json:"logs"`
}

// SignAndSend posts the unsigned transaction for signing and submission.
// A 200 returns a confirmed-submitted signature; a 202 returns
// Uncertain=true with the signature attached and no error. Hard failures
// map to the package sentinels, carrying any diagnostics the service sent.
func (c *Client) SignAndSend(ctx context.Context, userID, walletPublicKey, serializedTx string) (*Response, error) {
	payload, err := json.Marshal(signRequest{
		UserID:                userID,
		WalletPublicKey:       walletPublicKey,
		SerializedTransaction: serializedTx,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/sign-and-send", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read signer response: %w", err)
	}

	var decoded signResponse
	if len(body) > 0 {
		// a malformed body on an error status must not mask the status itself
		if err := json.Unmarshal(body, &decoded); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("decode signer response: %w", err)
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if decoded.Signature == "" {
			return nil, fmt.Errorf("%w: empty signature in 200 response", ErrSigningFailed)
		}
		return &Response{Signature: decoded.Signature}, nil

	case http.StatusAccepted:
		c.logger.Warn("transaction submitted but unconfirmed by signer",
			zap.String("signature", decoded.Signature),
			zap.String("message", decoded.Message))
		return &Response{
			Signature: decoded.Signature,
			Message:   decoded.Message,
			Uncertain: true,
		}, nil

	case http.StatusNotFound:
		return nil, ErrUserNotFound

	case http.StatusBadRequest:
		return nil, ErrMissingSecret

	default:
		if len(decoded.Logs) > 0 {
			c.logger.Error("signer reported submission logs",
				zap.Strings("logs", decoded.Logs))
		}
		if decoded.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrSigningFailed, decoded.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrSigningFailed, resp.StatusCode)
	}
}
