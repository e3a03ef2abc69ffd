package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

const (
	sigMilestoneCount = "milestoneCount()"
	sigMilestoneAt    = "milestones(uint256)"
)

// Client is a JSON-RPC HTTP implementation of Reader and Writer.
// The donation sender account is held by the node; eth_sendTransaction
// asks the node (the external signer) to sign and broadcast.
type Client struct {
	rpcURL       string
	from         string // donor platform account, 0x-hex
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient creates a ledger Client against an RPC endpoint. from is the
// node-managed account donations are sent from.
func NewClient(rpcURL, from string) *Client {
	return &Client{
		rpcURL:       rpcURL,
		from:         from,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return e.Message }

// call performs one JSON-RPC round trip and decodes result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: bad response: %v", ErrUnavailable, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

type callParams struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

// MilestoneCount returns the length of the contract's milestone array.
func (c *Client) MilestoneCount(ctx context.Context, contract string) (int, error) {
	var result string
	err := c.call(ctx, "eth_call",
		[]any{callParams{To: contract, Data: encodeCall(sigMilestoneCount)}, "latest"}, &result)
	if err != nil {
		return 0, fmt.Errorf("ledger: milestone count: %w", err)
	}
	words, err := decodeWords(result)
	if err != nil {
		return 0, err
	}
	if len(words) != 1 {
		return 0, fmt.Errorf("ledger: milestone count: expected 1 word, got %d", len(words))
	}
	return int(wordToUint(words[0]).Int64()), nil
}

// MilestoneAt reads one milestone entry. The contract returns the
// positional tuple (payoutWallet, target, current, completed); it is
// decoded here and nowhere else.
func (c *Client) MilestoneAt(ctx context.Context, contract string, index int) (MilestoneSnapshot, error) {
	var result string
	err := c.call(ctx, "eth_call",
		[]any{callParams{To: contract, Data: encodeCall(sigMilestoneAt, big.NewInt(int64(index)))}, "latest"}, &result)
	if err != nil {
		return MilestoneSnapshot{}, fmt.Errorf("ledger: milestone %d: %w", index, err)
	}
	words, err := decodeWords(result)
	if err != nil {
		return MilestoneSnapshot{}, err
	}
	if len(words) != 4 {
		return MilestoneSnapshot{}, fmt.Errorf("ledger: milestone %d: expected 4 words, got %d", index, len(words))
	}
	return MilestoneSnapshot{
		Index:         index,
		PayoutWallet:  wordToAddress(words[0]),
		TargetAmount:  wordToUint(words[1]),
		CurrentAmount: wordToUint(words[2]),
		Completed:     wordToBool(words[3]),
	}, nil
}

// SubmitDonation asks the node to sign and broadcast a value transfer of
// amount base units to the campaign contract. Irreversible once it
// returns without error.
func (c *Client) SubmitDonation(ctx context.Context, contract string, amount *big.Int) (PendingTx, error) {
	var hash string
	err := c.call(ctx, "eth_sendTransaction",
		[]any{callParams{From: c.from, To: contract, Value: "0x" + amount.Text(16)}}, &hash)
	if err != nil {
		return PendingTx{}, fmt.Errorf("ledger: submit donation: %w", err)
	}
	if hash == "" {
		return PendingTx{}, errors.New("ledger: submit donation: empty transaction hash")
	}
	return PendingTx{Hash: hash}, nil
}

// AwaitReceipt polls for the transaction receipt until the context is
// done. A mined receipt with status 0 is a contract revert.
func (c *Client) AwaitReceipt(ctx context.Context, tx PendingTx) (Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var result *struct {
			Status      string `json:"status"`
			BlockNumber string `json:"blockNumber"`
		}
		err := c.call(ctx, "eth_getTransactionReceipt", []any{tx.Hash}, &result)
		if err != nil {
			// A deadline hitting mid-poll must surface as the context error
			// so callers can tell "timed out" from "node said no".
			if ctx.Err() != nil {
				return Receipt{}, fmt.Errorf("ledger: await receipt for %s: %w", tx.Hash, ctx.Err())
			}
			return Receipt{}, fmt.Errorf("ledger: await receipt: %w", err)
		}
		if result != nil {
			if strings.TrimPrefix(result.Status, "0x") == "0" {
				return Receipt{}, fmt.Errorf("%w: %s", ErrReverted, tx.Hash)
			}
			block, ok := new(big.Int).SetString(strings.TrimPrefix(result.BlockNumber, "0x"), 16)
			if !ok {
				block = big.NewInt(0)
			}
			return Receipt{TxHash: tx.Hash, BlockNumber: block.Uint64()}, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("ledger: await receipt for %s: %w", tx.Hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
