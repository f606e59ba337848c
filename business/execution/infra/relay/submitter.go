// Package relay submits signed transactions through a private relay
// endpoint instead of the public mempool.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/httpclient"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const requestTimeout = 10 * time.Second

type rpcRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      int      `json:"id"`
	Method  string   `json:"method"`
	Params  []string `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// Submitter posts raw transactions to a JSON-RPC relay endpoint.
type Submitter struct {
	client httpclient.Client
	logger logger.LoggerInterface
}

// NewSubmitter creates a Submitter for the relay URL.
func NewSubmitter(relayURL string, log logger.LoggerInterface) (*Submitter, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithBaseURL(relayURL),
		httpclient.WithProviderName("relay"),
		httpclient.WithRequestTimeout(requestTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &Submitter{
		client: client,
		logger: log,
	}, nil
}

// SubmitRaw sends the signed transaction via eth_sendRawTransaction
// and returns the hash the relay reports.
func (s *Submitter) SubmitRaw(ctx context.Context, raw []byte) (common.Hash, error) {
	var result rpcResponse

	resp, err := s.client.NewRequest().
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "eth_sendRawTransaction",
			Params:  []string{hexutil.Encode(raw)},
		}).
		SetResult(&result).
		Post(ctx, "")
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed, apperror.WithCause(err))
	}
	if resp.IsError() {
		return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithContext(fmt.Sprintf("relay returned status %d", resp.StatusCode)))
	}
	if result.Error != nil {
		return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithContext(result.Error.Message))
	}

	hash := common.HexToHash(result.Result)
	s.logger.Info(ctx, "transaction relayed", "hash", hash.Hex())
	return hash, nil
}
