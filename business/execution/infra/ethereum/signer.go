// Package ethereum contains chain-backed adapters for the execution context.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const tracerName = "github.com/ndmikkelsen/flashloaner/business/execution/infra/ethereum"

// receiptPollInterval bounds how often WaitMined polls for a receipt.
const receiptPollInterval = 2 * time.Second

// RawSubmitter propagates a signed raw transaction, typically through
// a private relay instead of the public mempool.
type RawSubmitter interface {
	SubmitRaw(ctx context.Context, raw []byte) (common.Hash, error)
}

// SignerConfig holds signing and connection settings.
type SignerConfig struct {
	HTTPURL    string
	ChainID    uint64
	PrivateKey string // hex, no 0x prefix required
}

// Signer signs prepared transactions with a local key and submits them
// directly or through an optional relay.
type Signer struct {
	config  SignerConfig
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	relay   RawSubmitter // nil means direct submission
	logger  logger.LoggerInterface

	client *ethclient.Client
	tracer trace.Tracer
}

// NewSigner parses the private key and prepares a signer. relay may be
// nil for direct node submission.
func NewSigner(cfg SignerConfig, relay RawSubmitter, log logger.LoggerInterface) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("invalid private key"),
			apperror.WithCause(err))
	}

	return &Signer{
		config:  cfg,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).SetUint64(cfg.ChainID),
		relay:   relay,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// From returns the signing address.
func (s *Signer) From() common.Address {
	return s.from
}

// Connect dials the HTTP endpoint used for submission and receipts.
func (s *Signer) Connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, s.config.HTTPURL)
	if err != nil {
		return apperror.New(apperror.CodeEthereumConnectionFailed, apperror.WithCause(err))
	}
	s.client = client
	s.logger.Info(ctx, "signer connected", "address", s.from.Hex())
	return nil
}

// Submit signs and propagates a prepared transaction, returning its
// hash.
func (s *Signer) Submit(ctx context.Context, prepared *domain.PreparedTransaction) (common.Hash, error) {
	ctx, span := s.tracer.Start(ctx, "signer.submit",
		trace.WithAttributes(attribute.Int64("nonce", int64(prepared.Nonce))),
	)
	defer span.End()

	to := prepared.Tx.To
	signed, err := types.SignNewTx(s.key, types.LatestSignerForChainID(s.chainID), &types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     prepared.Nonce,
		GasTipCap: prepared.Gas.MaxPriorityFeePerGas,
		GasFeeCap: prepared.Gas.MaxFeePerGas,
		Gas:       prepared.Gas.GasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      prepared.Tx.Calldata,
	})
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed, apperror.WithCause(err))
	}

	if s.relay != nil {
		raw, err := signed.MarshalBinary()
		if err != nil {
			span.RecordError(err)
			return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed, apperror.WithCause(err))
		}
		hash, err := s.relay.SubmitRaw(ctx, raw)
		if err != nil {
			span.RecordError(err)
			return common.Hash{}, err
		}
		span.SetStatus(codes.Ok, "submitted via relay")
		return hash, nil
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		span.RecordError(err)
		return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed, apperror.WithCause(err))
	}
	span.SetStatus(codes.Ok, "submitted")
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until it lands or the context ends.
func (s *Signer) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "signer.wait_mined",
		trace.WithAttributes(attribute.String("hash", hash.Hex())),
	)
	defer span.End()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			span.SetStatus(codes.Ok, "mined")
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			span.RecordError(err)
			return nil, apperror.New(apperror.CodeEthereumRPCError, apperror.WithCause(err))
		}

		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "context done")
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RevertData replays the prepared call at the given block to recover
// the revert return data the receipt cannot carry. Best effort: any
// failure to replay or to extract a payload yields nil.
func (s *Signer) RevertData(ctx context.Context, prepared *domain.PreparedTransaction, blockNumber *big.Int) []byte {
	if s.client == nil {
		return nil
	}

	to := prepared.Tx.To
	_, err := s.client.CallContract(ctx, ethereum.CallMsg{
		From: s.from,
		To:   &to,
		Gas:  prepared.Gas.GasLimit,
		Data: prepared.Tx.Calldata,
	}, blockNumber)
	if err == nil {
		return nil
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil
	}
	return domain.ParseRevertHex(hexData)
}

// PendingNonce reads the account's pending transaction count.
func (s *Signer) PendingNonce(ctx context.Context) (uint64, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return 0, apperror.New(apperror.CodeEthereumRPCError, apperror.WithCause(err))
	}
	return nonce, nil
}
