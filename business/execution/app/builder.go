// Package app contains the transaction build and submission pipeline
// for the execution context.
package app

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	arbitrageDomain "github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/asset"
)

// executorABI is the on-chain executor's entry point. The steps tuple
// mirrors the contract's SwapStep struct.
const executorABIJSON = `[
	{
		"name": "executeArbitrage",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{
				"name": "params",
				"type": "tuple",
				"components": [
					{"name": "provider", "type": "address"},
					{"name": "token", "type": "address"},
					{"name": "amount", "type": "uint256"},
					{
						"name": "steps",
						"type": "tuple[]",
						"components": [
							{"name": "adapter", "type": "address"},
							{"name": "tokenIn", "type": "address"},
							{"name": "amountIn", "type": "uint256"},
							{"name": "extraData", "type": "bytes"}
						]
					}
				]
			}
		],
		"outputs": []
	}
]`

var executorABI = mustParseABI(executorABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("invalid executor ABI: " + err.Error())
	}
	return parsed
}

// abiSwapStep matches the steps tuple component layout.
type abiSwapStep struct {
	Adapter   common.Address
	TokenIn   common.Address
	AmountIn  *big.Int
	ExtraData []byte
}

// abiArbParams matches the params tuple layout.
type abiArbParams struct {
	Provider common.Address
	Token    common.Address
	Amount   *big.Int
	Steps    []abiSwapStep
}

// BuilderConfig holds the static address tables and chain parameters
// the builder resolves against.
type BuilderConfig struct {
	ChainID   uint64
	Executor  common.Address
	Adapters  map[pricingDomain.DexKind]common.Address
	Providers map[string]common.Address // provider name -> pool or vault
}

// Builder translates accepted opportunities into executor calldata.
// Building is deterministic and performs no network I/O.
type Builder struct {
	config BuilderConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{config: cfg}
}

// Build encodes an opportunity into an executor call. The human-scale
// input amount is converted to the base token's native units with
// truncation, so over-precise config values cannot fail the build.
func (b *Builder) Build(opp *arbitrageDomain.Opportunity) (*domain.ArbitrageTransaction, error) {
	if len(opp.Path.Steps) == 0 {
		return nil, apperror.New(apperror.CodeCalldataEncodeFailed,
			apperror.WithContext("opportunity has no steps"))
	}
	if !opp.InputAmount.IsPositive() {
		return nil, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext("input amount must be positive"))
	}

	provider, err := b.resolveProvider(opp.Provider.Name)
	if err != nil {
		return nil, err
	}

	baseToken := opp.Path.BaseToken
	loanAmount, err := b.toNativeUnits(baseToken, opp.Path.Steps, opp.InputAmount)
	if err != nil {
		return nil, err
	}

	steps := make([]domain.SwapInstruction, 0, len(opp.Path.Steps))
	for i, step := range opp.Path.Steps {
		adapter, err := b.ResolveAdapter(step.Dex)
		if err != nil {
			return nil, err
		}

		amountIn := big.NewInt(0)
		if i == 0 {
			amountIn = loanAmount
		}

		steps = append(steps, domain.SwapInstruction{
			Adapter:   adapter,
			TokenIn:   step.TokenIn.Address,
			AmountIn:  amountIn,
			ExtraData: stepExtraData(step),
		})
	}

	calldata, err := encodeExecuteArbitrage(provider, baseToken.Address, loanAmount, steps)
	if err != nil {
		return nil, apperror.New(apperror.CodeCalldataEncodeFailed, apperror.WithCause(err))
	}

	return &domain.ArbitrageTransaction{
		OpportunityID: opp.ID,
		Provider:      provider,
		BaseToken:     baseToken.Address,
		LoanAmount:    loanAmount,
		Steps:         steps,
		To:            b.config.Executor,
		Calldata:      calldata,
	}, nil
}

// ResolveAdapter maps a venue to its deployed adapter address. Missing
// or zero-valued entries are configuration errors; a zero adapter would
// revert on-chain.
func (b *Builder) ResolveAdapter(kind pricingDomain.DexKind) (common.Address, error) {
	adapter, ok := b.config.Adapters[kind]
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeAdapterNotConfigured,
			apperror.WithContext("no adapter configured for "+kind.String()))
	}
	if adapter == (common.Address{}) {
		return common.Address{}, apperror.New(apperror.CodeAdapterNotConfigured,
			apperror.WithContext("zero adapter address for "+kind.String()))
	}
	return adapter, nil
}

func (b *Builder) resolveProvider(name string) (common.Address, error) {
	provider, ok := b.config.Providers[name]
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no address configured for provider "+name))
	}
	if provider == (common.Address{}) {
		return common.Address{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("zero address for provider "+name))
	}
	return provider, nil
}

// toNativeUnits scales the human-scale amount by the base token's
// decimals. Precision comes from the first step's input token, then
// the last step's output token, then a default of 18.
func (b *Builder) toNativeUnits(base pricingDomain.Token, steps []arbitrageDomain.SwapStep, amount decimal.Decimal) (*big.Int, error) {
	decimals := uint8(18)
	if steps[0].TokenIn.Address == base.Address {
		decimals = steps[0].TokenIn.Decimals
	} else if steps[len(steps)-1].TokenOut.Address == base.Address {
		decimals = steps[len(steps)-1].TokenOut.Decimals
	}

	id := asset.NewTokenAssetID(b.config.ChainID, base.Address)
	parsed, err := asset.ParseDecimalTruncate(asset.NewAsset(id, base.Symbol, decimals), amount)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidTradeSize, apperror.WithCause(err))
	}
	return parsed.Raw(), nil
}

// stepExtraData packs venue-specific routing parameters. The switch is
// exhaustive over the closed venue set.
func stepExtraData(step arbitrageDomain.SwapStep) []byte {
	switch step.Dex {
	case pricingDomain.DexUniswapV3:
		return common.LeftPadBytes(big.NewInt(int64(step.FeeTier)).Bytes(), 32)
	case pricingDomain.DexTraderJoeLB:
		return common.LeftPadBytes(big.NewInt(int64(step.BinStep)).Bytes(), 32)
	default:
		return []byte{}
	}
}

func encodeExecuteArbitrage(provider, token common.Address, amount *big.Int, steps []domain.SwapInstruction) ([]byte, error) {
	abiSteps := make([]abiSwapStep, 0, len(steps))
	for _, s := range steps {
		abiSteps = append(abiSteps, abiSwapStep{
			Adapter:   s.Adapter,
			TokenIn:   s.TokenIn,
			AmountIn:  s.AmountIn,
			ExtraData: s.ExtraData,
		})
	}

	return executorABI.Pack("executeArbitrage", abiArbParams{
		Provider: provider,
		Token:    token,
		Amount:   amount,
		Steps:    abiSteps,
	})
}

// DecodeCalldata unpacks executor calldata back into its parameters.
// Used by tests and the cancellation path to inspect in-flight calls.
func DecodeCalldata(calldata []byte) (*abiArbParams, error) {
	method := executorABI.Methods["executeArbitrage"]
	if len(calldata) < 4 {
		return nil, apperror.New(apperror.CodeCalldataEncodeFailed,
			apperror.WithContext("calldata too short"))
	}

	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, apperror.New(apperror.CodeCalldataEncodeFailed, apperror.WithCause(err))
	}

	return abi.ConvertType(values[0], new(abiArbParams)).(*abiArbParams), nil
}

// CalculateGasSettings derives the fee triple from the current fee
// market: maxFee = 2 x baseFee + priorityFee, the standard headroom
// strategy for inclusion within a few blocks.
func CalculateGasSettings(baseFeeGwei, priorityFeeGwei decimal.Decimal, gasLimit uint64) (domain.GasSettings, error) {
	if baseFeeGwei.IsNegative() || priorityFeeGwei.IsNegative() {
		return domain.GasSettings{}, apperror.New(apperror.CodeInvalidGasSettings,
			apperror.WithContext("fees must be non-negative"))
	}
	if gasLimit == 0 {
		return domain.GasSettings{}, apperror.New(apperror.CodeInvalidGasSettings,
			apperror.WithContext("gas limit must be positive"))
	}

	maxFeeGwei := baseFeeGwei.Mul(decimal.NewFromInt(2)).Add(priorityFeeGwei)

	return domain.GasSettings{
		MaxFeePerGas:         maxFeeGwei.Shift(9).Truncate(0).BigInt(),
		MaxPriorityFeePerGas: priorityFeeGwei.Shift(9).Truncate(0).BigInt(),
		GasLimit:             gasLimit,
	}, nil
}

// PrepareTransaction merges a built transaction with gas settings and
// an allocated nonce. No network I/O happens here.
func PrepareTransaction(tx *domain.ArbitrageTransaction, gas domain.GasSettings, nonce int64) (*domain.PreparedTransaction, error) {
	if nonce < 0 {
		return nil, apperror.New(apperror.CodeInvalidNonce,
			apperror.WithContext("nonce must be non-negative"))
	}

	return &domain.PreparedTransaction{
		Tx:    tx,
		Gas:   gas,
		Nonce: uint64(nonce),
	}, nil
}
