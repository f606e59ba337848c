package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func encodeCustomError(t *testing.T, sig string, words ...[]byte) []byte {
	t.Helper()
	data := crypto.Keccak256([]byte(sig))[:4]
	for _, w := range words {
		data = append(data, common.LeftPadBytes(w, 32)...)
	}
	return data
}

func encodeStringError(t *testing.T, reason string) []byte {
	t.Helper()
	data := crypto.Keccak256([]byte("Error(string)"))[:4]
	data = append(data, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	padded := make([]byte, (len(reason)+31)/32*32)
	copy(padded, reason)
	return append(data, padded...)
}

func TestDecodeRevertData(t *testing.T) {
	adapter := common.HexToAddress("0x1111111111111111111111111111111111111111")

	tests := []struct {
		name   string
		data   []byte
		want   string
		wantOK bool
	}{
		{
			name: "insufficient profit",
			data: encodeCustomError(t, "InsufficientProfit(uint256,uint256)",
				big.NewInt(100).Bytes(), big.NewInt(42).Bytes()),
			want:   "insufficient profit: expected 100, got 42",
			wantOK: true,
		},
		{
			name: "adapter not approved",
			data: encodeCustomError(t, "AdapterNotApproved(address)",
				adapter.Bytes()),
			want:   "adapter not approved: " + adapter.Hex(),
			wantOK: true,
		},
		{
			name:   "empty swap path",
			data:   encodeCustomError(t, "EmptySwapPath()"),
			want:   "empty swap path",
			wantOK: true,
		},
		{
			name: "unauthorized caller",
			data: encodeCustomError(t, "UnauthorizedCaller(address)",
				adapter.Bytes()),
			want:   "unauthorized caller: " + adapter.Hex(),
			wantOK: true,
		},
		{
			name:   "contract paused",
			data:   encodeCustomError(t, "ContractPaused()"),
			want:   "contract paused",
			wantOK: true,
		},
		{
			name:   "zero address",
			data:   encodeCustomError(t, "ZeroAddress()"),
			want:   "zero address",
			wantOK: true,
		},
		{
			name:   "zero amount",
			data:   encodeCustomError(t, "ZeroAmount()"),
			want:   "zero amount",
			wantOK: true,
		},
		{
			name:   "standard error string",
			data:   encodeStringError(t, "SafeERC20: low-level call failed"),
			want:   "SafeERC20: low-level call failed",
			wantOK: true,
		},
		{
			name: "unknown selector",
			data: encodeCustomError(t, "SomethingElse()"),
		},
		{
			name: "truncated data",
			data: []byte{0x01, 0x02},
		},
		{
			name: "missing arguments",
			data: crypto.Keccak256([]byte("InsufficientProfit(uint256,uint256)"))[:4],
		},
		{
			// A hostile length word must not panic the decoder.
			name: "standard error with oversized length",
			data: func() []byte {
				data := crypto.Keccak256([]byte("Error(string)"))[:4]
				data = append(data, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
				huge := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 63), big.NewInt(40))
				return append(data, common.LeftPadBytes(huge.Bytes(), 32)...)
			}(),
		},
		{
			name: "standard error with offset past the payload",
			data: func() []byte {
				data := crypto.Keccak256([]byte("Error(string)"))[:4]
				return append(data, common.LeftPadBytes(big.NewInt(1<<40).Bytes(), 32)...)
			}(),
		},
		{
			name: "standard error with length beyond int64",
			data: func() []byte {
				data := crypto.Keccak256([]byte("Error(string)"))[:4]
				data = append(data, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
				over := new(big.Int).Lsh(big.NewInt(1), 64)
				return append(data, common.LeftPadBytes(over.Bytes(), 32)...)
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeRevertData(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("DecodeRevertData() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("DecodeRevertData() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractRevertReason(t *testing.T) {
	decoded := encodeCustomError(t, "ContractPaused()")

	tests := []struct {
		name       string
		returnData []byte
		reason     string
		errMsg     string
		want       string
	}{
		{
			name:       "decoded data wins",
			returnData: decoded,
			reason:     "provider reason",
			errMsg:     "execution reverted: other",
			want:       "contract paused",
		},
		{
			name:   "provider reason second",
			reason: "provider reason",
			errMsg: "execution reverted: other",
			want:   "provider reason",
		},
		{
			name:   "regex scrape third",
			errMsg: "execution reverted: UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT",
			want:   "UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT",
		},
		{
			name:   "bare revert message",
			errMsg: "reverted: out of gas",
			want:   "out of gas",
		},
		{
			name:   "nothing to extract",
			errMsg: "connection refused",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRevertReason(tt.returnData, tt.reason, tt.errMsg)
			if got != tt.want {
				t.Errorf("ExtractRevertReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRevertHex(t *testing.T) {
	data := ParseRevertHex("0x08c379a0")
	if len(data) != 4 {
		t.Fatalf("len = %d, want 4", len(data))
	}
	if ParseRevertHex("not hex") != nil {
		t.Error("expected nil for invalid hex")
	}
}
