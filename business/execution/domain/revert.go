package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Custom error signatures of the executor contract. The set is closed;
// anything else falls back to the standard Error(string) or a regex
// scrape of the provider's message.
const (
	errInsufficientProfit = "InsufficientProfit(uint256,uint256)"
	errAdapterNotApproved = "AdapterNotApproved(address)"
	errEmptySwapPath      = "EmptySwapPath()"
	errUnauthorizedCaller = "UnauthorizedCaller(address)"
	errContractPaused     = "ContractPaused()"
	errZeroAddress        = "ZeroAddress()"
	errZeroAmount         = "ZeroAmount()"
	errStandard           = "Error(string)"
)

func selector(sig string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	return sel
}

var (
	selInsufficientProfit = selector(errInsufficientProfit)
	selAdapterNotApproved = selector(errAdapterNotApproved)
	selEmptySwapPath      = selector(errEmptySwapPath)
	selUnauthorizedCaller = selector(errUnauthorizedCaller)
	selContractPaused     = selector(errContractPaused)
	selZeroAddress        = selector(errZeroAddress)
	selZeroAmount         = selector(errZeroAmount)
	selStandard           = selector(errStandard)
)

var revertReasonPattern = regexp.MustCompile(`(?i)(?:execution reverted|revert(?:ed)?)[:\s]+(.+)`)

// DecodeRevertData decodes raw revert return data against the known
// custom error set. The second return is false when the data does not
// match any known signature.
func DecodeRevertData(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}

	var sel [4]byte
	copy(sel[:], data[:4])
	args := data[4:]

	switch sel {
	case selInsufficientProfit:
		expected, got := wordAsBig(args, 0), wordAsBig(args, 1)
		if expected == nil || got == nil {
			return "", false
		}
		return fmt.Sprintf("insufficient profit: expected %s, got %s", expected, got), true
	case selAdapterNotApproved:
		addr, ok := wordAsAddress(args, 0)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("adapter not approved: %s", addr.Hex()), true
	case selEmptySwapPath:
		return "empty swap path", true
	case selUnauthorizedCaller:
		addr, ok := wordAsAddress(args, 0)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("unauthorized caller: %s", addr.Hex()), true
	case selContractPaused:
		return "contract paused", true
	case selZeroAddress:
		return "zero address", true
	case selZeroAmount:
		return "zero amount", true
	case selStandard:
		reason, ok := decodeStandardError(args)
		if !ok {
			return "", false
		}
		return reason, true
	default:
		return "", false
	}
}

// ExtractRevertReason resolves a revert reason with decreasing
// confidence: decoded return data, then the provided reason string,
// then a regex scrape of the error message, else empty.
func ExtractRevertReason(returnData []byte, reason, errMsg string) string {
	if decoded, ok := DecodeRevertData(returnData); ok {
		return decoded
	}
	if reason != "" {
		return reason
	}
	if match := revertReasonPattern.FindStringSubmatch(errMsg); match != nil {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// ParseRevertHex decodes "0x..." return data carried inside an error
// message into raw bytes.
func ParseRevertHex(s string) []byte {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return data
}

// wordAsBig reads the i-th 32 byte word as an unsigned integer.
func wordAsBig(args []byte, i int) *big.Int {
	start := i * 32
	if len(args) < start+32 {
		return nil
	}
	return new(big.Int).SetBytes(args[start : start+32])
}

// wordAsAddress reads the i-th 32 byte word as a right-aligned address.
func wordAsAddress(args []byte, i int) (common.Address, bool) {
	start := i * 32
	if len(args) < start+32 {
		return common.Address{}, false
	}
	return common.BytesToAddress(args[start+12 : start+32]), true
}

// decodeStandardError decodes the ABI-encoded Error(string) payload.
// The offset and length words come from RPC error responses, so both
// are bounded against the payload before any slice arithmetic.
func decodeStandardError(args []byte) (string, bool) {
	offset := wordAsBig(args, 0)
	if offset == nil || !offset.IsInt64() {
		return "", false
	}
	pos := offset.Int64()
	if pos < 0 || int64(len(args))-32 < pos {
		return "", false
	}
	length := new(big.Int).SetBytes(args[pos : pos+32])
	if !length.IsInt64() {
		return "", false
	}
	n := length.Int64()
	if n < 0 || int64(len(args))-pos-32 < n {
		return "", false
	}
	return string(args[pos+32 : pos+32+n]), true
}
