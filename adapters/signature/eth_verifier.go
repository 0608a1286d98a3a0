package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/promox/ports"
)

const isValidSignatureABI = `[{"name":"isValidSignature","type":"function","stateMutability":"view",
"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
"outputs":[{"name":"magicValue","type":"bytes4"}]}]`

// eip1271MagicValue is returned by isValidSignature on success
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

var contractABI = mustParseABI(isValidSignatureABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EthVerifier verifies EIP-191 personal signatures.
// Keypair accounts are checked through ecrecover. When a contract caller is
// configured, anything that does not recover to the claimed address is
// checked against the account's EIP-1271 isValidSignature.
type EthVerifier struct {
	caller  ethereum.ContractCaller
	timeout time.Duration
}

// DefaultCallTimeout bounds a single isValidSignature call
const DefaultCallTimeout = 10 * time.Second

// NewEthVerifier creates a verifier. caller may be nil, which disables smart-account support.
// A zero timeout selects DefaultCallTimeout.
func NewEthVerifier(caller ethereum.ContractCaller, timeout time.Duration) ports.SignatureVerifier {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &EthVerifier{caller: caller, timeout: timeout}
}

// VerifyMessage implements ports.SignatureVerifier
func (v *EthVerifier) VerifyMessage(ctx context.Context, address, message, signature string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, nil
	}
	addr := common.HexToAddress(address)

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, nil
	}

	hash := accounts.TextHash([]byte(message))

	if len(sig) == crypto.SignatureLength && recoversTo(hash, sig, addr) {
		return true, nil
	}

	if v.caller == nil {
		return false, nil
	}

	return v.contractValid(ctx, addr, hash, sig)
}

func recoversTo(hash, sig []byte, addr common.Address) bool {
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return false
	}

	return crypto.PubkeyToAddress(*pub) == addr
}

func (v *EthVerifier) contractValid(ctx context.Context, addr common.Address, hash, sig []byte) (bool, error) {
	var digest [32]byte
	copy(digest[:], hash)

	data, err := contractABI.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	result, err := v.caller.CallContract(callCtx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		var reverted rpc.DataError
		if errors.As(err, &reverted) {
			return false, nil
		}
		return false, fmt.Errorf("isValidSignature call failed: %w", err)
	}

	// Accounts without code return empty data
	if len(result) == 0 {
		return false, nil
	}

	outputs, err := contractABI.Unpack("isValidSignature", result)
	if err != nil || len(outputs) != 1 {
		return false, nil
	}

	magic, ok := outputs[0].([4]byte)
	if !ok {
		return false, nil
	}

	return bytes.Equal(magic[:], eip1271MagicValue[:]), nil
}
