// Package chain guesses which network a contract address belongs to.
package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Kind names an address family.
type Kind string

const (
	KindEVM     Kind = "evm"
	KindSolana  Kind = "solana"
	KindUnknown Kind = "unknown"
)

// solanaKeyLen is the size of an ed25519 public key, which is what a mint address encodes.
const solanaKeyLen = 32

// Detect classifies addr. It never rejects an address; extraction accepts anything that looks
// like one and this is only used for display and archiving.
func Detect(addr string) Kind {
	if common.IsHexAddress(addr) && len(addr) == 2+2*common.AddressLength {
		return KindEVM
	}
	if decoded, err := base58.Decode(addr); err == nil && len(decoded) == solanaKeyLen {
		return KindSolana
	}
	return KindUnknown
}

// Display returns the canonical spelling of addr: EIP-55 checksum for EVM addresses,
// unchanged otherwise.
func Display(addr string) string {
	if Detect(addr) == KindEVM {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}
