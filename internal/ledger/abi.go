package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Minimal ABI subset for the milestone contract: two read methods and a
// plain value transfer. Words are 32 bytes, big-endian.

const wordLen = 32

// selector returns the 4-byte call selector for a method signature.
func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// encodeCall builds the 0x-prefixed calldata for a selector plus uint256
// arguments.
func encodeCall(sig string, args ...*big.Int) string {
	data := selector(sig)
	for _, a := range args {
		word := make([]byte, wordLen)
		a.FillBytes(word)
		data = append(data, word...)
	}
	return "0x" + hex.EncodeToString(data)
}

// decodeWords splits a 0x-prefixed eth_call result into 32-byte words.
func decodeWords(result string) ([][]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(result, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: malformed call result: %w", err)
	}
	if len(raw)%wordLen != 0 {
		return nil, fmt.Errorf("ledger: call result length %d not word-aligned", len(raw))
	}
	words := make([][]byte, 0, len(raw)/wordLen)
	for i := 0; i < len(raw); i += wordLen {
		words = append(words, raw[i:i+wordLen])
	}
	return words, nil
}

func wordToUint(word []byte) *big.Int {
	return new(big.Int).SetBytes(word)
}

func wordToBool(word []byte) bool {
	return wordToUint(word).Sign() != 0
}

// wordToAddress takes the low 20 bytes of a word as a 0x-hex address.
func wordToAddress(word []byte) string {
	return "0x" + hex.EncodeToString(word[wordLen-20:])
}
