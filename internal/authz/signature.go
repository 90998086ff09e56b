package authz

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// RequestMessage builds the text a caller signs for one HTTP request.
// Format: "SessionVault|{METHOD}|{path}|{sha256(body) hex}|{unix seconds}"
func RequestMessage(method, path string, body []byte, timestamp int64) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("SessionVault|%s|%s|%s|%d",
		strings.ToUpper(method),
		path,
		hex.EncodeToString(sum[:]),
		timestamp,
	)
}

// HashMessage applies the EIP-191 personal message prefix and hashes with Keccak256.
func HashMessage(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix + message))
}

// RecoverAddress returns the lowercase address that produced signatureHex
// over message. The signature is 65 bytes r||s||v; v may be 0/1 or 27/28.
func RecoverAddress(message, signatureHex string) (string, error) {
	signature, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(signature) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	if signature[crypto.RecoveryIDOffset] >= 27 {
		signature[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(HashMessage(message), signature)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Sign produces a 0x-prefixed signature over message with v in {27, 28}.
func Sign(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(HashMessage(message), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// AddressOf returns the lowercase address for key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}
