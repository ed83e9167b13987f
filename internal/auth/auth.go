// Package auth authenticates callers of the risk oracle.
//
// Authentication model:
//   - Reads (scores, status, feed): no auth required
//   - Mutations (initialize, update): the request is signed with the caller's
//     Ethereum key (EIP-191 personal_sign). The recovered address IS the caller
//     identity handed to the registry; there are no accounts or API keys.
//
// The signed message binds method, path, body and a unix timestamp:
//
//	RiskOracle|PUT|/v1/risk/validator_1|<sha256 hex of body>|1707234567
package auth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Request headers carrying the signature.
const (
	HeaderSignature = "X-Oracle-Signature"
	HeaderTimestamp = "X-Oracle-Timestamp"

	messagePrefix = "RiskOracle"
)

// Errors
var (
	ErrMissingSignature = errors.New("signature headers required")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStaleSignature   = errors.New("signature timestamp outside allowed window")
)

// CanonicalMessage builds the message a caller signs for a request.
func CanonicalMessage(method, path string, body []byte, timestamp int64) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		messagePrefix,
		strings.ToUpper(method),
		path,
		hex.EncodeToString(sum[:]),
		timestamp,
	)
}

// HashMessage creates an Ethereum signed message hash
// This prefixes the message with "\x19Ethereum Signed Message:\n{len}" as per EIP-191
func HashMessage(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix + message))
}

// RecoverAddress recovers the signer's address from a message and signature.
// signature is hex-encoded, 65 bytes (r[32] + s[32] + v[1]), v in {0,1,27,28}.
func RecoverAddress(message, signatureHex string) (common.Address, error) {
	signature, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}

	// Ethereum signatures have v = 27 or 28, but Ecrecover expects 0 or 1
	if signature[64] >= 27 {
		signature[64] -= 27
	}

	pubKeyBytes, err := crypto.Ecrecover(HashMessage(message), signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// Signer signs oracle requests with a private key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner parses a 64 hex character private key, with or without 0x.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{key: key}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// PrivateKeyHex returns the private key as 64 hex characters.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(s.key))
}

// Sign returns the hex signature (v = 27/28) over the canonical message.
func (s *Signer) Sign(method, path string, body []byte, timestamp int64) (string, error) {
	sig, err := crypto.Sign(HashMessage(CanonicalMessage(method, path, body, timestamp)), s.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SignRequest sets the signature headers on req. body must be the exact
// bytes sent as the request body.
func (s *Signer) SignRequest(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := s.Sign(req.Method, req.URL.Path, body, ts)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// Verifier checks request signatures and returns the caller identity.
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier accepts signatures whose timestamp is within maxSkew of now.
func NewVerifier(maxSkew time.Duration) *Verifier {
	return &Verifier{maxSkew: maxSkew, now: time.Now}
}

// WithClock overrides the verifier's time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify recovers the caller from the signature headers of a request.
func (v *Verifier) Verify(method, path string, body []byte, timestampHeader, signatureHeader string) (common.Address, error) {
	if timestampHeader == "" || signatureHeader == "" {
		return common.Address{}, ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return common.Address{}, ErrStaleSignature
	}

	caller, err := RecoverAddress(CanonicalMessage(method, path, body, ts), signatureHeader)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return caller, nil
}
