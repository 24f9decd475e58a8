// Package security provides cryptographic signing for risk assessments
// so downstream consumers can verify a result came from this service and
// was not altered in transit.
package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// SignedAssessment wraps an assessment with its signature envelope.
type SignedAssessment struct {
	Assessment model.RiskAssessment `json:"assessment"`

	// Keccak256 fingerprint of the canonical assessment JSON, usable as
	// an on-chain anchor
	Fingerprint string `json:"fingerprint"`

	Signature  string `json:"signature"`
	PublicKey  string `json:"public_key"`
	Algorithm  string `json:"algorithm"`
	SignedAt   int64  `json:"signed_at"`
	ValidUntil int64  `json:"valid_until"`
}

// Signer signs assessments with an ECDSA P-256 key generated at startup.
type Signer struct {
	privateKey       *ecdsa.PrivateKey
	publicKeyEncoded string
	validity         time.Duration
}

// NewSigner creates a signer with a fresh key pair. Validity bounds how
// long a signature may be accepted; zero means one hour.
func NewSigner(validity time.Duration) (*Signer, error) {
	if validity <= 0 {
		validity = time.Hour
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	publicKeyBytes := elliptic.Marshal(elliptic.P256(), privateKey.PublicKey.X, privateKey.PublicKey.Y)
	publicKeyEncoded := base64.StdEncoding.EncodeToString(publicKeyBytes)

	logrus.Infof("Assessment signer initialized with public key: %s...", publicKeyEncoded[:16])
	return &Signer{
		privateKey:       privateKey,
		publicKeyEncoded: publicKeyEncoded,
		validity:         validity,
	}, nil
}

// PublicKey returns the base64-encoded public key.
func (s *Signer) PublicKey() string {
	return s.publicKeyEncoded
}

// Sign produces the signature envelope for one assessment.
func (s *Signer) Sign(assessment model.RiskAssessment) (SignedAssessment, error) {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return SignedAssessment{}, fmt.Errorf("failed to marshal assessment: %w", err)
	}

	hash := sha256.Sum256(payload)
	r, sv, err := ecdsa.Sign(rand.Reader, s.privateKey, hash[:])
	if err != nil {
		return SignedAssessment{}, fmt.Errorf("failed to sign assessment: %w", err)
	}

	// Fixed-width r || s so the verifier can split unambiguously.
	signature := make([]byte, 64)
	r.FillBytes(signature[:32])
	sv.FillBytes(signature[32:])

	now := time.Now()
	return SignedAssessment{
		Assessment:  assessment,
		Fingerprint: crypto.Keccak256Hash(payload).Hex(),
		Signature:   base64.StdEncoding.EncodeToString(signature),
		PublicKey:   s.publicKeyEncoded,
		Algorithm:   "ECDSA-P256-SHA256",
		SignedAt:    now.Unix(),
		ValidUntil:  now.Add(s.validity).Unix(),
	}, nil
}

// Verify checks the signature, validity window and fingerprint of a
// signed assessment against the embedded public key.
func Verify(signed SignedAssessment) error {
	if time.Now().Unix() > signed.ValidUntil {
		return apperrors.Validation(fmt.Sprintf("signature expired at %s",
			time.Unix(signed.ValidUntil, 0).UTC().Format(time.RFC3339)))
	}

	publicKeyBytes, err := base64.StdEncoding.DecodeString(signed.PublicKey)
	if err != nil {
		return apperrors.Validation("public key is not valid base64")
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), publicKeyBytes)
	if x == nil {
		return apperrors.Validation("public key is not a valid P-256 point")
	}
	publicKey := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	signatureBytes, err := base64.StdEncoding.DecodeString(signed.Signature)
	if err != nil {
		return apperrors.Validation("signature is not valid base64")
	}
	if len(signatureBytes) != 64 {
		return apperrors.Validation(fmt.Sprintf("invalid signature length %d", len(signatureBytes)))
	}

	payload, err := json.Marshal(signed.Assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}

	if crypto.Keccak256Hash(payload).Hex() != signed.Fingerprint {
		return apperrors.Validation("assessment fingerprint mismatch")
	}

	hash := sha256.Sum256(payload)
	r := new(big.Int).SetBytes(signatureBytes[:32])
	sv := new(big.Int).SetBytes(signatureBytes[32:])
	if !ecdsa.Verify(publicKey, hash[:], r, sv) {
		return apperrors.Validation("signature verification failed")
	}
	return nil
}
