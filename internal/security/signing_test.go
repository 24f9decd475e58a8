package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

func sampleAssessment() model.RiskAssessment {
	return model.RiskAssessment{
		Protocol:         "aave_v3",
		Address:          "0xabc",
		OverallRiskScore: 42.5,
		HealthStatus:     model.HealthModerate,
		ConfidenceScore:  0.9,
		CalculatedAt:     1700000000,
	}
}

func TestSigner_SignAndVerify(t *testing.T) {
	signer, err := NewSigner(time.Hour)
	require.NoError(t, err)

	signed, err := signer.Sign(sampleAssessment())
	require.NoError(t, err)

	assert.Equal(t, signer.PublicKey(), signed.PublicKey)
	assert.Equal(t, "ECDSA-P256-SHA256", signed.Algorithm)
	assert.NoError(t, Verify(signed))
}

func TestVerify_DetectsTampering(t *testing.T) {
	signer, err := NewSigner(time.Hour)
	require.NoError(t, err)

	signed, err := signer.Sign(sampleAssessment())
	require.NoError(t, err)

	signed.Assessment.OverallRiskScore = 5.0
	assert.Error(t, Verify(signed))
}

func TestVerify_RejectsExpiredSignature(t *testing.T) {
	signer, err := NewSigner(time.Hour)
	require.NoError(t, err)

	signed, err := signer.Sign(sampleAssessment())
	require.NoError(t, err)

	signed.ValidUntil = time.Now().Add(-time.Minute).Unix()
	assert.Error(t, Verify(signed))
}

func TestVerify_RejectsForeignSignature(t *testing.T) {
	signerA, err := NewSigner(time.Hour)
	require.NoError(t, err)
	signerB, err := NewSigner(time.Hour)
	require.NoError(t, err)

	signed, err := signerA.Sign(sampleAssessment())
	require.NoError(t, err)

	// Swap in another service's key; the signature must no longer verify.
	signed.PublicKey = signerB.PublicKey()
	assert.Error(t, Verify(signed))
}
