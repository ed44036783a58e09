package session

import (
	"crypto/ecdsa"
	"fmt"

	icrypto "github.com/fabhost/agent/infrastructure/crypto"
)

// VRFProofProvider generates a checkpoint proof deterministically from the
// session's accounting state using a verifiable random function, so any
// party holding the public key can later confirm the proof really was
// computed for this (sessionId, checkpointIndex, tokensClaimed) tuple
// without trusting the operator's say-so.
type VRFProofProvider struct {
	privateKey *ecdsa.PrivateKey
}

// NewVRFProofProvider wraps the operator's VRF keypair. The key is a P-256
// key distinct from the Ethereum account key: the VRF suite this module
// uses (ECVRF-P256-SHA256-TAI) is defined over P-256, not secp256k1.
func NewVRFProofProvider(key *ecdsa.PrivateKey) *VRFProofProvider {
	return &VRFProofProvider{privateKey: key}
}

// GetProof computes alpha = "sessionId|checkpointIndex|tokensClaimed" and
// returns the VRF output beta concatenated with the serialized proof, so a
// verifier can both recompute beta and check it against the proof.
func (p *VRFProofProvider) GetProof(sessionID string, checkpointIndex int, tokensClaimed uint64) ([]byte, error) {
	alpha := []byte(fmt.Sprintf("%s|%d|%d", sessionID, checkpointIndex, tokensClaimed))
	out, err := icrypto.GenerateVRFProof(p.privateKey, alpha)
	if err != nil {
		return nil, fmt.Errorf("session: generating checkpoint proof: %w", err)
	}
	proofBytes := icrypto.SerializeVRFProof(out.Pi)
	result := make([]byte, 0, len(out.Beta)+len(proofBytes))
	result = append(result, out.Beta...)
	result = append(result, proofBytes...)
	return result, nil
}
