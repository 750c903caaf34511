package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// ParsePrivateKey decodes a base64 ed25519 private key. Both the 32 byte seed and the
// 64 byte expanded form are accepted.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("private key is not valid base64: %w", err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, fmt.Errorf("private key has invalid length %d", len(b))
	}
}

// ParsePublicKey decodes a base64 ed25519 public key
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("public key is not valid base64: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has invalid length %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}

// IDFromPublicKey returns the peer id belonging to a public key
func IDFromPublicKey(pub ed25519.PublicKey) PeerID {
	return PeerID(base64.StdEncoding.EncodeToString(pub))
}

// GenerateKey creates a new key pair and returns the base64 seed and public key
func GenerateKey() (privateKey string, publicKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(priv.Seed()), base64.StdEncoding.EncodeToString(pub), nil
}

// --------------------------------------------------------------------------
// Signer
// --------------------------------------------------------------------------

// Signer issues MultiGrants in the name of this peer
type Signer struct {
	key ed25519.PrivateKey
	id  PeerID
}

// NewSigner creates a signer for the given private key
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{
		key: key,
		id:  IDFromPublicKey(key.Public().(ed25519.PublicKey)),
	}
}

// ID returns the peer id of the signer
func (s *Signer) ID() PeerID {
	return s.id
}

// PublicKey returns the public half of the signing key
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// NewMultiGrant creates and signs a grant issued by this peer
func (s *Signer) NewMultiGrant(grants Grants, initiator PeerID, txHash []byte) MultiGrant {
	mg := MultiGrant{
		Grants:          grants,
		Initiator:       initiator,
		Responder:       s.id,
		TransactionHash: txHash,
	}
	mg.Signature = ed25519.Sign(s.key, signingDigest(&mg))
	return mg
}
