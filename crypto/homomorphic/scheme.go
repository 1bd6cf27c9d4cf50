// Package homomorphic defines the pluggable additively homomorphic
// encryption layer behind the vote tally. Per-ballot plaintexts are {0,1}
// per option; the ledger folds ciphertexts with Add and a quorum of trustees
// decrypts only the final per-option sums.
//
// Two backends are provided: a threshold Paillier cryptosystem and an EC
// ElGamal scheme reusing the curve backends. All key, share and ciphertext
// material crosses package boundaries as opaque scheme-tagged blobs, so
// callers cannot mix artifacts from different schemes by accident.
package homomorphic

import (
	"fmt"
	"io"
	"math/big"
)

// Scheme names accepted by New.
const (
	SchemePaillier = "threshold-paillier"
	SchemeElGamal  = "ec-elgamal"
)

var (
	// ErrInsufficientShares is returned when fewer decryption shares than
	// the threshold are combined.
	ErrInsufficientShares = fmt.Errorf("not enough decryption shares for threshold")
	// ErrDuplicateShareIndex is returned when two shares carry the same
	// trustee index.
	ErrDuplicateShareIndex = fmt.Errorf("duplicate decryption share index")
	// ErrSchemeMismatch is returned when an artifact tagged for one scheme
	// is fed to another.
	ErrSchemeMismatch = fmt.Errorf("artifact belongs to a different scheme")
	// ErrKeyTooSmall is returned when the requested modulus is below the
	// minimum accepted size.
	ErrKeyTooSmall = fmt.Errorf("tally key modulus below minimum size")
)

// PublicKey is a scheme-tagged encryption key.
type PublicKey struct {
	Scheme string `json:"scheme" cbor:"1,keyasint"`
	Data   []byte `json:"data"   cbor:"2,keyasint"`
}

// SecretShare is one trustee's share of the decryption key. Index starts
// at 1 and identifies the trustee in the combination step.
type SecretShare struct {
	Scheme string `json:"scheme" cbor:"1,keyasint"`
	Index  int    `json:"index"  cbor:"2,keyasint"`
	Data   []byte `json:"data"   cbor:"3,keyasint"`
}

// KeyPair is the output of distributed key generation by a trusted dealer:
// the public key plus one secret share per trustee. The full private key is
// never materialized outside GenerateKeys.
type KeyPair struct {
	Public    *PublicKey     `json:"public"    cbor:"1,keyasint"`
	Shares    []*SecretShare `json:"shares"    cbor:"2,keyasint"`
	Threshold int            `json:"threshold" cbor:"3,keyasint"`
}

// Ciphertext is a scheme-tagged encrypted value.
type Ciphertext struct {
	Scheme string `json:"scheme" cbor:"1,keyasint"`
	Data   []byte `json:"data"   cbor:"2,keyasint"`
}

// DecryptionShare is one trustee's contribution to decrypting a ciphertext.
type DecryptionShare struct {
	Scheme string `json:"scheme" cbor:"1,keyasint"`
	Index  int    `json:"index"  cbor:"2,keyasint"`
	Data   []byte `json:"data"   cbor:"3,keyasint"`
}

// Scheme is an additively homomorphic threshold cryptosystem.
type Scheme interface {
	// Name returns the scheme identifier stamped on every artifact.
	Name() string

	// GenerateKeys produces a public key and trustee secret shares such
	// that any threshold of the trustees can decrypt. bits sizes the
	// modulus where the scheme has one.
	GenerateKeys(bits, threshold, trustees int, rng io.Reader) (*KeyPair, error)

	// Encrypt encrypts a small non-negative message under the public key.
	Encrypt(pk *PublicKey, message *big.Int, rng io.Reader) (*Ciphertext, error)

	// Add combines two ciphertexts into one encrypting the plaintext sum.
	Add(pk *PublicKey, a, b *Ciphertext) (*Ciphertext, error)

	// PartialDecrypt computes a trustee's decryption share.
	PartialDecrypt(share *SecretShare, ct *Ciphertext) (*DecryptionShare, error)

	// Combine recovers the plaintext from at least threshold decryption
	// shares with distinct indexes.
	Combine(pk *PublicKey, ct *Ciphertext, shares []*DecryptionShare) (*big.Int, error)
}

// New returns the scheme registered under the given name.
func New(name string) (Scheme, error) {
	switch name {
	case SchemePaillier:
		return &paillierScheme{}, nil
	case SchemeElGamal:
		return &elgamalScheme{}, nil
	default:
		return nil, fmt.Errorf("unknown homomorphic scheme: %s", name)
	}
}

// checkScheme validates that an artifact's tag matches the scheme name.
func checkScheme(name, got string) error {
	if name != got {
		return fmt.Errorf("%w: expected %s, got %s", ErrSchemeMismatch, name, got)
	}
	return nil
}

// dedupeShares verifies the share set is large enough and index-unique.
func dedupeShares(shares []*DecryptionShare, threshold int) error {
	if len(shares) < threshold {
		return fmt.Errorf("%w: got %d, need %d", ErrInsufficientShares, len(shares), threshold)
	}
	seen := make(map[int]bool, len(shares))
	for _, s := range shares {
		if seen[s.Index] {
			return fmt.Errorf("%w: index %d", ErrDuplicateShareIndex, s.Index)
		}
		seen[s.Index] = true
	}
	return nil
}
