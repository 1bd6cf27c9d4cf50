package elgamal

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/biovote/protocol/crypto/ecc"
)

// Ciphertext is an EC ElGamal ciphertext with homomorphic addition. It
// wraps the two curve points so the rest of the protocol never handles raw
// coordinates.
type Ciphertext struct {
	C1 ecc.Point `json:"c1"`
	C2 ecc.Point `json:"c2"`
}

// NewCiphertext creates an identity ciphertext on the same curve as the
// given point. Adding it to another ciphertext leaves that one unchanged,
// so it serves as the accumulator seed for running tallies.
func NewCiphertext(curve ecc.Point) *Ciphertext {
	return &Ciphertext{C1: curve.New(), C2: curve.New()}
}

// Encrypt encrypts a message under the public key into z. The randomness k
// can be nil to draw a fresh one from rng.
func (z *Ciphertext) Encrypt(message *big.Int, publicKey ecc.Point, k *big.Int, rng io.Reader) (*Ciphertext, error) {
	var err error
	if k == nil {
		k, err = RandK(rng, publicKey.Order())
		if err != nil {
			return nil, fmt.Errorf("elgamal encryption failed: %w", err)
		}
	}
	c1, c2, err := EncryptWithK(publicKey, message, k)
	if err != nil {
		return nil, fmt.Errorf("elgamal encryption failed: %w", err)
	}
	z.C1 = c1
	z.C2 = c2
	return z, nil
}

// Add adds two ciphertexts and stores the result in z, which is also
// returned. The underlying plaintexts add.
func (z *Ciphertext) Add(x, y *Ciphertext) *Ciphertext {
	z.C1.SafeAdd(x.C1, y.C1)
	z.C2.SafeAdd(x.C2, y.C2)
	return z
}

// Serialize returns the ciphertext as the concatenation of the two marshaled
// points. The length depends on the curve backend.
func (z *Ciphertext) Serialize() []byte {
	return append(z.C1.Marshal(), z.C2.Marshal()...)
}

// Deserialize reconstructs a ciphertext serialized with Serialize. The
// receiver's points determine the expected curve.
func (z *Ciphertext) Deserialize(data []byte) error {
	pointLen := len(z.C1.New().Marshal())
	if len(data) != 2*pointLen {
		return fmt.Errorf("invalid input length: got %d bytes, expected %d bytes", len(data), 2*pointLen)
	}
	if err := z.C1.Unmarshal(data[:pointLen]); err != nil {
		return fmt.Errorf("invalid c1 point: %w", err)
	}
	if err := z.C2.Unmarshal(data[pointLen:]); err != nil {
		return fmt.Errorf("invalid c2 point: %w", err)
	}
	return nil
}

// Marshal converts the ciphertext to a byte slice.
func (z *Ciphertext) Marshal() ([]byte, error) {
	return json.Marshal(z)
}

// Unmarshal populates the ciphertext from a byte slice.
func (z *Ciphertext) Unmarshal(data []byte) error {
	return json.Unmarshal(data, z)
}

// String returns a string representation of the ciphertext.
func (z *Ciphertext) String() string {
	if z == nil || z.C1 == nil || z.C2 == nil {
		return "{C1: nil, C2: nil}"
	}
	return fmt.Sprintf("{C1: %s, C2: %s}", z.C1.String(), z.C2.String())
}
