package homomorphic

import (
	"fmt"
	"io"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/biovote/protocol/crypto/ecc"
	"github.com/biovote/protocol/crypto/ecc/curves"
	"github.com/biovote/protocol/crypto/elgamal"
	"github.com/biovote/protocol/types"
)

// elgamalScheme adapts exponential EC ElGamal with Shamir threshold
// decryption to the Scheme interface. Plaintext recovery runs a discrete
// log search, so decrypted sums must stay below types.MaxTallyMessage.
type elgamalScheme struct{}

type elgamalPublic struct {
	Curve     string `cbor:"1,keyasint"`
	Point     []byte `cbor:"2,keyasint"`
	Threshold int    `cbor:"3,keyasint"`
}

type elgamalShare struct {
	Curve string   `cbor:"1,keyasint"`
	S     *big.Int `cbor:"2,keyasint"`
}

type elgamalCiphertext struct {
	Curve string `cbor:"1,keyasint"`
	Data  []byte `cbor:"2,keyasint"`
}

type elgamalDecShare struct {
	Curve string `cbor:"1,keyasint"`
	Point []byte `cbor:"2,keyasint"`
}

func (s *elgamalScheme) Name() string { return SchemeElGamal }

// GenerateKeys ignores bits: the group is fixed by the curve backend.
func (s *elgamalScheme) GenerateKeys(_, threshold, trustees int, rng io.Reader) (*KeyPair, error) {
	if threshold < 1 || threshold > trustees {
		return nil, fmt.Errorf("invalid threshold %d for %d trustees", threshold, trustees)
	}
	curve, err := curves.New(curves.CurveTypeBN254)
	if err != nil {
		return nil, err
	}
	pub, priv, err := elgamal.GenerateKey(curve, rng)
	if err != nil {
		return nil, err
	}
	shares, err := elgamal.ShareSecret(priv, threshold, trustees, curve.Order(), rng)
	if err != nil {
		return nil, err
	}
	priv.SetInt64(0)

	pubBlob, err := cbor.Marshal(&elgamalPublic{
		Curve:     curve.Type(),
		Point:     pub.Marshal(),
		Threshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	kp := &KeyPair{
		Public:    &PublicKey{Scheme: SchemeElGamal, Data: pubBlob},
		Threshold: threshold,
	}
	for _, ks := range shares {
		blob, err := cbor.Marshal(&elgamalShare{Curve: curve.Type(), S: ks.PrivateShare})
		if err != nil {
			return nil, fmt.Errorf("failed to encode secret share: %w", err)
		}
		kp.Shares = append(kp.Shares, &SecretShare{Scheme: SchemeElGamal, Index: ks.Index, Data: blob})
	}
	return kp, nil
}

func (s *elgamalScheme) Encrypt(pk *PublicKey, message *big.Int, rng io.Reader) (*Ciphertext, error) {
	pubPoint, pub, err := s.decodePublic(pk)
	if err != nil {
		return nil, err
	}
	if message.Sign() < 0 || message.Cmp(big.NewInt(types.MaxTallyMessage)) > 0 {
		return nil, fmt.Errorf("message out of plaintext space")
	}
	ct := elgamal.NewCiphertext(pubPoint)
	if _, err := ct.Encrypt(message, pubPoint, nil, rng); err != nil {
		return nil, err
	}
	blob, err := cbor.Marshal(&elgamalCiphertext{Curve: pub.Curve, Data: ct.Serialize()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ciphertext: %w", err)
	}
	return &Ciphertext{Scheme: SchemeElGamal, Data: blob}, nil
}

func (s *elgamalScheme) Add(pk *PublicKey, a, b *Ciphertext) (*Ciphertext, error) {
	if err := checkScheme(SchemeElGamal, pk.Scheme); err != nil {
		return nil, err
	}
	ca, curveType, err := s.decodeCiphertext(a)
	if err != nil {
		return nil, err
	}
	cb, _, err := s.decodeCiphertext(b)
	if err != nil {
		return nil, err
	}
	sum := elgamal.NewCiphertext(ca.C1)
	sum.Add(ca, cb)
	blob, err := cbor.Marshal(&elgamalCiphertext{Curve: curveType, Data: sum.Serialize()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ciphertext: %w", err)
	}
	return &Ciphertext{Scheme: SchemeElGamal, Data: blob}, nil
}

func (s *elgamalScheme) PartialDecrypt(share *SecretShare, ct *Ciphertext) (*DecryptionShare, error) {
	if err := checkScheme(SchemeElGamal, share.Scheme); err != nil {
		return nil, err
	}
	var sh elgamalShare
	if err := cbor.Unmarshal(share.Data, &sh); err != nil {
		return nil, fmt.Errorf("failed to decode secret share: %w", err)
	}
	c, _, err := s.decodeCiphertext(ct)
	if err != nil {
		return nil, err
	}
	ks := &elgamal.KeyShare{Index: share.Index, PrivateShare: sh.S}
	si := ks.PartialDecrypt(c.C1)
	blob, err := cbor.Marshal(&elgamalDecShare{Curve: sh.Curve, Point: si.Marshal()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode decryption share: %w", err)
	}
	return &DecryptionShare{Scheme: SchemeElGamal, Index: share.Index, Data: blob}, nil
}

func (s *elgamalScheme) Combine(pk *PublicKey, ct *Ciphertext, shares []*DecryptionShare) (*big.Int, error) {
	_, pub, err := s.decodePublic(pk)
	if err != nil {
		return nil, err
	}
	if err := dedupeShares(shares, pub.Threshold); err != nil {
		return nil, err
	}
	c, _, err := s.decodeCiphertext(ct)
	if err != nil {
		return nil, err
	}

	partials := make(map[int]ecc.Point, pub.Threshold)
	for _, sh := range shares[:pub.Threshold] {
		if err := checkScheme(SchemeElGamal, sh.Scheme); err != nil {
			return nil, err
		}
		var dec elgamalDecShare
		if err := cbor.Unmarshal(sh.Data, &dec); err != nil {
			return nil, fmt.Errorf("failed to decode decryption share: %w", err)
		}
		p := c.C1.New()
		if err := p.Unmarshal(dec.Point); err != nil {
			return nil, fmt.Errorf("invalid decryption share point: %w", err)
		}
		partials[sh.Index] = p
	}
	return elgamal.CombinePartialDecryptions(c.C2, partials, types.MaxTallyMessage)
}

func (s *elgamalScheme) decodePublic(pk *PublicKey) (ecc.Point, *elgamalPublic, error) {
	if err := checkScheme(SchemeElGamal, pk.Scheme); err != nil {
		return nil, nil, err
	}
	var pub elgamalPublic
	if err := cbor.Unmarshal(pk.Data, &pub); err != nil {
		return nil, nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	point, err := curves.New(pub.Curve)
	if err != nil {
		return nil, nil, err
	}
	if err := point.Unmarshal(pub.Point); err != nil {
		return nil, nil, fmt.Errorf("invalid public key point: %w", err)
	}
	return point, &pub, nil
}

func (s *elgamalScheme) decodeCiphertext(ct *Ciphertext) (*elgamal.Ciphertext, string, error) {
	if err := checkScheme(SchemeElGamal, ct.Scheme); err != nil {
		return nil, "", err
	}
	var wire elgamalCiphertext
	if err := cbor.Unmarshal(ct.Data, &wire); err != nil {
		return nil, "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	curve, err := curves.New(wire.Curve)
	if err != nil {
		return nil, "", err
	}
	c := elgamal.NewCiphertext(curve)
	if err := c.Deserialize(wire.Data); err != nil {
		return nil, "", err
	}
	return c, wire.Curve, nil
}
