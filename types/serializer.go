package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// HexBytes is a byte slice that marshals as a hexadecimal string in JSON.
// The "0x" prefix is accepted but not emitted.
type HexBytes []byte

// String returns the hexadecimal representation of b.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// MarshalJSON implements json.Marshaler.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(b) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid hex string %q", data)
	}
	s := strings.TrimPrefix(string(data[1:len(data)-1]), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// BigInt wraps big.Int to provide JSON and CBOR marshaling as a decimal
// string, which avoids precision loss in javascript consumers.
type BigInt big.Int

// MathBigInt returns the underlying *big.Int.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// String returns the decimal representation of i.
func (i *BigInt) String() string {
	return i.MathBigInt().String()
}

// MarshalJSON implements json.Marshaler.
func (i *BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.MathBigInt().String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Both quoted and bare decimal
// numbers are accepted.
func (i *BigInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	z, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid big integer %q", s)
	}
	i.MathBigInt().Set(z)
	return nil
}

// MarshalCBOR implements cbor.Marshaler using the big-endian byte encoding.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(i.MathBigInt().Bytes())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var buf []byte
	if err := cbor.Unmarshal(data, &buf); err != nil {
		return err
	}
	i.MathBigInt().SetBytes(buf)
	return nil
}
