// Package terminal implements the wire protocol between the voting host and
// the biometric hardware terminal. Commands are opcode-tagged CBOR frames;
// every response is signed by the device key and bound to the session and
// command nonce, so a response can neither be forged nor replayed into a
// different exchange.
package terminal

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"github.com/biovote/protocol/types"
)

// Opcode identifies a terminal command.
type Opcode uint8

const (
	OpInitSession Opcode = iota + 1
	OpScanBiometric
	OpVerifyIdentity
	OpGenerateSignature
	OpGetStatus
	OpSecureErase
	OpSubmitVote
	OpShutdown
)

func (op Opcode) String() string {
	switch op {
	case OpInitSession:
		return "INIT_SESSION"
	case OpScanBiometric:
		return "SCAN_BIOMETRIC"
	case OpVerifyIdentity:
		return "VERIFY_IDENTITY"
	case OpGenerateSignature:
		return "GENERATE_SIGNATURE"
	case OpGetStatus:
		return "GET_STATUS"
	case OpSecureErase:
		return "SECURE_ERASE"
	case OpSubmitVote:
		return "SUBMIT_VOTE"
	case OpShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(op))
	}
}

// Status is the device-side result code of a command.
type Status uint8

const (
	StatusOK Status = iota
	StatusBusy
	StatusUnauthorized
	StatusError
	// StatusSessionActive is the INIT_SESSION refusal while another session
	// is live on the device.
	StatusSessionActive
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBusy:
		return "BUSY"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusError:
		return "ERROR"
	case StatusSessionActive:
		return "SESSION_ACTIVE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Command is one host-to-device frame. The nonce is fresh per command and
// must be echoed by the response.
type Command struct {
	Opcode    Opcode         `cbor:"1,keyasint"`
	SessionID types.HexBytes `cbor:"2,keyasint"`
	Nonce     types.HexBytes `cbor:"3,keyasint"`
	Payload   []byte         `cbor:"4,keyasint"`
}

// ResponseError is the structured failure detail of a non-OK response.
type ResponseError struct {
	Code    int    `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// Response is one device-to-host frame, signed by the device key. The
// timestamp and the error detail are covered by the signature.
type Response struct {
	Opcode    Opcode         `cbor:"1,keyasint"`
	SessionID types.HexBytes `cbor:"2,keyasint"`
	Nonce     types.HexBytes `cbor:"3,keyasint"`
	Status    Status         `cbor:"4,keyasint"`
	Payload   []byte         `cbor:"5,keyasint"`
	Error     *ResponseError `cbor:"6,keyasint,omitempty"`
	Timestamp int64          `cbor:"7,keyasint"`
	Signature types.HexBytes `cbor:"8,keyasint"`
}

// digest computes the keccak hash the device signs: every field except the
// signature itself.
func (r *Response) digest() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(r.Opcode))
	buf.Write(r.SessionID)
	buf.Write(r.Nonce)
	buf.WriteByte(byte(r.Status))
	buf.Write(r.Payload)
	if r.Error != nil {
		var code [4]byte
		binary.BigEndian.PutUint32(code[:], uint32(r.Error.Code))
		buf.Write(code[:])
		buf.WriteString(r.Error.Message)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(r.Timestamp))
	buf.Write(ts[:])
	return ethcrypto.Keccak256(buf.Bytes())
}

// Sign signs the response with the device private key.
func (r *Response) Sign(priv *ecdsa.PrivateKey) error {
	sig, err := ethcrypto.Sign(r.digest(), priv)
	if err != nil {
		return fmt.Errorf("failed to sign response: %w", err)
	}
	r.Signature = sig
	return nil
}

// VerifySignature checks the response signature against the compressed
// device public key.
func (r *Response) VerifySignature(devicePubKey []byte) bool {
	if len(r.Signature) < 64 {
		return false
	}
	// drop the recovery id, VerifySignature takes 64-byte signatures
	return ethcrypto.VerifySignature(devicePubKey, r.digest(), r.Signature[:64])
}

// Per-opcode payloads. Encoded as CBOR inside Command.Payload and
// Response.Payload.

// InitResult announces the allocated session and the device identity. The
// session id travels in the payload because the response frame itself still
// echoes the (empty) session of the INIT_SESSION command.
type InitResult struct {
	SessionID    types.HexBytes `cbor:"1,keyasint"`
	DevicePubKey types.HexBytes `cbor:"2,keyasint"`
}

// ScanRequest selects which enrolled subject stands at the scanner. Only
// the simulator uses it; real hardware scans whoever is present.
type ScanRequest struct {
	SubjectRef string `cbor:"1,keyasint"`
}

// ScanResult carries the commitment derived from the fresh scan. The raw
// template never leaves the device.
type ScanResult struct {
	Commitment *types.BigInt `cbor:"1,keyasint"`
}

// VerifyResult reports the identity check and hands out the blind-signing
// session parameters.
type VerifyResult struct {
	Verified    bool           `cbor:"1,keyasint"`
	SignerKey   types.HexBytes `cbor:"2,keyasint"`
	SignerNonce types.HexBytes `cbor:"3,keyasint"`
}

// SignRequest carries the blinded challenge to the device.
type SignRequest struct {
	Blinded types.HexBytes `cbor:"1,keyasint"`
}

// SignResult carries the blinded signature scalar back.
type SignResult struct {
	BlindSig types.HexBytes `cbor:"1,keyasint"`
}

// StatusResult reports the device session state.
type StatusResult struct {
	State      string `cbor:"1,keyasint"`
	EraseCount int    `cbor:"2,keyasint"`
}

// EncodePayload CBOR-encodes an opcode payload.
func EncodePayload(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// DecodePayload CBOR-decodes an opcode payload.
func DecodePayload(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
