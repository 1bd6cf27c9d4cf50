package terminal

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/biovote/protocol/biometric"
	"github.com/biovote/protocol/crypto/blindsig"
	"github.com/biovote/protocol/crypto/ecc/curves"
	"github.com/biovote/protocol/types"
	"github.com/biovote/protocol/util"
)

// deviceState is the simulator's session lifecycle.
type deviceState string

const (
	stateSession   deviceState = "session"
	stateScanned   deviceState = "scanned"
	stateVerified  deviceState = "verified"
	stateSigned    deviceState = "signed"
	stateSubmitted deviceState = "submitted"
	stateErased    deviceState = "erased"
)

// enrollment is one subject known to the simulated scanner.
type enrollment struct {
	template   []byte
	salt       []byte
	commitment *big.Int
}

// simSession is the device-side state of one voting session.
type simSession struct {
	state      deviceState
	commitment *big.Int
	signerKey  *blindsig.PrivateKey
	signer     *blindsig.SignerSession
}

// SimDevice is an in-process terminal used by tests and local development.
// It behaves like the hardware: templates stay inside, responses are signed
// with the device key, and SECURE_ERASE wipes session secrets.
type SimDevice struct {
	mu         sync.Mutex
	key        *ecdsa.PrivateKey
	enrolled   map[string]*enrollment
	sessions   map[string]*simSession
	eraseCount int

	// fault injection
	busyNext int
	dropNext int
}

// NewSimDevice creates a simulator with a fresh device key.
func NewSimDevice() (*SimDevice, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}
	return &SimDevice{
		key:      key,
		enrolled: make(map[string]*enrollment),
		sessions: make(map[string]*simSession),
	}, nil
}

// DevicePubKey returns the compressed device public key.
func (d *SimDevice) DevicePubKey() types.HexBytes {
	return ethcrypto.CompressPubkey(&d.key.PublicKey)
}

// Enroll registers a subject with the scanner and returns the census
// commitment derived from the template.
func (d *SimDevice) Enroll(subjectRef string, template []byte) (*big.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// keep a copy, Commit zeroizes its argument
	stored := make([]byte, len(template))
	copy(stored, template)

	commitment, err := biometric.Commit(template, rand.Reader)
	if err != nil {
		return nil, err
	}
	d.enrolled[subjectRef] = &enrollment{
		template:   stored,
		salt:       commitment.Salt,
		commitment: commitment.Value,
	}
	return commitment.Value, nil
}

// EraseCount returns how many SECURE_ERASE commands completed.
func (d *SimDevice) EraseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eraseCount
}

// BusyNext makes the next n commands answer StatusBusy.
func (d *SimDevice) BusyNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busyNext = n
}

// DropNext makes the next n commands hang until the caller's deadline.
func (d *SimDevice) DropNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropNext = n
}

// Send implements Link.
func (d *SimDevice) Send(ctx context.Context, cmd *Command) (*Response, error) {
	d.mu.Lock()
	if d.dropNext > 0 {
		d.dropNext--
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.busyNext > 0 {
		d.busyNext--
		d.mu.Unlock()
		return d.respond(cmd, StatusBusy, nil)
	}
	d.mu.Unlock()

	return d.execute(cmd)
}

func (d *SimDevice) execute(cmd *Command) (*Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cmd.Opcode == OpInitSession {
		// one active session per device: a session is live until it has
		// been securely erased or shut down
		for _, sess := range d.sessions {
			if sess.state != stateErased {
				return d.respond(cmd, StatusSessionActive, nil)
			}
		}
		sessionID := util.RandomBytes(16)
		d.sessions[string(sessionID)] = &simSession{state: stateSession}
		return d.respond(cmd, StatusOK, &InitResult{
			SessionID:    sessionID,
			DevicePubKey: d.DevicePubKey(),
		})
	}

	sess, ok := d.sessions[string(cmd.SessionID)]
	if !ok {
		return d.respond(cmd, StatusUnauthorized, nil)
	}

	switch cmd.Opcode {
	case OpScanBiometric:
		if sess.state != stateSession {
			return d.respond(cmd, StatusError, nil)
		}
		var req ScanRequest
		if err := DecodePayload(cmd.Payload, &req); err != nil {
			return d.respond(cmd, StatusError, nil)
		}
		enr, ok := d.enrolled[req.SubjectRef]
		if !ok {
			return d.respond(cmd, StatusUnauthorized, nil)
		}
		// a fresh scan reads the template again and re-derives the
		// commitment with the enrollment salt
		scan := make([]byte, len(enr.template))
		copy(scan, enr.template)
		commitment, err := biometric.Recommit(scan, enr.salt)
		if err != nil {
			return d.respond(cmd, StatusError, nil)
		}
		sess.commitment = commitment.Value
		sess.state = stateScanned
		return d.respond(cmd, StatusOK, &ScanResult{
			Commitment: (*types.BigInt)(commitment.Value),
		})

	case OpVerifyIdentity:
		if sess.state != stateScanned {
			return d.respond(cmd, StatusError, nil)
		}
		verified := false
		for _, enr := range d.enrolled {
			if enr.commitment.Cmp(sess.commitment) == 0 {
				verified = true
				break
			}
		}
		if !verified {
			return d.respond(cmd, StatusUnauthorized, &VerifyResult{Verified: false})
		}
		curve, err := curves.New(curves.CurveTypeBN254)
		if err != nil {
			return nil, err
		}
		sess.signerKey, err = blindsig.GenerateKey(curve, rand.Reader)
		if err != nil {
			return d.respond(cmd, StatusError, nil)
		}
		sess.signer, err = blindsig.NewSignerSession(sess.signerKey, rand.Reader)
		if err != nil {
			return d.respond(cmd, StatusError, nil)
		}
		sess.state = stateVerified
		return d.respond(cmd, StatusOK, &VerifyResult{
			Verified:    true,
			SignerKey:   sess.signerKey.Public().Bytes(),
			SignerNonce: sess.signer.PublicNonce().Marshal(),
		})

	case OpGenerateSignature:
		if sess.state != stateVerified {
			return d.respond(cmd, StatusError, nil)
		}
		var req SignRequest
		if err := DecodePayload(cmd.Payload, &req); err != nil {
			return d.respond(cmd, StatusError, nil)
		}
		blinded := &blindsig.BlindedMessage{C: new(big.Int).SetBytes(req.Blinded)}
		blindS, err := sess.signer.Sign(sess.signerKey, blinded)
		if err != nil {
			return d.respond(cmd, StatusError, nil)
		}
		sess.state = stateSigned
		return d.respond(cmd, StatusOK, &SignResult{BlindSig: blindS.Bytes()})

	case OpSubmitVote:
		if sess.state != stateSigned {
			return d.respond(cmd, StatusError, nil)
		}
		sess.state = stateSubmitted
		return d.respond(cmd, StatusOK, nil)

	case OpGetStatus:
		return d.respond(cmd, StatusOK, &StatusResult{
			State:      string(sess.state),
			EraseCount: d.eraseCount,
		})

	case OpSecureErase:
		// idempotent: a second erase is a no-op that still reports OK
		if sess.state != stateErased {
			if sess.commitment != nil {
				sess.commitment.SetInt64(0)
				sess.commitment = nil
			}
			if sess.signerKey != nil {
				sess.signerKey.D.SetInt64(0)
				sess.signerKey = nil
			}
			sess.signer = nil
			sess.state = stateErased
			d.eraseCount++
		}
		return d.respond(cmd, StatusOK, nil)

	case OpShutdown:
		delete(d.sessions, string(cmd.SessionID))
		return d.respond(cmd, StatusOK, nil)

	default:
		return d.respond(cmd, StatusError, nil)
	}
}

// respond builds and signs a response echoing the command session and nonce.
func (d *SimDevice) respond(cmd *Command, status Status, payload any) (*Response, error) {
	var body []byte
	var err error
	if payload != nil {
		body, err = EncodePayload(payload)
		if err != nil {
			return nil, err
		}
	}
	resp := &Response{
		Opcode:    cmd.Opcode,
		SessionID: cmd.SessionID,
		Nonce:     cmd.Nonce,
		Status:    status,
		Payload:   body,
		Timestamp: time.Now().Unix(),
	}
	if status != StatusOK {
		resp.Error = &ResponseError{Code: int(status), Message: status.String()}
	}
	if err := resp.Sign(d.key); err != nil {
		return nil, err
	}
	return resp, nil
}
