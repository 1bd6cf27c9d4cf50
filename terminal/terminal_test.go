package terminal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/biovote/protocol/crypto/blindsig"
	"github.com/biovote/protocol/crypto/ecc/curves"
	"github.com/biovote/protocol/types"
)

func testChannel(t *testing.T) (*SimDevice, *Channel) {
	t.Helper()
	device, err := NewSimDevice()
	qt.Assert(t, err, qt.IsNil)
	ch := NewChannel(device, Config{
		Timeout:      200 * time.Millisecond,
		MaxRetries:   2,
		RetryBackoff: 10 * time.Millisecond,
	})
	ch.SetDevicePubKey(device.DevicePubKey())
	return device, ch
}

func initSession(t *testing.T, ch *Channel) types.HexBytes {
	t.Helper()
	resp, err := ch.Roundtrip(context.Background(), OpInitSession, nil, nil)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, resp.Status, qt.Equals, StatusOK)
	var init InitResult
	qt.Assert(t, DecodePayload(resp.Payload, &init), qt.IsNil)
	return init.SessionID
}

func TestFullDeviceFlow(t *testing.T) {
	c := qt.New(t)
	device, ch := testChannel(t)
	_, err := device.Enroll("alice", []byte("alice fingerprint template"))
	c.Assert(err, qt.IsNil)

	ctx := context.Background()
	sessionID := initSession(t, ch)

	// scan
	payload, err := EncodePayload(&ScanRequest{SubjectRef: "alice"})
	c.Assert(err, qt.IsNil)
	resp, err := ch.Roundtrip(ctx, OpScanBiometric, sessionID, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)
	var scan ScanResult
	c.Assert(DecodePayload(resp.Payload, &scan), qt.IsNil)

	// verify, which also opens the blind-signing session
	resp, err = ch.Roundtrip(ctx, OpVerifyIdentity, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)
	var verify VerifyResult
	c.Assert(DecodePayload(resp.Payload, &verify), qt.IsNil)
	c.Assert(verify.Verified, qt.IsTrue)

	// blind a ballot digest against the signer parameters
	curve, err := curves.New(curves.CurveTypeBN254)
	c.Assert(err, qt.IsNil)
	signerPoint := curve.New()
	c.Assert(signerPoint.Unmarshal(verify.SignerKey), qt.IsNil)
	signerNonce := curve.New()
	c.Assert(signerNonce.Unmarshal(verify.SignerNonce), qt.IsNil)
	pub := &blindsig.PublicKey{Point: signerPoint}

	digest := blindsig.BallotDigest([]byte("ciphertext vector"))
	blinded, bf, err := blindsig.Blind(digest, pub, signerNonce, rand.Reader)
	c.Assert(err, qt.IsNil)

	payload, err = EncodePayload(&SignRequest{Blinded: blinded.Bytes()})
	c.Assert(err, qt.IsNil)
	resp, err = ch.Roundtrip(ctx, OpGenerateSignature, sessionID, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)
	var signed SignResult
	c.Assert(DecodePayload(resp.Payload, &signed), qt.IsNil)

	sig := blindsig.Unblind(new(big.Int).SetBytes(signed.BlindSig), bf)
	c.Assert(blindsig.Verify(digest, sig, pub), qt.IsTrue)

	// submit acknowledgment, then erase
	resp, err = ch.Roundtrip(ctx, OpSubmitVote, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)

	resp, err = ch.Roundtrip(ctx, OpSecureErase, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)
	c.Assert(device.EraseCount(), qt.Equals, 1)

	// erase is idempotent
	_, err = ch.Roundtrip(ctx, OpSecureErase, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(device.EraseCount(), qt.Equals, 1)
}

func TestUnknownSubject(t *testing.T) {
	c := qt.New(t)
	_, ch := testChannel(t)
	sessionID := initSession(t, ch)

	payload, err := EncodePayload(&ScanRequest{SubjectRef: "nobody"})
	c.Assert(err, qt.IsNil)
	resp, err := ch.Roundtrip(context.Background(), OpScanBiometric, sessionID, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusUnauthorized)
}

func TestOutOfOrderCommands(t *testing.T) {
	c := qt.New(t)
	device, ch := testChannel(t)
	_, err := device.Enroll("bob", []byte("bob template"))
	c.Assert(err, qt.IsNil)
	sessionID := initSession(t, ch)

	// signing before scan and verify is an error
	payload, err := EncodePayload(&SignRequest{Blinded: []byte{0x01}})
	c.Assert(err, qt.IsNil)
	resp, err := ch.Roundtrip(context.Background(), OpGenerateSignature, sessionID, payload)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusError)
}

func TestUnknownSession(t *testing.T) {
	c := qt.New(t)
	_, ch := testChannel(t)
	resp, err := ch.Roundtrip(context.Background(), OpGetStatus, types.HexBytes("bogus"), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusUnauthorized)
}

func TestBusyRetry(t *testing.T) {
	c := qt.New(t)
	device, ch := testChannel(t)
	sessionID := initSession(t, ch)

	// two busy answers fit inside the retry budget
	device.BusyNext(2)
	resp, err := ch.Roundtrip(context.Background(), OpGetStatus, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)

	// more busy answers than retries fails with ErrDeviceBusy
	device.BusyNext(10)
	_, err = ch.Roundtrip(context.Background(), OpGetStatus, sessionID, nil)
	c.Assert(errors.Is(err, ErrDeviceBusy), qt.IsTrue)
}

func TestTimeoutRetry(t *testing.T) {
	c := qt.New(t)
	device, ch := testChannel(t)
	sessionID := initSession(t, ch)

	device.DropNext(1)
	resp, err := ch.Roundtrip(context.Background(), OpGetStatus, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)

	device.DropNext(10)
	_, err = ch.Roundtrip(context.Background(), OpGetStatus, sessionID, nil)
	c.Assert(errors.Is(err, ErrTimeout), qt.IsTrue)
}

func TestStaleResponseRejected(t *testing.T) {
	c := qt.New(t)
	device, err := NewSimDevice()
	c.Assert(err, qt.IsNil)

	// a link that tampers with the response nonce
	ch := NewChannel(linkFunc(func(ctx context.Context, cmd *Command) (*Response, error) {
		resp, err := device.Send(ctx, cmd)
		if err != nil {
			return nil, err
		}
		resp.Nonce = append(types.HexBytes{}, resp.Nonce...)
		resp.Nonce[0] ^= 0xff
		return resp, nil
	}), DefaultConfig())
	ch.SetDevicePubKey(device.DevicePubKey())

	_, err = ch.Roundtrip(context.Background(), OpInitSession, nil, nil)
	c.Assert(errors.Is(err, ErrStaleResponse), qt.IsTrue)
}

func TestBadSignatureRejected(t *testing.T) {
	c := qt.New(t)
	device, err := NewSimDevice()
	c.Assert(err, qt.IsNil)

	ch := NewChannel(linkFunc(func(ctx context.Context, cmd *Command) (*Response, error) {
		resp, err := device.Send(ctx, cmd)
		if err != nil {
			return nil, err
		}
		// flip a payload byte after signing
		if len(resp.Payload) > 0 {
			resp.Payload[0] ^= 0xff
		}
		return resp, nil
	}), DefaultConfig())
	ch.SetDevicePubKey(device.DevicePubKey())

	_, err = ch.Roundtrip(context.Background(), OpInitSession, nil, nil)
	c.Assert(errors.Is(err, ErrBadSignature), qt.IsTrue)
}

func TestSingleSessionPerDevice(t *testing.T) {
	c := qt.New(t)
	_, ch := testChannel(t)
	ctx := context.Background()
	sessionID := initSession(t, ch)

	// a second INIT_SESSION while the first is live is refused
	resp, err := ch.Roundtrip(ctx, OpInitSession, nil, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusSessionActive)

	// erasing the live session frees the device for a new one
	resp, err = ch.Roundtrip(ctx, OpSecureErase, sessionID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)
	initSession(t, ch)
}

func TestStatusString(t *testing.T) {
	c := qt.New(t)
	c.Assert(StatusOK.String(), qt.Equals, "OK")
	c.Assert(StatusBusy.String(), qt.Equals, "BUSY")
	c.Assert(StatusUnauthorized.String(), qt.Equals, "UNAUTHORIZED")
	c.Assert(StatusError.String(), qt.Equals, "ERROR")
	c.Assert(StatusSessionActive.String(), qt.Equals, "SESSION_ACTIVE")
	c.Assert(fmt.Sprintf("%s", Status(99)), qt.Equals, "UNKNOWN(99)")
}

func TestResponseTimestampAndError(t *testing.T) {
	c := qt.New(t)
	device, ch := testChannel(t)
	ctx := context.Background()

	before := time.Now().Unix()
	resp, err := ch.Roundtrip(ctx, OpInitSession, nil, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusOK)
	c.Assert(resp.Timestamp >= before, qt.IsTrue)
	c.Assert(resp.Error, qt.IsNil)

	// a failed command carries a structured error detail
	resp, err = ch.Roundtrip(ctx, OpGetStatus, types.HexBytes("bogus"), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Status, qt.Equals, StatusUnauthorized)
	c.Assert(resp.Error, qt.IsNotNil)
	c.Assert(resp.Error.Code, qt.Equals, int(StatusUnauthorized))
	c.Assert(resp.Error.Message, qt.Equals, "UNAUTHORIZED")

	// timestamp and error detail are covered by the device signature
	resp.Timestamp++
	c.Assert(resp.VerifySignature(device.DevicePubKey()), qt.IsFalse)
	resp.Timestamp--
	c.Assert(resp.VerifySignature(device.DevicePubKey()), qt.IsTrue)
	resp.Error.Message = "OK"
	c.Assert(resp.VerifySignature(device.DevicePubKey()), qt.IsFalse)
}

type linkFunc func(ctx context.Context, cmd *Command) (*Response, error)

func (f linkFunc) Send(ctx context.Context, cmd *Command) (*Response, error) {
	return f(ctx, cmd)
}
