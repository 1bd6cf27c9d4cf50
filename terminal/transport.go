package terminal

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/biovote/protocol/types"
	"github.com/biovote/protocol/util"
)

var (
	// ErrTimeout is returned when the device does not answer in time.
	ErrTimeout = fmt.Errorf("terminal did not respond within the timeout")
	// ErrDeviceBusy is returned when the device keeps reporting busy after
	// all retries.
	ErrDeviceBusy = fmt.Errorf("terminal busy")
	// ErrStaleResponse is returned when a response does not match the
	// session and nonce of the command it answers.
	ErrStaleResponse = fmt.Errorf("response does not match command session and nonce")
	// ErrBadSignature is returned when a response signature fails to
	// verify against the device key.
	ErrBadSignature = fmt.Errorf("invalid device signature on response")
	// ErrSessionActive is returned when the device refuses INIT_SESSION
	// because another session is still live on it.
	ErrSessionActive = fmt.Errorf("terminal already has an active session")
)

// Link is the raw transport to a terminal device: one command in, one
// response out. Implementations block until the device answers or ctx is
// done.
type Link interface {
	Send(ctx context.Context, cmd *Command) (*Response, error)
}

// Config tunes the channel retry behavior.
type Config struct {
	// Timeout bounds each individual command round-trip.
	Timeout time.Duration
	// MaxRetries is how many times a timed-out or busy command is
	// reissued before giving up.
	MaxRetries int
	// RetryBackoff is the pause between retries.
	RetryBackoff time.Duration
}

// DefaultConfig returns the retry configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Timeout:      2 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// Channel is a validated command channel over a Link. Every response is
// checked for session and nonce freshness and for a valid device signature
// before it reaches the caller.
type Channel struct {
	link         Link
	cfg          Config
	devicePubKey types.HexBytes
}

// NewChannel wraps a link. The device public key may be empty at first and
// learned from the INIT_SESSION response.
func NewChannel(link Link, cfg Config) *Channel {
	if cfg.Timeout == 0 {
		cfg = DefaultConfig()
	}
	return &Channel{link: link, cfg: cfg}
}

// SetDevicePubKey pins the device key used to verify response signatures.
func (ch *Channel) SetDevicePubKey(pub types.HexBytes) {
	ch.devicePubKey = pub
}

// Roundtrip sends a command with a fresh nonce and returns the validated
// response. Timed-out and busy exchanges are retried up to the configured
// limit; a stale or badly signed response fails immediately, since it means
// the transport is compromised rather than slow.
func (ch *Channel) Roundtrip(ctx context.Context, opcode Opcode, sessionID types.HexBytes, payload []byte) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= ch.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(ch.cfg.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		cmd := &Command{
			Opcode:    opcode,
			SessionID: sessionID,
			Nonce:     util.RandomBytes(types.SessionNonceSize),
			Payload:   payload,
		}
		resp, err := ch.exchange(ctx, cmd)
		switch {
		case err == nil && resp.Status == StatusBusy:
			lastErr = ErrDeviceBusy
			continue
		case err == nil:
			return resp, nil
		case err == ErrTimeout:
			lastErr = err
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", lastErr, ch.cfg.MaxRetries+1)
}

// exchange performs one validated round-trip.
func (ch *Channel) exchange(ctx context.Context, cmd *Command) (*Response, error) {
	tctx, cancel := context.WithTimeout(ctx, ch.cfg.Timeout)
	defer cancel()

	resp, err := ch.link.Send(tctx, cmd)
	if err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, err
	}

	// a response for another session or an old nonce is a replay
	if !bytes.Equal(resp.SessionID, cmd.SessionID) || !bytes.Equal(resp.Nonce, cmd.Nonce) {
		return nil, ErrStaleResponse
	}
	if len(ch.devicePubKey) > 0 && !resp.VerifySignature(ch.devicePubKey) {
		return nil, ErrBadSignature
	}
	return resp, nil
}
