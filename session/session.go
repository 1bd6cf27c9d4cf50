package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/biometric"
	"github.com/biovote/protocol/census"
	"github.com/biovote/protocol/crypto/blindsig"
	"github.com/biovote/protocol/crypto/ecc"
	"github.com/biovote/protocol/crypto/ecc/curves"
	"github.com/biovote/protocol/crypto/homomorphic"
	"github.com/biovote/protocol/crypto/zk"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/terminal"
	"github.com/biovote/protocol/types"
)

var (
	// ErrNotEnrolled is returned when the scanned commitment is not in the
	// census of the vote event.
	ErrNotEnrolled = fmt.Errorf("biometric commitment not enrolled in census")
	// ErrIdentityRejected is returned when the terminal refuses the
	// identity verification.
	ErrIdentityRejected = fmt.Errorf("terminal rejected identity verification")
	// ErrSignatureInvalid is returned when the unblinded terminal
	// signature fails to verify.
	ErrSignatureInvalid = fmt.Errorf("unblinded terminal signature does not verify")
	// ErrBadOption is returned for an option index outside the ballot.
	ErrBadOption = fmt.Errorf("option index outside the ballot definition")
)

// Config wires the orchestrator to its collaborators.
type Config struct {
	Store    *ledger.Store
	Registry *census.Registry
	Setup    *zk.TrustedSetup
	// SchemeName selects the homomorphic backend for ballot encryption.
	SchemeName string
	// Terminal tunes the device channel retry behavior.
	Terminal terminal.Config
	// Production requires ceremony-backed proving keys and rejects
	// development-level proofs at the ledger gate.
	Production bool
}

// Orchestrator drives voting sessions against a terminal, the census, the
// eligibility prover and the ledger.
type Orchestrator struct {
	cfg    Config
	scheme homomorphic.Scheme
}

// NewOrchestrator validates the wiring and installs the submission verifier
// on the ledger store. In production mode a development trusted setup is
// refused outright.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Production {
		if err := cfg.Setup.RequireAudited(); err != nil {
			return nil, err
		}
	}
	scheme, err := homomorphic.New(cfg.SchemeName)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{cfg: cfg, scheme: scheme}
	cfg.Store.SetVerifier(NewVerifier(cfg.Setup, cfg.Production))
	return o, nil
}

// NewVerifier builds the ledger-side submission verifier: it decodes the
// eligibility proof, enforces the security-level gate and verifies the proof
// against the public inputs carried by the bundle.
func NewVerifier(setup *zk.TrustedSetup, production bool) ledger.Verifier {
	return func(_ *ledger.StoredEvent, bundle *types.SubmissionBundle) error {
		var proof zk.Proof
		if err := cbor.Unmarshal(bundle.Proof, &proof); err != nil {
			return fmt.Errorf("failed to decode eligibility proof: %w", err)
		}
		if production && proof.Level != zk.LevelAudited {
			return zk.ErrInsecureSetup
		}
		pub := &zk.PublicInputs{
			Root:         bundle.Root.MathBigInt(),
			Nullifier:    bundle.Nullifier.MathBigInt(),
			VoteEventID:  eventIDToField(bundle.VoteEventID),
			BallotDigest: bundle.BallotDigest.MathBigInt(),
			Timestamp:    uint64(bundle.Timestamp),
		}
		return zk.VerifyProof(setup, &proof, pub)
	}
}

// Session is the host-side state of one voting session. All secrets the
// session accumulates are zeroized exactly once, before the session becomes
// visibly terminal.
type Session struct {
	ID          types.HexBytes
	VoteEventID types.HexBytes

	mu          sync.Mutex
	state       State
	channel     *terminal.Channel
	commitment  *big.Int
	pseudonym   *big.Int
	signerPub   *blindsig.PublicKey
	signerNonce ecc.Point
	blinding    *blindsig.BlindingFactor

	finalizeOnce sync.Once
}

// Pseudonym returns the opaque voter handle derived at authentication. It is
// the only voter identifier the session exposes and it survives zeroization,
// since it cannot be inverted back to the commitment.
func (s *Session) Pseudonym() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pseudonym
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// step advances the lifecycle under the session lock.
func (s *Session) step(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Step(s.state, event)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// zeroize wipes session secrets under the session lock.
func (s *Session) zeroize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitment != nil {
		s.commitment.SetInt64(0)
		s.commitment = nil
	}
	if s.blinding != nil {
		s.blinding.Alpha.SetInt64(0)
		s.blinding.Beta.SetInt64(0)
		s.blinding = nil
	}
	s.signerPub = nil
	s.signerNonce = nil
}

// Connect opens a session on the terminal for a vote event.
func (o *Orchestrator) Connect(ctx context.Context, link terminal.Link, voteEventID types.HexBytes) (*Session, error) {
	ch := terminal.NewChannel(link, o.cfg.Terminal)
	resp, err := ch.Roundtrip(ctx, terminal.OpInitSession, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init terminal session: %w", err)
	}
	if resp.Status == terminal.StatusSessionActive {
		return nil, terminal.ErrSessionActive
	}
	if resp.Status != terminal.StatusOK {
		return nil, fmt.Errorf("terminal refused session: %s", resp.Status)
	}
	var init terminal.InitResult
	if err := terminal.DecodePayload(resp.Payload, &init); err != nil {
		return nil, fmt.Errorf("failed to decode init result: %w", err)
	}
	// the init response is verified retroactively with the announced key;
	// every later response is checked by the channel
	if !resp.VerifySignature(init.DevicePubKey) {
		return nil, terminal.ErrBadSignature
	}
	ch.SetDevicePubKey(init.DevicePubKey)

	s := &Session{
		ID:          init.SessionID,
		VoteEventID: voteEventID,
		state:       StateIdle,
		channel:     ch,
	}
	if err := s.step(EventConnect); err != nil {
		return nil, err
	}
	log.Debugw("terminal session opened", "session", s.ID.String())
	return s, nil
}

// Authenticate runs the biometric scan and identity verification. The
// scanned commitment must be enrolled in the census of the session's vote
// event.
func (o *Orchestrator) Authenticate(ctx context.Context, s *Session, subjectRef string) error {
	payload, err := terminal.EncodePayload(&terminal.ScanRequest{SubjectRef: subjectRef})
	if err != nil {
		return err
	}
	resp, err := s.channel.Roundtrip(ctx, terminal.OpScanBiometric, s.ID, payload)
	if err != nil {
		return o.abort(ctx, s, err)
	}
	if resp.Status != terminal.StatusOK {
		return o.abort(ctx, s, fmt.Errorf("biometric scan failed with status %d", resp.Status))
	}
	var scan terminal.ScanResult
	if err := terminal.DecodePayload(resp.Payload, &scan); err != nil {
		return o.abort(ctx, s, err)
	}
	if err := s.step(EventScan); err != nil {
		return err
	}

	cens, err := o.cfg.Registry.Load(s.VoteEventID)
	if err != nil {
		return o.abort(ctx, s, err)
	}
	commitment := scan.Commitment.MathBigInt()
	if !cens.Has(commitment) {
		return o.abort(ctx, s, ErrNotEnrolled)
	}

	resp, err = s.channel.Roundtrip(ctx, terminal.OpVerifyIdentity, s.ID, nil)
	if err != nil {
		return o.abort(ctx, s, err)
	}
	var verify terminal.VerifyResult
	if err := terminal.DecodePayload(resp.Payload, &verify); err != nil {
		return o.abort(ctx, s, err)
	}
	if resp.Status != terminal.StatusOK || !verify.Verified {
		return o.abort(ctx, s, ErrIdentityRejected)
	}

	curve, err := curves.New(curves.CurveTypeBN254)
	if err != nil {
		return o.abort(ctx, s, err)
	}
	signerPoint := curve.New()
	if err := signerPoint.Unmarshal(verify.SignerKey); err != nil {
		return o.abort(ctx, s, fmt.Errorf("invalid signer key: %w", err))
	}
	signerNonce := curve.New()
	if err := signerNonce.Unmarshal(verify.SignerNonce); err != nil {
		return o.abort(ctx, s, fmt.Errorf("invalid signer nonce: %w", err))
	}

	pseudonym, err := biometric.Pseudonym(commitment, s.VoteEventID)
	if err != nil {
		return o.abort(ctx, s, err)
	}

	s.mu.Lock()
	s.commitment = commitment
	s.pseudonym = pseudonym
	s.signerPub = &blindsig.PublicKey{Point: signerPoint}
	s.signerNonce = signerNonce
	s.mu.Unlock()

	if err := s.step(EventVerify); err != nil {
		return err
	}
	log.Debugw("identity verified", "session", s.ID.String(), "pseudonym", pseudonym.String())
	return nil
}

// CastVote encrypts the chosen option, obtains the blind terminal signature
// and the eligibility proof, and submits the bundle to the ledger. The
// terminal is securely erased before the session reaches a terminal state,
// whether the submission succeeded or not.
func (o *Orchestrator) CastVote(ctx context.Context, s *Session, optionIndex int) (*types.SubmissionBundle, error) {
	event, err := o.cfg.Store.VoteEvent(s.VoteEventID)
	if err != nil {
		return nil, o.abort(ctx, s, err)
	}
	if optionIndex < 0 || optionIndex >= len(event.Definition.Options) {
		return nil, o.abort(ctx, s, ErrBadOption)
	}
	if err := s.step(EventSelect); err != nil {
		return nil, err
	}
	envelope := &types.BallotEnvelope{
		VoteEventID: s.VoteEventID,
		OptionIndex: optionIndex,
		SessionID:   s.ID,
		Timestamp:   time.Now().Unix(),
	}

	tallyKey, err := event.DecodeTallyKey()
	if err != nil {
		return nil, o.abort(ctx, s, err)
	}

	// one ciphertext per option: the chosen one encrypts one, the rest zero
	ciphertexts := make([]types.HexBytes, len(event.Definition.Options))
	var digestInput []byte
	for i := range ciphertexts {
		m := big.NewInt(0)
		if i == envelope.OptionIndex {
			m = big.NewInt(1)
		}
		ct, err := o.scheme.Encrypt(tallyKey, m, rand.Reader)
		if err != nil {
			return nil, o.abort(ctx, s, err)
		}
		blob, err := cbor.Marshal(ct)
		if err != nil {
			return nil, o.abort(ctx, s, err)
		}
		ciphertexts[i] = blob
		digestInput = append(digestInput, blob...)
	}
	digest := blindsig.BallotDigest(digestInput)

	// blind the digest and have the terminal sign it unseen
	s.mu.Lock()
	signerPub, signerNonce := s.signerPub, s.signerNonce
	s.mu.Unlock()
	blinded, blinding, err := blindsig.Blind(digest, signerPub, signerNonce, rand.Reader)
	if err != nil {
		return nil, o.abort(ctx, s, err)
	}
	s.mu.Lock()
	s.blinding = blinding
	s.mu.Unlock()

	payload, err := terminal.EncodePayload(&terminal.SignRequest{Blinded: blinded.Bytes()})
	if err != nil {
		return nil, o.abort(ctx, s, err)
	}
	resp, err := s.channel.Roundtrip(ctx, terminal.OpGenerateSignature, s.ID, payload)
	if err != nil {
		return nil, o.abort(ctx, s, err)
	}
	if resp.Status != terminal.StatusOK {
		return nil, o.abort(ctx, s, fmt.Errorf("terminal refused signing with status %d", resp.Status))
	}
	var signed terminal.SignResult
	if err := terminal.DecodePayload(resp.Payload, &signed); err != nil {
		return nil, o.abort(ctx, s, err)
	}
	if err := s.step(EventSign); err != nil {
		return nil, err
	}

	sig := blindsig.Unblind(new(big.Int).SetBytes(signed.BlindSig), blinding)
	if !blindsig.Verify(digest, sig, signerPub) {
		return nil, o.abort(ctx, s, ErrSignatureInvalid)
	}

	bundle, err := o.buildBundle(s, event, envelope, ciphertexts, digest, sig)
	if err != nil {
		return nil, o.abort(ctx, s, err)
	}
	if err := o.cfg.Store.SubmitVote(bundle); err != nil {
		return nil, o.abort(ctx, s, err)
	}
	if err := s.step(EventSubmit); err != nil {
		return nil, err
	}

	// acknowledge on the terminal display, then erase and complete
	if _, err := s.channel.Roundtrip(ctx, terminal.OpSubmitVote, s.ID, nil); err != nil {
		log.Warnw("vote recorded but terminal acknowledgment failed",
			"session", s.ID.String(), "err", err)
	}
	o.finalize(ctx, s, EventComplete)
	return bundle, nil
}

// buildBundle derives the eligibility proof and assembles the submission
// from the envelope.
func (o *Orchestrator) buildBundle(s *Session, event *ledger.StoredEvent, envelope *types.BallotEnvelope, ciphertexts []types.HexBytes, digest *big.Int, sig *blindsig.Signature) (*types.SubmissionBundle, error) {
	s.mu.Lock()
	commitment := s.commitment
	s.mu.Unlock()

	cens, err := o.cfg.Registry.Load(s.VoteEventID)
	if err != nil {
		return nil, err
	}
	leaves, err := cens.Leaves()
	if err != nil {
		return nil, err
	}
	index := -1
	for i, leaf := range leaves {
		if leaf.Cmp(commitment) == 0 {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrNotEnrolled
	}
	merkleProof, err := zk.GenerateMerkleProof(leaves, index, o.cfg.Setup.Levels)
	if err != nil {
		return nil, err
	}

	nullifier := blindsig.Nullifier(commitment, s.VoteEventID)
	witness := &zk.Witness{
		PublicInputs: zk.PublicInputs{
			Root:         merkleProof.Root,
			Nullifier:    nullifier,
			VoteEventID:  eventIDToField(s.VoteEventID),
			BallotDigest: digest,
			Timestamp:    uint64(envelope.Timestamp),
		},
		Commitment: commitment,
		Proof:      merkleProof,
	}
	proof, err := zk.GenerateProof(o.cfg.Setup, witness)
	if err != nil {
		return nil, err
	}
	proofBlob, err := cbor.Marshal(proof)
	if err != nil {
		return nil, err
	}

	return &types.SubmissionBundle{
		VoteEventID:  s.VoteEventID,
		Ciphertexts:  ciphertexts,
		Scheme:       o.scheme.Name(),
		TallyKey:     event.TallyKey,
		BallotDigest: (*types.BigInt)(digest),
		Signature:    sig.Bytes(),
		Nullifier:    (*types.BigInt)(nullifier),
		Proof:        proofBlob,
		Root:         (*types.BigInt)(merkleProof.Root),
		Anonymous:    true,
		Timestamp:    envelope.Timestamp,
	}, nil
}

// Abort erases the terminal and fails the session. It is safe to call more
// than once and after completion; only the first finalization acts.
func (o *Orchestrator) Abort(ctx context.Context, s *Session) {
	o.finalize(ctx, s, EventFail)
}

// abort fails the session and returns the causing error.
func (o *Orchestrator) abort(ctx context.Context, s *Session, cause error) error {
	log.Warnw("voting session aborted", "session", s.ID.String(), "err", cause)
	o.finalize(ctx, s, EventFail)
	return cause
}

// finalize performs the one-shot session teardown: secure erase on the
// terminal, zeroization of host-side secrets, and only then the transition
// into the terminal state.
func (o *Orchestrator) finalize(ctx context.Context, s *Session, event Event) {
	s.finalizeOnce.Do(func() {
		if _, err := s.channel.Roundtrip(ctx, terminal.OpSecureErase, s.ID, nil); err != nil {
			log.Errorw(err, "secure erase failed on session "+s.ID.String())
		}
		s.zeroize()
		if err := s.step(event); err != nil {
			// the lifecycle may be mid-step, force the terminal state
			s.mu.Lock()
			if event == EventComplete {
				s.state = StateCompleted
			} else {
				s.state = StateFailed
			}
			s.mu.Unlock()
		}
	})
}

// eventIDToField reduces a vote event id into the proof scalar field.
func eventIDToField(voteEventID types.HexBytes) *big.Int {
	return ecc.BigToFF(fr.Modulus(), new(big.Int).SetBytes(voteEventID))
}
