package zk

import (
	"fmt"
	"io"
	"time"

	gecc "github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// SecurityLevel classifies the provenance of a trusted setup.
type SecurityLevel string

const (
	// LevelDevelopment marks keys generated in-process with no ceremony.
	// Proofs under such keys are forgeable by whoever ran the setup and
	// must never gate a production tally.
	LevelDevelopment SecurityLevel = "development"
	// LevelAudited marks keys from a multi-party ceremony with a
	// published transcript and an independent audit.
	LevelAudited SecurityLevel = "audited"
)

// ErrInsecureSetup is returned when a development setup reaches a context
// that requires ceremony-backed keys.
var ErrInsecureSetup = fmt.Errorf("trusted setup is not ceremony-backed")

// CeremonyInfo documents the multi-party ceremony behind an audited setup.
type CeremonyInfo struct {
	Participants   []string  `json:"participants"`
	TranscriptHash []byte    `json:"transcriptHash"`
	AuditReport    string    `json:"auditReport"`
	CompletedAt    time.Time `json:"completedAt"`
}

// Validate checks that the ceremony record is complete enough to trust.
func (ci *CeremonyInfo) Validate() error {
	if ci == nil {
		return fmt.Errorf("missing ceremony record")
	}
	if len(ci.Participants) < 1 {
		return fmt.Errorf("ceremony needs at least one participant")
	}
	if len(ci.TranscriptHash) == 0 {
		return fmt.Errorf("ceremony transcript hash is empty")
	}
	if ci.AuditReport == "" {
		return fmt.Errorf("ceremony has no audit report")
	}
	if ci.CompletedAt.IsZero() {
		return fmt.Errorf("ceremony completion time is unset")
	}
	return nil
}

// TrustedSetup bundles the compiled circuit with its Groth16 keys and the
// provenance of those keys.
type TrustedSetup struct {
	Level    SecurityLevel
	Ceremony *CeremonyInfo
	Levels   int

	ConstraintSystem constraint.ConstraintSystem
	ProvingKey       groth16.ProvingKey
	VerifyingKey     groth16.VerifyingKey
}

// NewDevelopmentSetup compiles the eligibility circuit for the given tree
// depth and runs an in-process Groth16 setup. The result is always flagged
// LevelDevelopment.
func NewDevelopmentSetup(levels int) (*TrustedSetup, error) {
	ccs, err := frontend.Compile(gecc.BN254.ScalarField(), r1cs.NewBuilder, NewEligibilityCircuit(levels))
	if err != nil {
		return nil, fmt.Errorf("failed to compile eligibility circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("failed to run groth16 setup: %w", err)
	}
	return &TrustedSetup{
		Level:            LevelDevelopment,
		Levels:           levels,
		ConstraintSystem: ccs,
		ProvingKey:       pk,
		VerifyingKey:     vk,
	}, nil
}

// LoadAuditedSetup compiles the circuit and loads ceremony-produced keys
// from the given readers, validating the ceremony record first.
func LoadAuditedSetup(levels int, ceremony *CeremonyInfo, pkReader, vkReader io.Reader) (*TrustedSetup, error) {
	if err := ceremony.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ceremony record: %w", err)
	}
	ccs, err := frontend.Compile(gecc.BN254.ScalarField(), r1cs.NewBuilder, NewEligibilityCircuit(levels))
	if err != nil {
		return nil, fmt.Errorf("failed to compile eligibility circuit: %w", err)
	}
	pk := groth16.NewProvingKey(gecc.BN254)
	if _, err := pk.ReadFrom(pkReader); err != nil {
		return nil, fmt.Errorf("failed to read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(gecc.BN254)
	if _, err := vk.ReadFrom(vkReader); err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}
	return &TrustedSetup{
		Level:            LevelAudited,
		Ceremony:         ceremony,
		Levels:           levels,
		ConstraintSystem: ccs,
		ProvingKey:       pk,
		VerifyingKey:     vk,
	}, nil
}

// RequireAudited gates production contexts on ceremony-backed keys.
func (ts *TrustedSetup) RequireAudited() error {
	if ts.Level != LevelAudited {
		return ErrInsecureSetup
	}
	return nil
}
