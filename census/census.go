// Package census keeps the per-event voter registry: an arbo Merkle tree of
// biometric commitments plus an insertion-ordered leaf log. The tree gives a
// compact published root, the log gives the eligibility prover the exact
// leaf ordering it needs to rebuild membership paths.
package census

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/biovote/protocol/types"
)

const (
	censusDBreferencePrefix = "cr_"
	censusDBtreePrefix      = "ct_"
	censusDBleafPrefix      = "cl_"
)

var (
	// ErrCensusNotFound is returned when a census is not in the database.
	ErrCensusNotFound = fmt.Errorf("census not found in the local database")
	// ErrCensusAlreadyExists is returned by New if the census exists.
	ErrCensusAlreadyExists = fmt.Errorf("census already exists in the local database")
	// ErrAlreadyEnrolled is returned when a commitment is added twice.
	ErrAlreadyEnrolled = fmt.Errorf("commitment already enrolled in census")

	defaultHashFunction = arbo.HashFunctionPoseidon
)

// censusRef is the durable metadata of one census.
type censusRef struct {
	VoteEventID types.HexBytes
	MaxLevels   int
	HashType    string
	CreatedAt   time.Time
}

// Registry is a safe and persistent database of census trees, one per vote
// event.
type Registry struct {
	mu     sync.RWMutex
	db     db.Database
	loaded map[string]*Census
}

// NewRegistry creates a census registry on top of the given database.
func NewRegistry(database db.Database) *Registry {
	return &Registry{
		db:     database,
		loaded: make(map[string]*Census),
	}
}

// New creates the census for a vote event. It returns
// ErrCensusAlreadyExists if one is already present.
func (r *Registry) New(voteEventID types.HexBytes) (*Census, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := refKey(voteEventID)
	if _, exists := r.loaded[voteEventID.String()]; exists {
		return nil, ErrCensusAlreadyExists
	}
	if _, err := r.db.Get(key); err == nil {
		return nil, ErrCensusAlreadyExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}

	ref := &censusRef{
		VoteEventID: voteEventID,
		MaxLevels:   types.CensusTreeMaxLevels,
		HashType:    string(defaultHashFunction.Type()),
		CreatedAt:   time.Now(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ref); err != nil {
		return nil, err
	}
	wtx := r.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(key, buf.Bytes()); err != nil {
		return nil, err
	}
	if err := wtx.Commit(); err != nil {
		return nil, err
	}

	census, err := r.open(ref)
	if err != nil {
		return nil, err
	}
	r.loaded[voteEventID.String()] = census
	return census, nil
}

// Load returns the census for a vote event, opening it from the database if
// needed. It returns ErrCensusNotFound for unknown events.
func (r *Registry) Load(voteEventID types.HexBytes) (*Census, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if census, exists := r.loaded[voteEventID.String()]; exists {
		return census, nil
	}
	b, err := r.db.Get(refKey(voteEventID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrCensusNotFound
	} else if err != nil {
		return nil, err
	}
	var ref censusRef
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&ref); err != nil {
		return nil, err
	}
	census, err := r.open(&ref)
	if err != nil {
		return nil, err
	}
	r.loaded[voteEventID.String()] = census
	return census, nil
}

// open builds the in-memory census handle from its reference.
func (r *Registry) open(ref *censusRef) (*Census, error) {
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(r.db, treePrefix(ref.VoteEventID)),
		MaxLevels:    ref.MaxLevels,
		HashFunction: defaultHashFunction,
	})
	if err != nil {
		return nil, err
	}
	return &Census{
		voteEventID: ref.VoteEventID,
		tree:        tree,
		leafLog:     prefixeddb.NewPrefixedDatabase(r.db, leafPrefix(ref.VoteEventID)),
	}, nil
}

func refKey(voteEventID types.HexBytes) []byte {
	return append([]byte(censusDBreferencePrefix), voteEventID...)
}

func treePrefix(voteEventID types.HexBytes) []byte {
	return append([]byte(censusDBtreePrefix), voteEventID...)
}

func leafPrefix(voteEventID types.HexBytes) []byte {
	return append([]byte(censusDBleafPrefix), voteEventID...)
}

// Census is the enrollment tree of one vote event.
type Census struct {
	mu          sync.RWMutex
	voteEventID types.HexBytes
	tree        *arbo.Tree
	leafLog     db.Database
}

var leafCountKey = []byte("n")

// treeKey derives the arbo key for a commitment: the hash truncated to the
// key length the tree depth allows.
func (c *Census) treeKey(commitment *big.Int) ([]byte, error) {
	value := make([]byte, 32)
	commitment.FillBytes(value)
	hash, err := defaultHashFunction.Hash(value)
	if err != nil {
		return nil, err
	}
	length := types.CensusTreeMaxLevels / 8
	if len(hash) < length {
		panic("hash function output is too short, maxlevels is too high")
	}
	return hash[:length], nil
}

// AddCommitment enrolls a biometric commitment. The commitment joins both
// the Merkle tree and the ordered leaf log. Double enrollment returns
// ErrAlreadyEnrolled.
func (c *Census) AddCommitment(commitment *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.treeKey(commitment)
	if err != nil {
		return err
	}
	if _, _, err := c.tree.Get(key); err == nil {
		return ErrAlreadyEnrolled
	}

	value := make([]byte, 32)
	commitment.FillBytes(value)
	if err := c.tree.Add(key, value); err != nil {
		return fmt.Errorf("failed to add commitment to census tree: %w", err)
	}

	count, err := c.size()
	if err != nil {
		return err
	}
	wtx := c.leafLog.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(leafKey(count), value); err != nil {
		return err
	}
	countBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(countBuf, count+1)
	if err := wtx.Set(leafCountKey, countBuf); err != nil {
		return err
	}
	return wtx.Commit()
}

// Has reports whether a commitment is enrolled.
func (c *Census) Has(commitment *big.Int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, err := c.treeKey(commitment)
	if err != nil {
		return false
	}
	_, _, err = c.tree.Get(key)
	return err == nil
}

// Root returns the current Merkle root of the census tree.
func (c *Census) Root() (types.HexBytes, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	root, err := c.tree.Root()
	return types.HexBytes(root), err
}

// Size returns the number of enrolled commitments.
func (c *Census) Size() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size()
}

// Leaves returns the enrolled commitments in insertion order. This is the
// snapshot the eligibility prover derives membership paths from.
func (c *Census) Leaves() ([]*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count, err := c.size()
	if err != nil {
		return nil, err
	}
	leaves := make([]*big.Int, count)
	for i := uint64(0); i < count; i++ {
		value, err := c.leafLog.Get(leafKey(i))
		if err != nil {
			return nil, fmt.Errorf("leaf log is missing entry %d: %w", i, err)
		}
		leaves[i] = new(big.Int).SetBytes(value)
	}
	return leaves, nil
}

func (c *Census) size() (uint64, error) {
	b, err := c.leafLog.Get(leafCountKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func leafKey(index uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'l'
	binary.BigEndian.PutUint64(key[1:], index)
	return key
}
