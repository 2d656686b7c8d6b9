// Package raffle draws who offers a gift to whom.
//
// The draw retries uniformly random shuffles until one has no fixed point,
// and falls back to a rotation by one position when the attempt budget is spent.
package raffle

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"secret-santa/domain"
	"secret-santa/errors"
)

// MaxAttempts bounds the number of shuffles tried before rotating.
const MaxAttempts = 100

// Shuffler permutes n elements in place through swap.
type Shuffler func(n int, swap func(i, j int))

type Engine struct {
	mu       sync.Mutex
	shuffle  Shuffler
	attempts int
}

type Option func(*Engine)

// WithShuffler replaces the random source, mostly for tests.
func WithShuffler(s Shuffler) Option {
	return func(e *Engine) { e.shuffle = s }
}

// WithAttempts changes the shuffle budget.
func WithAttempts(n int) Option {
	return func(e *Engine) { e.attempts = n }
}

// NewEngine seeds a PCG generator from crypto/rand.
func NewEngine(opts ...Option) (*Engine, error) {
	seed1, err := newSeed()
	if err != nil {
		return nil, err
	}
	seed2, err := newSeed()
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed1, seed2))
	e := &Engine{shuffle: rng.Shuffle, attempts: MaxAttempts}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Assign maps every giver to a recipient. The result is a bijection over ids with no fixed point.
func (e *Engine) Assign(ids []domain.UserID) (map[domain.UserID]domain.UserID, error) {
	if len(ids) < 2 {
		return nil, errors.ErrInsufficientParticipants
	}
	targets := slices.Clone(ids)

	e.mu.Lock()
	defer e.mu.Unlock()
	for range e.attempts {
		e.shuffle(len(targets), func(i, j int) {
			targets[i], targets[j] = targets[j], targets[i]
		})
		if !hasFixedPoint(ids, targets) {
			return pair(ids, targets), nil
		}
	}
	return Rotate(ids), nil
}

// Rotate gives each id the next one in order, the last one wrapping to the first.
// It never has a fixed point for two or more distinct ids.
func Rotate(ids []domain.UserID) map[domain.UserID]domain.UserID {
	targets := append(slices.Clone(ids[1:]), ids[0])
	return pair(ids, targets)
}

func hasFixedPoint(ids, targets []domain.UserID) bool {
	for i := range ids {
		if ids[i] == targets[i] {
			return true
		}
	}
	return false
}

func pair(ids, targets []domain.UserID) map[domain.UserID]domain.UserID {
	res := make(map[domain.UserID]domain.UserID, len(ids))
	for i, giver := range ids {
		res[giver] = targets[i]
	}
	return res
}

func newSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
