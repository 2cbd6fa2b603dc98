package sim

import "math/rand"

// RunSeed is the base seed of a batch run. It fixes every source of
// randomness the engine owns: environment i is built with RunSeed + i, and
// the warmup and policy streams below are derived from it.
type RunSeed int64

// EnvSeed returns the simulator seed for the environment in slot index.
func (s RunSeed) EnvSeed(index int) int64 {
	return int64(s) + int64(index)
}

// PartitionedRNG hands out the random streams of one run: one per slot for
// warmup no-op counts, plus one for the caller's action policy.
//
// Streams are independent of each other. A slot's warmup draws depend only
// on the run seed and the slot index, never on how many slots or workers the
// run has or on the order in which slots finish their rounds.
//
// Not safe for concurrent use. NewVecEnv takes every slot stream before the
// first round; each slot then uses its stream under the slot lock.
type PartitionedRNG struct {
	seed   RunSeed
	slots  map[int]*rand.Rand
	policy *rand.Rand
}

// NewPartitionedRNG creates the streams for a run.
func NewPartitionedRNG(seed RunSeed) *PartitionedRNG {
	return &PartitionedRNG{
		seed:  seed,
		slots: make(map[int]*rand.Rand),
	}
}

// Seed returns the run seed.
func (p *PartitionedRNG) Seed() RunSeed { return p.seed }

// ForSlot returns the warmup stream of slot index. Repeated calls return the
// same *rand.Rand.
func (p *PartitionedRNG) ForSlot(index int) *rand.Rand {
	if rng, ok := p.slots[index]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(slotStreamSeed(p.seed, index)))
	p.slots[index] = rng
	return rng
}

// ForPolicy returns the caller policy stream. It is seeded with the run seed
// itself, so a policy replays exactly for a given run seed.
func (p *PartitionedRNG) ForPolicy() *rand.Rand {
	if p.policy == nil {
		p.policy = rand.New(rand.NewSource(int64(p.seed)))
	}
	return p.policy
}

// slotStreamSeed mixes the run seed with the slot index (splitmix64 finalizer)
// so neighbouring slots and neighbouring run seeds get unrelated streams.
// Seed s slot i must not equal seed s+1 slot i-1, which plain addition would.
func slotStreamSeed(seed RunSeed, index int) int64 {
	z := uint64(seed) ^ (uint64(index)+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}
