// Package heap implements the fixed-size-class pool allocator that backs
// every scripting and bus allocation (spec §4.A). Allocation scans buckets
// in ascending size order; freeing identifies the owning pool+slot from
// the handle itself, the moral equivalent of the address-range test in
// §4.A for a language where slices can't be compared as raw pointers.
package heap

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/alljoynjs/ajcore/internal/config"
	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/logging"
)

// Block is a handle to an allocated region. The zero value is never
// handed out; Alloc(0) and a failed Alloc both return a nil *Block.
type Block struct {
	pool *pool
	slot int
}

// Valid reports whether b is a non-null handle.
func (b *Block) Valid() bool { return b != nil && b.pool != nil }

// Bytes exposes the block's backing storage. The slice's length is the
// bucket's class size, not the originally requested size.
func (b *Block) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.pool.slotBytes(b.slot)
}

// pool is one bucket: a size class, a contiguous backing arena sliced into
// fixed-size slots, and a free list of slot indices.
type pool struct {
	size   int
	arena  []byte
	borrow bool
	free   []int // stack of free slot indices

	inUse     int
	highWater int
	maxAlloc  int
}

func (p *pool) slotBytes(slot int) []byte {
	off := slot * p.size
	return p.arena[off : off+p.size]
}

// Arena is the heap: an ordered set of pools built from a config.Bucket
// table, per spec §3's pool metadata.
type Arena struct {
	mu    sync.Mutex
	pools []*pool
}

// Required estimates the bytes needed to back cfg — every bucket's
// size*count, rounded to its alignment. Exposed per the heap_required
// contract in §4.A.
func Required(cfg []config.Bucket) int {
	total := 0
	for _, b := range cfg {
		total += align(b.Size, b.Align) * b.Count
	}
	return total
}

func align(size, a int) int {
	if a <= 0 {
		a = 4
	}
	if size%a == 0 {
		return size
	}
	return size + (a - size%a)
}

// Init builds an Arena from cfg. Bucket sizes must be strictly ascending
// after alignment; Init panics on a malformed config, a startup-time
// programmer error rather than a runtime condition.
func Init(cfg []config.Bucket) *Arena {
	a := &Arena{}
	lastSize := -1
	for i, b := range cfg {
		sz := align(b.Size, b.Align)
		if sz <= lastSize {
			panic(fmt.Sprintf("heap: bucket %d size %d not strictly ascending after alignment (prev %d)", i, sz, lastSize))
		}
		lastSize = sz
		p := &pool{
			size:   sz,
			arena:  make([]byte, sz*b.Count),
			borrow: b.Borrow,
			free:   make([]int, b.Count),
		}
		for i := range p.free {
			p.free[i] = b.Count - 1 - i // slot 0 allocated first
		}
		a.pools = append(a.pools, p)
	}
	return a
}

// Alloc returns a block whose class size is >= size. size<=0 returns nil
// without touching any pool, per §8's boundary behaviour.
func (a *Arena) Alloc(size int) *Block {
	if size <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, p := range a.pools {
		if p.size < size {
			continue
		}
		if blk := allocFrom(p, size); blk != nil {
			return blk
		}
		if !p.borrow {
			logging.Warn("heap: allocation failed, bucket exhausted and not borrow-enabled", "size", size, "bucket", p.size)
			return nil
		}
		for j := i + 1; j < len(a.pools); j++ {
			if blk := allocFrom(a.pools[j], size); blk != nil {
				return blk
			}
		}
		logging.Warn("heap: allocation failed even after borrow", "size", size)
		return nil
	}
	logging.Warn("heap: no bucket large enough", "size", size)
	return nil
}

func allocFrom(p *pool, requested int) *Block {
	if len(p.free) == 0 {
		return nil
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	p.inUse++
	if p.inUse > p.highWater {
		p.highWater = p.inUse
	}
	if requested > p.maxAlloc {
		p.maxAlloc = requested
	}
	return &Block{pool: p, slot: slot}
}

// Free returns b to its owning pool. free(nil) is a no-op. Free panics if
// b was not issued by this arena, per §4.A's failure model. A double free
// of a block this arena issued is not detected.
func (a *Arena) Free(b *Block) {
	if b == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	owned := false
	for _, p := range a.pools {
		if p == b.pool {
			owned = true
			break
		}
	}
	if !owned {
		panic("heap: free of block not owned by this arena")
	}
	b.pool.free = append(b.pool.free, b.slot)
	b.pool.inUse--
}

// Realloc resizes b to newSize. It returns the same block when newSize
// still fits b's current bucket and would not have fit the previous
// smaller bucket; otherwise it allocates in the new bucket, copies
// min(old,new) bytes, and frees the original.
func (a *Arena) Realloc(b *Block, newSize int) *Block {
	if b == nil {
		return a.Alloc(newSize)
	}
	if newSize <= 0 {
		a.Free(b)
		return nil
	}

	a.mu.Lock()
	curSize := b.pool.size
	prevSize := 0
	for i, p := range a.pools {
		if p == b.pool && i > 0 {
			prevSize = a.pools[i-1].size
		}
	}
	a.mu.Unlock()

	if newSize <= curSize && newSize > prevSize {
		return b
	}

	nb := a.Alloc(newSize)
	if nb == nil {
		return nil
	}
	n := min(len(b.Bytes()), len(nb.Bytes()))
	copy(nb.Bytes()[:n], b.Bytes()[:n])
	a.Free(b)
	return nb
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Dump logs each pool's instrumentation counters, with sizes rendered
// human-readable via dustin/go-humanize — the allocator's one concession
// to the ambient logging stack; it does not alter allocation behavior.
func (a *Arena) Dump() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pools {
		logging.Info("heap pool",
			"class", humanize.Bytes(uint64(p.size)),
			"in_use", p.inUse,
			"high_water", p.highWater,
			"max_alloc", humanize.Bytes(uint64(p.maxAlloc)),
			"capacity", humanize.Bytes(uint64(len(p.arena))),
			"borrow", p.borrow,
		)
	}
}

// Stats reports aggregate utilization per bucket, for tests and for the
// diagnostics a caller attaches to a corerr.KindResources error.
type Stats struct {
	ClassSize int
	InUse     int
	HighWater int
	MaxAlloc  int
	Capacity  int
}

func (a *Arena) Stats() []Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Stats, len(a.pools))
	for i, p := range a.pools {
		out[i] = Stats{ClassSize: p.size, InUse: p.inUse, HighWater: p.highWater, MaxAlloc: p.maxAlloc, Capacity: len(p.arena)}
	}
	return out
}

// ErrExhausted builds the CoreError a caller reports when Alloc returns nil.
func ErrExhausted(op string) error {
	return corerr.New(corerr.KindResources, op)
}
