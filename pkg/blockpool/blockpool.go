// Package blockpool is a chunked arena allocator (C2): fixed-size byte
// blocks are handed out from chunks grown on demand, recycled through a
// lock-free Treiber-stack free list. The mutex is taken only when a new
// chunk is appended; steady-state Get/Put never blocks. A pool built with
// NewBounded stops growing once max_blocks is reached and reports
// resource_exhausted instead; New builds an unbounded pool. Generalised
// from a single blob arena to a reusable pool of fixed-size blocks with
// per-block double-free detection.
package blockpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

const (
	// defaultBlockSize is the default block size (4 KiB, a typical page).
	defaultBlockSize = 4096

	// defaultBlocksPerChunk is the default chunk size in blocks.
	defaultBlocksPerChunk = 64

	emptyFreeList int64 = -1
)

type slot struct {
	data  []byte
	next  atomic.Int64
	inUse atomic.Bool
}

// Pool is an arena of fixed-size byte blocks. slots is held behind an
// atomic pointer rather than a bare slice field: grow() is the only
// writer (under mu), but Get/Put read it lock-free from any goroutine, so
// the slice header itself needs the same swap-not-mutate discipline as
// the free-list head.
type Pool struct {
	blockSize      int
	blocksPerChunk int
	maxBlocks      int // 0 means unbounded

	mu    sync.Mutex // held only while appending a new chunk
	slots atomic.Pointer[[]*slot]

	head   atomic.Int64 // index into slots of the free-list top, emptyFreeList when none
	inUse  atomic.Int64 // blocks currently checked out, for Utilization
	allocd atomic.Int64 // total blocks ever allocated (slots length)
}

// New constructs an unbounded Pool of blocks sized blockSize, grown
// blocksPerChunk blocks at a time, expanding indefinitely as demand
// requires. Non-positive values fall back to the package defaults.
func New(blockSize, blocksPerChunk int) *Pool {
	return NewBounded(blockSize, blocksPerChunk, 0)
}

// NewBounded is New with an explicit ceiling: once maxBlocks blocks have
// been allocated, Get returns resource_exhausted instead of growing the
// arena further. maxBlocks <= 0 means unbounded, identical to New.
func NewBounded(blockSize, blocksPerChunk, maxBlocks int) *Pool {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}

	if blocksPerChunk <= 0 {
		blocksPerChunk = defaultBlocksPerChunk
	}

	if maxBlocks < 0 {
		maxBlocks = 0
	}

	p := &Pool{blockSize: blockSize, blocksPerChunk: blocksPerChunk, maxBlocks: maxBlocks}
	p.head.Store(emptyFreeList)

	empty := []*slot{}
	p.slots.Store(&empty)

	_ = p.grow()

	return p
}

// grow appends one chunk of blocksPerChunk blocks and pushes them all onto
// the free list, unless the pool already holds maxBlocks blocks (bounded
// pools only), in which case it reports resource_exhausted and allocates
// nothing. This is the only operation that takes the mutex.
func (p *Pool) grow() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := *p.slots.Load()
	base := len(current)

	if p.maxBlocks > 0 && base >= p.maxBlocks {
		return terr.New(terr.KindResourceExhausted, "blockpool.grow", "max_blocks reached")
	}

	chunkBlocks := p.blocksPerChunk
	if p.maxBlocks > 0 && base+chunkBlocks > p.maxBlocks {
		chunkBlocks = p.maxBlocks - base
	}

	chunk := make([]byte, p.blockSize*chunkBlocks)

	added := make([]*slot, chunkBlocks)
	for i := range added {
		start := i * p.blockSize
		added[i] = &slot{data: chunk[start:start : start+p.blockSize]}
	}

	next := make([]*slot, 0, base+len(added))
	next = append(next, current...)
	next = append(next, added...)
	p.slots.Store(&next)
	p.allocd.Add(int64(len(added)))

	// Push in reverse so the free-list head lands on the chunk's first
	// block, keeping allocation order roughly sequential.
	for i := len(added) - 1; i >= 0; i-- {
		idx := int64(base + i)

		for {
			head := p.head.Load()
			added[i].next.Store(head)

			if p.head.CompareAndSwap(head, idx) {
				break
			}
		}
	}

	return nil
}

// Block is a handle to a pooled byte buffer. The zero value is not valid;
// obtain one from Pool.Get.
type Block struct {
	pool *Pool
	idx  int64
}

// Get pops a free block off the free list, growing the arena by one chunk
// first if none is free. For a bounded pool, once maxBlocks blocks have
// been allocated and none is free, Get returns resource_exhausted rather
// than blocking or growing further.
func (p *Pool) Get() (*Block, error) {
	for {
		head := p.head.Load()
		if head == emptyFreeList {
			if err := p.grow(); err != nil {
				return nil, err
			}

			continue
		}

		slots := *p.slots.Load()
		s := slots[head]
		next := s.next.Load()

		if !p.head.CompareAndSwap(head, next) {
			continue
		}

		if !s.inUse.CompareAndSwap(false, true) {
			// Two Get calls raced onto the same popped slot; the free
			// list is corrupt, which should be unreachable given CAS
			// ownership above.
			panic("blockpool: free list corruption")
		}

		s.data = s.data[:0]
		p.inUse.Add(1)

		return &Block{pool: p, idx: head}, nil
	}
}

// Put returns b to the free list. Putting a Block not obtained from p, or
// putting the same Block twice, is reported as an error rather than
// silently corrupting the free list.
func (p *Pool) Put(b *Block) error {
	if b == nil || b.pool != p {
		return terr.New(terr.KindInvalidArgument, "blockpool.Put", "block does not belong to this pool")
	}

	slots := *p.slots.Load()
	s := slots[b.idx]

	if !s.inUse.CompareAndSwap(true, false) {
		return terr.New(terr.KindInvalidArgument, "blockpool.Put", "double free")
	}

	p.inUse.Add(-1)

	for {
		head := p.head.Load()
		s.next.Store(head)

		if p.head.CompareAndSwap(head, b.idx) {
			return nil
		}
	}
}

// Bytes returns the block's current contents.
func (b *Block) Bytes() []byte {
	return b.slot().data
}

func (b *Block) slot() *slot {
	slots := *b.pool.slots.Load()

	return slots[b.idx]
}

// Reset truncates the block's contents to zero length without releasing
// it back to the pool.
func (b *Block) Reset() {
	s := b.slot()
	s.data = s.data[:0]
}

// Write appends p to the block, implementing io.Writer. It fails with
// resource_exhausted rather than growing past the block's fixed capacity.
func (b *Block) Write(p []byte) (int, error) {
	s := b.slot()

	if len(s.data)+len(p) > cap(s.data) {
		return 0, terr.New(terr.KindResourceExhausted, "blockpool.Block.Write", "write exceeds block capacity")
	}

	s.data = append(s.data, p...)

	return len(p), nil
}

// WriteByte appends a single byte, implementing io.ByteWriter.
func (b *Block) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})

	return err
}

// Cap returns the block's fixed capacity.
func (b *Block) Cap() int {
	return cap(b.slot().data)
}

// Utilization returns the fraction of allocated blocks currently checked
// out, in [0, 1]. Used by pkg/monitor to factor arena pressure into its
// degradation level.
func (p *Pool) Utilization() float64 {
	total := p.allocd.Load()
	if total == 0 {
		return 0
	}

	return float64(p.inUse.Load()) / float64(total)
}

// String renders a human-readable summary (block size, blocks in use vs
// allocated, and total arena bytes) for diagnostics/CLI output.
func (p *Pool) String() string {
	total := p.allocd.Load()
	inUse := p.inUse.Load()
	arenaBytes := total * int64(p.blockSize)

	return fmt.Sprintf("blockpool(block=%s, in_use=%d/%d, arena=%s)",
		humanize.Bytes(uint64(p.blockSize)), inUse, total, humanize.Bytes(uint64(arenaBytes))) //nolint:gosec // sizes are process-local and bounded
}
