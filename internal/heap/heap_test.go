package heap

import (
	"testing"

	"github.com/alljoynjs/ajcore/internal/config"
)

func testConfig() []config.Bucket {
	return []config.Bucket{
		{Size: 16, Count: 2, Align: 4},
		{Size: 32, Count: 2, Align: 4},
		{Size: 64, Count: 1, Align: 4, Borrow: true},
	}
}

func TestAllocZeroReturnsNullWithoutTouchingPools(t *testing.T) {
	a := Init(testConfig())
	b := a.Alloc(0)
	if b.Valid() {
		t.Fatalf("Alloc(0) should be null")
	}
	for _, s := range a.Stats() {
		if s.InUse != 0 {
			t.Fatalf("Alloc(0) touched a pool: %+v", s)
		}
	}
}

func TestAllocPicksSmallestFittingBucket(t *testing.T) {
	a := Init(testConfig())
	b := a.Alloc(10)
	if !b.Valid() {
		t.Fatalf("expected a block")
	}
	if len(b.Bytes()) != 16 {
		t.Fatalf("expected 16-byte bucket, got %d", len(b.Bytes()))
	}
}

func TestFreeReturnsBlockToOriginalPool(t *testing.T) {
	a := Init(testConfig())
	b1 := a.Alloc(16)
	b2 := a.Alloc(16)
	if !b1.Valid() || !b2.Valid() {
		t.Fatalf("expected two blocks from the 2-slot bucket")
	}
	if b3 := a.Alloc(16); b3.Valid() {
		t.Fatalf("expected exhaustion on third 16-byte alloc")
	}
	a.Free(b1)
	b4 := a.Alloc(16)
	if !b4.Valid() {
		t.Fatalf("expected alloc to succeed after free")
	}
}

func TestFreeNilIsNoop(t *testing.T) {
	a := Init(testConfig())
	a.Free(nil) // must not panic
}

func TestFreeOfForeignBlockPanics(t *testing.T) {
	a1 := Init(testConfig())
	a2 := Init(testConfig())
	b := a1.Alloc(16)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic freeing a block on the wrong arena")
		}
	}()
	a2.Free(b)
}

func TestExhaustedNonBorrowBucketFails(t *testing.T) {
	a := Init(testConfig())
	a.Alloc(16)
	a.Alloc(16)
	if b := a.Alloc(16); b.Valid() {
		t.Fatalf("expected resources failure on exhausted non-borrow bucket")
	}
}

func TestBorrowPromotesToNextBucket(t *testing.T) {
	cfg := []config.Bucket{
		{Size: 16, Count: 1, Align: 4, Borrow: true},
		{Size: 32, Count: 1, Align: 4},
	}
	a := Init(cfg)
	a.Alloc(16) // exhausts the 16-byte bucket
	b := a.Alloc(16)
	if !b.Valid() {
		t.Fatalf("expected borrow into the 32-byte bucket to succeed")
	}
	if len(b.Bytes()) != 32 {
		t.Fatalf("expected promoted block from the 32-byte bucket, got %d", len(b.Bytes()))
	}
}

func TestReallocSameBucketNoop(t *testing.T) {
	a := Init(testConfig())
	b := a.Alloc(16)
	copy(b.Bytes(), []byte("hello"))
	nb := a.Realloc(b, 15)
	if nb != b {
		t.Fatalf("expected Realloc to keep the same block when the new size still fits")
	}
}

func TestReallocGrowsAndCopies(t *testing.T) {
	a := Init(testConfig())
	b := a.Alloc(16)
	copy(b.Bytes(), []byte("hello world"))
	nb := a.Realloc(b, 30)
	if len(nb.Bytes()) != 32 {
		t.Fatalf("expected promotion to the 32-byte bucket, got %d", len(nb.Bytes()))
	}
	if string(nb.Bytes()[:11]) != "hello world" {
		t.Fatalf("expected copied contents, got %q", nb.Bytes()[:11])
	}
}

func TestRequiredSumsBucketsAligned(t *testing.T) {
	cfg := []config.Bucket{
		{Size: 10, Count: 2, Align: 4}, // aligns to 12
		{Size: 16, Count: 1, Align: 4},
	}
	got := Required(cfg)
	want := 12*2 + 16*1
	if got != want {
		t.Fatalf("Required() = %d, want %d", got, want)
	}
}
