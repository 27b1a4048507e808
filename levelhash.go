package levelhash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// maxByteLen bounds key/value sizes at 2^32-1 bytes.
const maxByteLen = 1<<32 - 1

// Handle is a single open level-hash index: the mapped values store,
// keymap, and meta region, plus the advisory lock guarding single-writer
// access.
type Handle struct {
	opts Options

	meta   *metaRegion
	values *valuesStore
	km     *keymap
	lock   *fileLock

	itemCounts [2]uint64 // occupancy per level, recomputed on Open
	expanding  bool
}

func indexPaths(dir, name string) (values, keymapPath, metaPath, lockPath string) {
	base := filepath.Join(dir, name+".index")
	return base, base + "._keymap", base + "._meta", base + ".lock"
}

// Open creates or opens the three index files under opts.IndexDir named
// opts.IndexName, acquiring an exclusive advisory lock. A second Open of
// the same directory+name while a handle is live fails with an IOError
// whose wrapped cause is "would block".
func Open(opts Options) (*Handle, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.IndexDir, 0o755); err != nil {
		return nil, newErr(KindIOError, "Open", err).WithPath(opts.IndexDir)
	}

	valuesPath, keymapPath, metaPath, lockPath := indexPaths(opts.IndexDir, opts.IndexName)

	lock, err := acquireLock(lockPath)
	if err != nil {
		return nil, newErr(KindIOError, "Open", err).WithPath(lockPath)
	}

	meta, err := openMetaRegion(metaPath, opts.LevelSize, opts.BucketSize)
	if err != nil {
		lock.release()
		return nil, err
	}

	km, err := openKeymap(keymapPath, meta.kmLevelSize(), meta.kmBucketSize())
	if err != nil {
		meta.close()
		lock.release()
		return nil, err
	}
	if meta.kmL0Addr() == 0 && meta.kmL1Addr() == 0 {
		// First creation: place L0 at offset 0, L1 immediately after.
		// (km_l0_addr/km_l1_addr are both 0 only before any level has
		// ever been laid out; after a first Expand, km_l1_addr becomes
		// the pre-expansion km_l0_addr, which is 0, but km_l0_addr is by
		// then the nonzero interim offset — see hasExpanded.)
		meta.setKmL1Addr(levelBodyLen(meta.kmLevelSize(), meta.kmBucketSize(), 0))
	}

	vals, err := openValuesStore(valuesPath)
	if err != nil {
		km.close()
		meta.close()
		lock.release()
		return nil, err
	}
	meta.setValFileSize(uint64(vals.mf.bodyLen))

	h := &Handle{opts: opts, meta: meta, values: vals, km: km, lock: lock}
	if err := h.recomputeCounts(); err != nil {
		h.Close()
		return nil, err
	}

	if l := opts.logger(); l != nil {
		l.Infow("opened index", "dir", opts.IndexDir, "name", opts.IndexName,
			"level_size", meta.kmLevelSize(), "bucket_size", meta.kmBucketSize())
	}
	return h, nil
}

// recomputeCounts scans both levels once to establish the in-memory
// occupancy counters used by the denser-level-first lookup order and
// the load-factor check. Meta does not persist these counts.
func (h *Handle) recomputeCounts() error {
	levelSize := h.meta.kmLevelSize()
	bucketSize := h.meta.kmBucketSize()

	for level := 0; level < 2; level++ {
		base := h.levelBase(level)
		count := levelBucketCount(levelSize, level)
		var used uint64
		for u := uint64(0); u < count; u++ {
			for j := uint64(0); j < uint64(bucketSize); j++ {
				v, err := h.km.readSlot(slotAddr(base, bucketSize, u, j))
				if err != nil {
					return err
				}
				if v != 0 {
					used++
				}
			}
		}
		h.itemCounts[level] = used
	}
	return nil
}

// Close flushes and unmaps every region and releases the advisory lock.
// It is safe to call once; a Handle must not be used afterward.
func (h *Handle) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(h.values.close())
	record(h.km.close())
	record(h.meta.close())
	record(h.lock.release())
	var e *Error
	if firstErr != nil && !errors.As(firstErr, &e) {
		return newErr(KindIOError, "Close", firstErr)
	}
	return firstErr
}

func checkLen(op, field string, b []byte) error {
	if len(b) > maxByteLen {
		return newErr(KindInvalidArg, op, nil).WithDetail(field, len(b))
	}
	return nil
}

// Get returns the value stored for key, or an empty (nil) slice if key
// is absent.
func (h *Handle) Get(key []byte) ([]byte, error) {
	if err := checkLen("Get", "key", key); err != nil {
		return nil, err
	}
	val, found, err := h.lookup(key)
	if err != nil {
		return nil, newErr(KindIOError, "Get", err)
	}
	if !found {
		return nil, nil
	}
	return val, nil
}

// Put inserts key/value. Under UniqueKeys it fails with KindDuplicateKey
// if key is already present.
func (h *Handle) Put(key, value []byte) error {
	if err := checkLen("Put", "key", key); err != nil {
		return err
	}
	if err := checkLen("Put", "value", value); err != nil {
		return err
	}
	return h.insert(key, value)
}

// Update replaces the value stored for key and returns the prior value.
// It fails with KindSlotNotFound if key is absent.
func (h *Handle) Update(key, newValue []byte) ([]byte, error) {
	if err := checkLen("Update", "value", newValue); err != nil {
		return nil, err
	}
	return h.modify(key, newValue)
}

// Del removes key and returns its prior value and whether it was
// present.
func (h *Handle) Del(key []byte) ([]byte, bool, error) {
	return h.remove(key)
}

// Expand runs the expansion protocol once: the old top level becomes the
// bottom level, and a new top level of twice its bucket count is built
// from the old bottom level's records.
func (h *Handle) Expand() error {
	return h.doExpand()
}

// Clear empties the index in place: the keymap is zeroed and resized to
// the LevelSize of the Options this Handle was opened with (not the level
// stored at creation, if the two differ), and the values store is reset
// to a single growth block.
func (h *Handle) Clear() error {
	origLevelSize := h.opts.LevelSize
	bucketSize := h.meta.kmBucketSize()

	if err := h.km.shrinkToLevel(origLevelSize, bucketSize); err != nil {
		return newErr(KindIOError, "Clear", err)
	}
	h.km.zeroAll()

	h.meta.setKmLevelSize(origLevelSize)
	h.meta.setKmL0Addr(0)
	h.meta.setKmL1Addr(levelBodyLen(origLevelSize, bucketSize, 0))

	if err := h.values.mf.remap(valuesSegmentSize); err != nil {
		return newErr(KindIOError, "Clear", err)
	}
	body := h.values.mf.body()
	for i := range body {
		body[i] = 0
	}
	h.meta.setValTailAddr(0)
	h.meta.setValNextAddr(1)
	h.meta.setValFileSize(valuesSegmentSize)

	h.itemCounts[0] = 0
	h.itemCounts[1] = 0
	return nil
}

// String reports a human-readable summary, useful in logs and the demo
// CLI.
func (h *Handle) String() string {
	return fmt.Sprintf("levelhash(dir=%s name=%s level_size=%d bucket_size=%d used=%d/%d)",
		h.opts.IndexDir, h.opts.IndexName, h.meta.kmLevelSize(), h.meta.kmBucketSize(),
		h.itemCounts[0]+h.itemCounts[1], h.totalSlots())
}
