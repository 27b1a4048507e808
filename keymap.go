package levelhash

// keymapMagic is the 8-byte magic identifying a keymap file: all-zero.
// A freshly created or all-zero keymap body therefore always
// "matches"; a non-zero byte at offset 0 (e.g. a file of a different
// format) is treated as corrupt and rewritten.
var keymapMagic = make([]byte, 8)

const slotSizeBytes = 8 // one 64-bit slot pointer

// keymap holds two arrays of 64-bit slot pointers (L0, L1) plus a
// transient interim region appended during expansion.
// level_base(0) and level_base(1) are stored in the meta region
// (km_l0_addr/km_l1_addr) rather than computed, since expansion swaps
// them rather than moving bytes.
type keymap struct {
	mf          *mappedFile
	interimAddr uint64 // 0 when no expansion is in progress
}

// levelBucketCount returns the number of buckets in level L (0 or 1)
// given the current level_size s: L0 has 2^s, L1 has 2^(s-1).
func levelBucketCount(levelSize uint8, level int) uint64 {
	if level == 0 {
		return uint64(1) << levelSize
	}
	return uint64(1) << (levelSize - 1)
}

// levelBodyLen returns the byte length of level L's slot array.
func levelBodyLen(levelSize uint8, bucketSize uint8, level int) uint64 {
	return levelBucketCount(levelSize, level) * uint64(bucketSize) * slotSizeBytes
}

func openKeymap(path string, levelSize, bucketSize uint8) (*keymap, error) {
	initialLen := levelBodyLen(levelSize, bucketSize, 0) + levelBodyLen(levelSize, bucketSize, 1)
	mf, err := openMappedFile(path, 8, int64(initialLen), keymapMagic)
	if err != nil {
		return nil, err
	}
	return &keymap{mf: mf}, nil
}

func (k *keymap) close() error { return k.mf.close() }

// slotAddr computes the byte offset of slot j in bucket u of level base
// levelBase: level_base + 8*b*u + 8*j.
func slotAddr(levelBase uint64, bucketSize uint8, u, j uint64) uint64 {
	return levelBase + slotSizeBytes*uint64(bucketSize)*u + slotSizeBytes*j
}

func (k *keymap) readSlot(addr uint64) (uint64, error) {
	return k.mf.rU64(int64(addr))
}

func (k *keymap) writeSlot(addr uint64, value uint64) error {
	return k.mf.wU64(int64(addr), value)
}

// prepareInterim appends a new region of bucketCount buckets (sized for
// the post-expansion level_size) at the tail of the keymap body and
// returns its level_base. The mapping grows by bucketCount*bucketSize*8
// bytes.
func (k *keymap) prepareInterim(bucketCount uint64, bucketSize uint8) (uint64, error) {
	base := uint64(k.mf.bodyLen)
	grow := bucketCount * uint64(bucketSize) * slotSizeBytes
	if err := k.mf.remap(int64(base + grow)); err != nil {
		return 0, err
	}
	k.interimAddr = base
	return base, nil
}

// moveToInterim copies only the slot pointer (not the underlying
// record) from an L1 slot into an interim slot.
func (k *keymap) moveToInterim(destAddr uint64, value uint64) error {
	return k.writeSlot(destAddr, value)
}

// punchOldLevel reclaims the old L1 range after a commit swap: it
// becomes disjoint dead space, punched once the meta pointers
// (km_l0_addr/km_l1_addr/km_level_size) have already moved past it.
func (k *keymap) punchOldLevel(addr, length uint64) error {
	if length == 0 {
		return nil
	}
	return k.mf.deallocate(int64(addr), int64(length))
}

// shrinkToLevel truncates the keymap body back down to exactly the
// byte length of L0+L1 at the given level_size, used by clear() to
// release any interim/old-level dead space accumulated by prior
// expansions.
func (k *keymap) shrinkToLevel(levelSize, bucketSize uint8) error {
	want := levelBodyLen(levelSize, bucketSize, 0) + levelBodyLen(levelSize, bucketSize, 1)
	return k.mf.remap(int64(want))
}

// zeroAll zeros every slot pointer across the full mapped body.
func (k *keymap) zeroAll() {
	body := k.mf.body()
	for i := range body {
		body[i] = 0
	}
}
