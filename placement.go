package levelhash

// This file implements two-hash two-level probing, single-hop
// displacement, bottom-to-top rehoming, and the expansion protocol.

func levelMask(levelSize uint8, level int) uint64 {
	return levelBucketCount(levelSize, level) - 1
}

func (h *Handle) hash1(key []byte) uint64 { return h.opts.HashFn1(h.opts.Seed1, key) }
func (h *Handle) hash2(key []byte) uint64 { return h.opts.HashFn2(h.opts.Seed2, key) }

func (h *Handle) levelBase(level int) uint64 {
	if level == 0 {
		return h.meta.kmL0Addr()
	}
	return h.meta.kmL1Addr()
}

// hasExpanded reports whether the table has ever undergone at least one
// Expand. L0 always starts at keymap body offset 0 on first creation and
// only ever moves to a nonzero interim offset as the result of a commit,
// so km_l0_addr != 0 is a reopen-safe derivation requiring no separate
// persisted counter.
func (h *Handle) hasExpanded() bool {
	return h.meta.kmL0Addr() != 0
}

// totalSlots returns (2^s + 2^(s-1)) * b, the full candidate slot count.
func (h *Handle) totalSlots() uint64 {
	s := h.meta.kmLevelSize()
	b := uint64(h.meta.kmBucketSize())
	return (levelBucketCount(s, 0) + levelBucketCount(s, 1)) * b
}

func (h *Handle) loadFactor() float64 {
	used := h.itemCounts[0] + h.itemCounts[1]
	return float64(used) / float64(h.totalSlots())
}

// slotRef names a single keymap slot by level and byte address.
type slotRef struct {
	level int
	addr  uint64
}

// findSlot scans both levels' two candidate buckets for key, denser
// level first. It returns the slot holding a matching record if found.
func (h *Handle) findSlot(key []byte) (slotRef, uint64, bool, error) {
	levelSize := h.meta.kmLevelSize()
	bucketSize := h.meta.kmBucketSize()

	order := [2]int{0, 1}
	if h.itemCounts[1] >= h.itemCounts[0] {
		order = [2]int{1, 0}
	}

	for _, level := range order {
		mask := levelMask(levelSize, level)
		base := h.levelBase(level)
		uF := h.hash1(key) & mask
		uS := h.hash2(key) & mask
		for j := uint64(0); j < uint64(bucketSize); j++ {
			for _, u := range [2]uint64{uF, uS} {
				addr := slotAddr(base, bucketSize, u, j)
				v, err := h.km.readSlot(addr)
				if err != nil {
					return slotRef{}, 0, false, err
				}
				if v == 0 {
					continue
				}
				if h.values.keyeq(v, key) {
					return slotRef{level: level, addr: addr}, v, true, nil
				}
			}
		}
	}
	return slotRef{}, 0, false, nil
}

// findDirectSlot scans both levels' two candidate buckets for an empty
// slot, failing fast with dup=true if unique_keys is set and the same
// key is already present among the scanned slots.
func (h *Handle) findDirectSlot(key []byte) (ref slotRef, dup bool, found bool, err error) {
	levelSize := h.meta.kmLevelSize()
	bucketSize := h.meta.kmBucketSize()
	unique := *h.opts.UniqueKeys

	for level := 0; level < 2; level++ {
		mask := levelMask(levelSize, level)
		base := h.levelBase(level)
		uF := h.hash1(key) & mask
		uS := h.hash2(key) & mask
		for j := uint64(0); j < uint64(bucketSize); j++ {
			for _, u := range [2]uint64{uF, uS} {
				addr := slotAddr(base, bucketSize, u, j)
				v, rerr := h.km.readSlot(addr)
				if rerr != nil {
					return slotRef{}, false, false, rerr
				}
				if v == 0 {
					if !found {
						ref = slotRef{level: level, addr: addr}
						found = true
					}
					continue
				}
				if unique && h.values.keyeq(v, key) {
					return slotRef{}, true, false, nil
				}
			}
		}
	}
	return ref, false, found, nil
}

// tryDisplacement attempts single-hop displacement at each level in
// turn, placing recAddr if an occupant can be relocated to its
// alternate bucket.
func (h *Handle) tryDisplacement(key []byte, recAddr uint64) (bool, error) {
	for level := 0; level < 2; level++ {
		ok, err := h.tryMovementAtLevel(level, key, recAddr)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (h *Handle) tryMovementAtLevel(level int, key []byte, recAddr uint64) (bool, error) {
	levelSize := h.meta.kmLevelSize()
	bucketSize := h.meta.kmBucketSize()
	mask := levelMask(levelSize, level)
	base := h.levelBase(level)

	uF := h.hash1(key) & mask
	uS := h.hash2(key) & mask

	for _, u := range [2]uint64{uF, uS} {
		for i := uint64(0); i < uint64(bucketSize); i++ {
			addr := slotAddr(base, bucketSize, u, i)
			occAddr, err := h.km.readSlot(addr)
			if err != nil {
				return false, err
			}
			if occAddr == 0 {
				continue
			}

			occKey, err := h.values.readKey(occAddr)
			if err != nil {
				return false, err
			}
			occF := h.hash1(occKey) & mask
			occS := h.hash2(occKey) & mask

			var alt uint64
			switch {
			case occF == u && occS != u:
				alt = occS
			case occS == u && occF != u:
				alt = occF
			default:
				continue // occupant has no distinct alternate bucket
			}

			for j := uint64(0); j < uint64(bucketSize); j++ {
				altAddr := slotAddr(base, bucketSize, alt, j)
				v, err := h.km.readSlot(altAddr)
				if err != nil {
					return false, err
				}
				if v == 0 {
					if err := h.km.writeSlot(altAddr, occAddr); err != nil {
						return false, err
					}
					if err := h.km.writeSlot(addr, recAddr); err != nil {
						return false, err
					}
					h.itemCounts[level]++
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// tryRehome attempts bottom-to-top rehoming: only valid once at least
// one Expand has occurred. For each
// L0 candidate bucket of key, it walks the L1 bucket sharing that index
// modulo L1's bucket count and tries to promote an L1 occupant to L0,
// freeing its L1 slot for key.
func (h *Handle) tryRehome(key []byte, recAddr uint64) (bool, error) {
	if !h.hasExpanded() {
		return false, nil
	}

	levelSize := h.meta.kmLevelSize()
	bucketSize := h.meta.kmBucketSize()
	l0Mask := levelMask(levelSize, 0)
	l1Mask := levelMask(levelSize, 1)
	l0Base := h.levelBase(0)
	l1Base := h.levelBase(1)

	uF0 := h.hash1(key) & l0Mask
	uS0 := h.hash2(key) & l0Mask

	for _, u0 := range [2]uint64{uF0, uS0} {
		u1 := u0 & l1Mask
		for i := uint64(0); i < uint64(bucketSize); i++ {
			l1Addr := slotAddr(l1Base, bucketSize, u1, i)
			occAddr, err := h.km.readSlot(l1Addr)
			if err != nil {
				return false, err
			}
			if occAddr == 0 {
				continue
			}

			occKey, err := h.values.readKey(occAddr)
			if err != nil {
				return false, err
			}
			occF0 := h.hash1(occKey) & l0Mask
			occS0 := h.hash2(occKey) & l0Mask

			for _, ou0 := range [2]uint64{occF0, occS0} {
				for j := uint64(0); j < uint64(bucketSize); j++ {
					l0Addr := slotAddr(l0Base, bucketSize, ou0, j)
					v, err := h.km.readSlot(l0Addr)
					if err != nil {
						return false, err
					}
					if v == 0 {
						if err := h.km.writeSlot(l0Addr, occAddr); err != nil {
							return false, err
						}
						if err := h.km.writeSlot(l1Addr, recAddr); err != nil {
							return false, err
						}
						h.itemCounts[0]++
						return true, nil
					}
				}
			}
		}
	}
	return false, nil
}

// insert is the full Put algorithm: direct placement, then single-hop
// displacement, then bottom-to-top rehoming.
func (h *Handle) insert(key, value []byte) error {
	if *h.opts.AutoExpand && h.loadFactor() >= h.opts.LoadFactorThreshold {
		if err := h.doExpand(); err != nil {
			return err
		}
	}
	if h.loadFactor() >= 1.0 {
		return newErr(KindLevelOverflow, "Put", nil)
	}

	ref, dup, found, err := h.findDirectSlot(key)
	if err != nil {
		return err
	}
	if dup {
		return newErr(KindDuplicateKey, "Put", nil)
	}

	if found {
		recAddr, err := h.values.append(h.meta, key, value)
		if err != nil {
			return err
		}
		if err := h.km.writeSlot(ref.addr, recAddr); err != nil {
			return err
		}
		h.itemCounts[ref.level]++
		return nil
	}

	recAddr, err := h.values.append(h.meta, key, value)
	if err != nil {
		return err
	}

	if ok, err := h.tryDisplacement(key, recAddr); err != nil {
		return err
	} else if ok {
		return nil
	}

	if ok, err := h.tryRehome(key, recAddr); err != nil {
		return err
	} else if ok {
		return nil
	}

	_ = h.values.delete(h.meta, recAddr)
	return newErr(KindInsertionFailure, "Put", nil)
}

// lookup is the full Get algorithm. It returns (nil, false, nil) when
// the key is absent.
func (h *Handle) lookup(key []byte) ([]byte, bool, error) {
	_, recAddr, found, err := h.findSlot(key)
	if err != nil || !found {
		return nil, false, err
	}
	val, err := h.values.readValue(recAddr)
	return val, err == nil, err
}

// remove is the full Del algorithm.
func (h *Handle) remove(key []byte) ([]byte, bool, error) {
	ref, recAddr, found, err := h.findSlot(key)
	if err != nil || !found {
		return nil, false, err
	}

	old, err := h.values.readValue(recAddr)
	if err != nil {
		return nil, false, err
	}
	if err := h.values.delete(h.meta, recAddr); err != nil {
		return nil, false, err
	}
	if err := h.km.writeSlot(ref.addr, 0); err != nil {
		return nil, false, err
	}
	h.itemCounts[ref.level]--
	return old, true, nil
}

// modify is the full Update algorithm.
func (h *Handle) modify(key, newValue []byte) ([]byte, error) {
	ref, recAddr, found, err := h.findSlot(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newErr(KindSlotNotFound, "Update", nil)
	}

	old, err := h.values.readValue(recAddr)
	if err != nil {
		return nil, err
	}

	fit, err := h.values.updateInPlace(recAddr, newValue)
	if err != nil {
		return nil, err
	}
	if fit {
		return old, nil
	}

	newAddr, err := h.values.append(h.meta, key, newValue)
	if err != nil {
		return nil, err
	}
	if err := h.km.writeSlot(ref.addr, newAddr); err != nil {
		return nil, err
	}
	if err := h.values.delete(h.meta, recAddr); err != nil {
		return nil, err
	}
	return old, nil
}

// doExpand is the full expansion protocol: rehash L1 into a freshly
// grown interim region, then swap it in as the new L0.
func (h *Handle) doExpand() error {
	if h.expanding {
		return newErr(KindConcurrentModification, "Expand", nil)
	}
	levelSize := h.meta.kmLevelSize()
	if levelSize >= LevelSizeMax {
		return newErr(KindMaxLevelSizeReached, "Expand", nil)
	}

	h.expanding = true
	defer func() { h.expanding = false }()

	newLevelSize := levelSize + 1
	newBucketCount := levelBucketCount(newLevelSize, 0)
	bucketSize := h.meta.kmBucketSize()

	interimAddr, err := h.km.prepareInterim(newBucketCount, bucketSize)
	if err != nil {
		return newErr(KindExpansionFailure, "Expand", err)
	}

	oldL1Base := h.levelBase(1)
	oldL1Count := levelBucketCount(levelSize, 1)
	newMask := newBucketCount - 1

	var moved uint64
	for u := uint64(0); u < oldL1Count; u++ {
		for j := uint64(0); j < uint64(bucketSize); j++ {
			srcAddr := slotAddr(oldL1Base, bucketSize, u, j)
			recAddr, err := h.km.readSlot(srcAddr)
			if err != nil {
				return newErr(KindExpansionFailure, "Expand", err)
			}
			if recAddr == 0 {
				continue
			}

			key, err := h.values.readKey(recAddr)
			if err != nil {
				return newErr(KindExpansionFailure, "Expand", err)
			}
			uF := h.hash1(key) & newMask
			uS := h.hash2(key) & newMask

			placed := false
			for _, cu := range [2]uint64{uF, uS} {
				for k := uint64(0); k < uint64(bucketSize); k++ {
					destAddr := slotAddr(interimAddr, bucketSize, cu, k)
					v, err := h.km.readSlot(destAddr)
					if err != nil {
						return newErr(KindExpansionFailure, "Expand", err)
					}
					if v == 0 {
						if err := h.km.moveToInterim(destAddr, recAddr); err != nil {
							return newErr(KindExpansionFailure, "Expand", err)
						}
						placed = true
						moved++
						break
					}
				}
				if placed {
					break
				}
			}
			if !placed {
				return newErr(KindExpansionFailure, "Expand", nil).
					WithDetail("reason", "interim placement exhausted")
			}
		}
	}

	oldL0Addr := h.meta.kmL0Addr()
	h.meta.setKmL1Addr(oldL0Addr)
	h.meta.setKmL0Addr(interimAddr)
	h.meta.setKmLevelSize(newLevelSize)

	oldL1Bytes := oldL1Count * uint64(bucketSize) * slotSizeBytes
	if err := h.km.punchOldLevel(oldL1Base, oldL1Bytes); err != nil {
		return newErr(KindExpansionFailure, "Expand", err)
	}

	h.itemCounts[1] = h.itemCounts[0]
	h.itemCounts[0] = moved
	return nil
}
