package levelhash

// Meta field byte offsets, 8-byte aligning every 64-bit field.
const (
	offValVersion   = 0  // u32
	offKmVersion    = 4  // u32
	offValTailAddr  = 8  // u64
	offValNextAddr  = 16 // u64
	offValFileSize  = 24 // u64
	offKmLevelSize  = 32 // u8
	offKmBucketSize = 33 // u8
	offKmL0Addr     = 40 // u64
	offKmL1Addr     = 48 // u64

	metaSize = 56
)

const metaMagicBytes = 0 // meta file carries no magic of its own; its identity is the sidecar lock + directory listing

// metaRegion is a single mapped fixed-size struct, lazily initialized
// field-by-field on first open: a zero field gets its default
// independently of the others, so a meta file partially populated by
// an older build still gets the missing fields defaulted.
type metaRegion struct {
	mf *mappedFile
}

func openMetaRegion(path string, levelSize, bucketSize uint8) (*metaRegion, error) {
	mf, err := openMappedFile(path, 0, metaSize, make([]byte, 0))
	if err != nil {
		return nil, err
	}
	if mf.bodyLen != metaSize {
		if err := mf.remap(metaSize); err != nil {
			mf.close()
			return nil, err
		}
	}

	m := &metaRegion{mf: mf}
	if err := m.initDefaults(levelSize, bucketSize); err != nil {
		mf.close()
		return nil, err
	}
	return m, nil
}

func (m *metaRegion) initDefaults(levelSize, bucketSize uint8) error {
	if v, _ := m.mf.rU32(offValVersion); v == 0 {
		if err := m.mf.wU32(offValVersion, 1); err != nil {
			return err
		}
	}
	if v, _ := m.mf.rU32(offKmVersion); v == 0 {
		if err := m.mf.wU32(offKmVersion, 1); err != nil {
			return err
		}
	}
	if v, _ := m.mf.rU64(offValNextAddr); v == 0 {
		if err := m.mf.wU64(offValNextAddr, 1); err != nil {
			return err
		}
	}
	if v, _ := m.mf.rU8(offKmLevelSize); v == 0 {
		if err := m.mf.wU8(offKmLevelSize, levelSize); err != nil {
			return err
		}
	}
	if v, _ := m.mf.rU8(offKmBucketSize); v == 0 {
		if err := m.mf.wU8(offKmBucketSize, bucketSize); err != nil {
			return err
		}
	}
	// km_l0_addr/km_l1_addr default to 0 and len(L0) respectively; Open
	// sets km_l1_addr explicitly on first creation, since the byte length
	// of L0 depends on the keymap geometry rather than on this region.
	return nil
}

func (m *metaRegion) valVersion() uint32      { v, _ := m.mf.rU32(offValVersion); return v }
func (m *metaRegion) kmVersion() uint32       { v, _ := m.mf.rU32(offKmVersion); return v }
func (m *metaRegion) valTailAddr() uint64     { v, _ := m.mf.rU64(offValTailAddr); return v }
func (m *metaRegion) setValTailAddr(v uint64) { _ = m.mf.wU64(offValTailAddr, v) }
func (m *metaRegion) valNextAddr() uint64     { v, _ := m.mf.rU64(offValNextAddr); return v }
func (m *metaRegion) setValNextAddr(v uint64) { _ = m.mf.wU64(offValNextAddr, v) }
func (m *metaRegion) valFileSize() uint64     { v, _ := m.mf.rU64(offValFileSize); return v }
func (m *metaRegion) setValFileSize(v uint64) { _ = m.mf.wU64(offValFileSize, v) }
func (m *metaRegion) kmLevelSize() uint8      { v, _ := m.mf.rU8(offKmLevelSize); return v }
func (m *metaRegion) setKmLevelSize(v uint8)  { _ = m.mf.wU8(offKmLevelSize, v) }
func (m *metaRegion) kmBucketSize() uint8     { v, _ := m.mf.rU8(offKmBucketSize); return v }
func (m *metaRegion) kmL0Addr() uint64        { v, _ := m.mf.rU64(offKmL0Addr); return v }
func (m *metaRegion) setKmL0Addr(v uint64)    { _ = m.mf.wU64(offKmL0Addr, v) }
func (m *metaRegion) kmL1Addr() uint64        { v, _ := m.mf.rU64(offKmL1Addr); return v }
func (m *metaRegion) setKmL1Addr(v uint64)    { _ = m.mf.wU64(offKmL1Addr, v) }

func (m *metaRegion) close() error { return m.mf.close() }
