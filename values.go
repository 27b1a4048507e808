package levelhash

import (
	"encoding/binary"
)

// valuesMagic is the 8-byte little-endian magic identifying a values
// store file.
var valuesMagic = le64(0x4149445856)

// valuesSegmentSize is the fixed growth block for the values store.
const valuesSegmentSize = 512 * 1024

// recordHeaderSize is the fixed key_size|value_size prefix of a values
// record.
const recordHeaderSize = 8 // u32 key_size + u32 value_size

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// valuesStore is an append-mostly region of length-prefixed,
// 8-byte-aligned variable-size records.
type valuesStore struct {
	mf *mappedFile
}

func openValuesStore(path string) (*valuesStore, error) {
	mf, err := openMappedFile(path, 8, valuesSegmentSize, valuesMagic)
	if err != nil {
		return nil, err
	}
	return &valuesStore{mf: mf}, nil
}

func (v *valuesStore) close() error { return v.mf.close() }

// align8 rounds x up to the next multiple of 8.
func align8(x uint64) uint64 {
	return (x + 7) &^ 7
}

// recordSize returns the full 8-byte-aligned extent occupied by a record
// with the given key/value lengths, including its header.
func recordSize(keyLen, valueLen uint32) uint64 {
	return align8(uint64(recordHeaderSize) + uint64(keyLen) + uint64(valueLen))
}

// ensureCapacity grows the mapped body by whole valuesSegmentSize blocks
// until it can hold [0, end).
func (v *valuesStore) ensureCapacity(end uint64) error {
	if uint64(v.mf.bodyLen) >= end {
		return nil
	}
	newLen := uint64(v.mf.bodyLen)
	for newLen < end {
		newLen += valuesSegmentSize
	}
	return v.mf.remap(int64(newLen))
}

// append writes a new record at the current tail (val_next_addr-1) and
// returns its 1-based address. m is the meta region, whose val_tail_addr/
// val_next_addr/val_file_size fields this call updates.
func (v *valuesStore) append(m *metaRegion, key, value []byte) (uint64, error) {
	addr0 := m.valNextAddr() - 1 // 0-based offset of the new record
	size := recordSize(uint32(len(key)), uint32(len(value)))

	if err := v.ensureCapacity(addr0 + size); err != nil {
		return 0, err
	}

	if err := v.mf.wU32(int64(addr0), uint32(len(key))); err != nil {
		return 0, err
	}
	if err := v.mf.wU32(int64(addr0)+4, uint32(len(value))); err != nil {
		return 0, err
	}
	if err := v.mf.writeAt(int64(addr0)+recordHeaderSize, key); err != nil {
		return 0, err
	}
	if err := v.mf.writeAt(int64(addr0)+recordHeaderSize+int64(len(key)), value); err != nil {
		return 0, err
	}

	m.setValTailAddr(addr0 + 1)
	m.setValNextAddr(addr0 + size + 1)
	m.setValFileSize(uint64(v.mf.bodyLen))
	return addr0 + 1, nil
}

// recordLens reads the key_size/value_size prefix at 1-based address
// addr. keySize==0 means the record is free (deleted or never written).
func (v *valuesStore) recordLens(addr uint64) (keySize, valueSize uint32, err error) {
	off := int64(addr - 1)
	keySize, err = v.mf.rU32(off)
	if err != nil {
		return 0, 0, err
	}
	valueSize, err = v.mf.rU32(off + 4)
	if err != nil {
		return 0, 0, err
	}
	return keySize, valueSize, nil
}

func (v *valuesStore) readKey(addr uint64) ([]byte, error) {
	keySize, _, err := v.recordLens(addr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, keySize)
	if err := v.mf.readAt(int64(addr-1)+recordHeaderSize, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *valuesStore) readValue(addr uint64) ([]byte, error) {
	keySize, valueSize, err := v.recordLens(addr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, valueSize)
	if err := v.mf.readAt(int64(addr-1)+recordHeaderSize+int64(keySize), out); err != nil {
		return nil, err
	}
	return out, nil
}

// keyeq reports whether the record at addr has exactly the given key
// bytes (SIMD-equality path, see mappedFile.memeq).
func (v *valuesStore) keyeq(addr uint64, key []byte) bool {
	keySize, _, err := v.recordLens(addr)
	if err != nil || int(keySize) != len(key) {
		return false
	}
	return v.mf.memeq(int64(addr-1)+recordHeaderSize, key)
}

// delete punches a hole over the record's 8-aligned extent and zeros its
// key_size/value_size so it reads as free. If addr is the current tail,
// val_next_addr is rewound so the slot is reused on next append.
func (v *valuesStore) delete(m *metaRegion, addr uint64) error {
	keySize, valueSize, err := v.recordLens(addr)
	if err != nil {
		return err
	}
	size := recordSize(keySize, valueSize)
	off := int64(addr - 1)

	if err := v.mf.wU32(off, 0); err != nil {
		return err
	}
	if err := v.mf.wU32(off+4, 0); err != nil {
		return err
	}
	if err := v.mf.deallocate(off, int64(size)); err != nil {
		return err
	}
	if addr == m.valTailAddr() {
		m.setValNextAddr(addr)
	}
	return nil
}

// updateInPlace overwrites the value of the record at addr when
// newValue fits within its existing value_size, punching any trailing
// hole freed by a shorter value. It reports whether the in-place path
// was taken; false means the caller must append a new record instead.
func (v *valuesStore) updateInPlace(addr uint64, newValue []byte) (bool, error) {
	keySize, valueSize, err := v.recordLens(addr)
	if err != nil {
		return false, err
	}
	if uint32(len(newValue)) > valueSize {
		return false, nil
	}

	off := int64(addr-1) + recordHeaderSize + int64(keySize)
	if err := v.mf.writeAt(off, newValue); err != nil {
		return false, err
	}
	if err := v.mf.wU32(int64(addr-1)+4, uint32(len(newValue))); err != nil {
		return false, err
	}

	if shrink := uint64(valueSize) - uint64(len(newValue)); shrink > 0 {
		holeOff := off + int64(len(newValue))
		if err := v.mf.deallocate(holeOff, int64(shrink)); err != nil {
			return false, err
		}
	}
	return true, nil
}
