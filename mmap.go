package levelhash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// mappedFile is a byte-addressable view into a file region starting at a
// fixed header offset. Every read/write accessor is bounds-checked
// against the current mapped body length; remap may relocate the
// underlying slice, so callers must never retain a []byte returned by a
// read accessor across a call that can grow the mapping (append,
// expansion, clear).
type mappedFile struct {
	file      *os.File
	data      []byte // mapping of [0, headerLen+bodyLen)
	headerLen int64
	bodyLen   int64
}

// openMappedFile opens (creating if absent) path, ensures it is at least
// headerLen+initialBodyLen bytes, maps the whole thing, and validates the
// header magic. A mismatched magic truncates and rewrites the header.
func openMappedFile(path string, headerLen int64, initialBodyLen int64, magic []byte) (*mappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, newErr(KindIOError, "openMappedFile", err).WithPath(path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr(KindIOError, "openMappedFile", err).WithPath(path)
	}

	total := headerLen + initialBodyLen
	needsInit := fi.Size() < headerLen || !magicMatches(f, headerLen, magic)

	if fi.Size() < total || needsInit {
		size := fi.Size()
		if size < total {
			size = total
		}
		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, newErr(KindIOError, "openMappedFile", err).WithPath(path)
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, newErr(KindIOError, "openMappedFile", err).WithPath(path)
		}
		if _, err := f.WriteAt(magic, 0); err != nil {
			f.Close()
			return nil, newErr(KindIOError, "openMappedFile", err).WithPath(path)
		}
	}

	fi, err = f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr(KindIOError, "openMappedFile", err).WithPath(path)
	}

	bodyLen := fi.Size() - headerLen
	data, err := syscall.Mmap(int(f.Fd()), 0, int(fi.Size()), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, newErr(KindMapError, "openMappedFile", err).WithPath(path)
	}

	return &mappedFile{file: f, data: data, headerLen: headerLen, bodyLen: bodyLen}, nil
}

// magicMatches reports whether the first len(magic) bytes on disk equal
// magic. A short read (new or truncated file) is treated as a mismatch.
func magicMatches(f *os.File, headerLen int64, magic []byte) bool {
	buf := make([]byte, len(magic))
	n, err := f.ReadAt(buf, 0)
	if err != nil || n != len(magic) {
		return false
	}
	return bytes.Equal(buf, magic)
}

func (m *mappedFile) body() []byte {
	return m.data[m.headerLen:]
}

// checkBounds returns a KindMapError if [off, off+n) falls outside the
// current mapped body.
func (m *mappedFile) checkBounds(off, n int64) error {
	if off < 0 || n < 0 || off+n > m.bodyLen {
		return newErr(KindMapError, "bounds", fmt.Errorf("offset %d len %d exceeds body %d", off, n, m.bodyLen))
	}
	return nil
}

func (m *mappedFile) readAt(off int64, out []byte) error {
	if err := m.checkBounds(off, int64(len(out))); err != nil {
		return err
	}
	copy(out, m.body()[off:off+int64(len(out))])
	return nil
}

func (m *mappedFile) writeAt(off int64, in []byte) error {
	if err := m.checkBounds(off, int64(len(in))); err != nil {
		return err
	}
	copy(m.body()[off:off+int64(len(in))], in)
	return nil
}

func (m *mappedFile) rU32(off int64) (uint32, error) {
	if err := m.checkBounds(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.body()[off : off+4]), nil
}

func (m *mappedFile) wU32(off int64, v uint32) error {
	if err := m.checkBounds(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.body()[off:off+4], v)
	return nil
}

func (m *mappedFile) rU64(off int64) (uint64, error) {
	if err := m.checkBounds(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.body()[off : off+8]), nil
}

func (m *mappedFile) wU64(off int64, v uint64) error {
	if err := m.checkBounds(off, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.body()[off:off+8], v)
	return nil
}

func (m *mappedFile) rU8(off int64) (uint8, error) {
	if err := m.checkBounds(off, 1); err != nil {
		return 0, err
	}
	return m.body()[off], nil
}

func (m *mappedFile) wU8(off int64, v uint8) error {
	if err := m.checkBounds(off, 1); err != nil {
		return err
	}
	m.body()[off] = v
	return nil
}

// memeq reports whether the bytes at off equal want. bytes.Equal
// already lowers to a vectorized, architecture-specific comparison in
// the Go runtime on amd64/arm64, so there's no benefit to a hand-rolled
// byte loop here.
func (m *mappedFile) memeq(off int64, want []byte) bool {
	if len(want) == 0 {
		return false
	}
	if m.checkBounds(off, int64(len(want))) != nil {
		return false
	}
	return bytes.Equal(m.body()[off:off+int64(len(want))], want)
}

// deallocate punches a hole over [off, off+n) within the body, releasing
// underlying disk blocks without changing the logical file size.
func (m *mappedFile) deallocate(off, n int64) error {
	if n <= 0 {
		return nil
	}
	absOff := m.headerLen + off
	err := unix.Fallocate(int(m.file.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, absOff, n)
	if err != nil {
		return newErr(KindIOError, "deallocate", err)
	}
	return nil
}

// remap grows or shrinks the mapping so the body is exactly newBodyLen
// bytes, truncating or extending the backing file as needed. Any byte
// slice returned by a previous read accessor is invalid after this call.
func (m *mappedFile) remap(newBodyLen int64) error {
	newTotal := m.headerLen + newBodyLen
	oldTotal := m.headerLen + m.bodyLen
	if newTotal == oldTotal {
		return nil
	}

	if err := m.file.Truncate(newTotal); err != nil {
		return newErr(KindIOError, "remap", err)
	}

	newData, err := m.mremap(int(newTotal))
	if err != nil {
		return newErr(KindMapError, "remap", err)
	}

	m.data = newData
	m.bodyLen = newBodyLen
	return nil
}

// mremap enlarges or relocates the mapping to newTotal bytes using
// Linux's mremap with MREMAP_MAYMOVE, falling back to an unmap+remap
// sequence when mremap is unavailable.
func (m *mappedFile) mremap(newTotal int) ([]byte, error) {
	newData, err := unix.Mremap(m.data, newTotal, unix.MREMAP_MAYMOVE)
	if err == nil {
		return newData, nil
	}

	if err := unix.Munmap(m.data); err != nil {
		return nil, err
	}
	return syscall.Mmap(int(m.file.Fd()), 0, newTotal, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

// flush synchronizes the mapping to disk.
func (m *mappedFile) flush() error {
	if m.data == nil {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// close flushes and unmaps the file, then closes the descriptor.
func (m *mappedFile) close() error {
	if m.data == nil {
		return m.file.Close()
	}
	if err := m.flush(); err != nil {
		return err
	}
	if err := syscall.Munmap(m.data); err != nil {
		return err
	}
	m.data = nil
	return m.file.Close()
}
