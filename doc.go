/*
Package levelhash provides a persistent key/value index implemented as a
two-level, cuckoo-style hash table backed by memory-mapped files.

The table is organized as two levels, a top level L0 of 2^s buckets and a
bottom level L1 of 2^(s-1) buckets, each bucket holding a fixed number of
slots. A key maps to two candidate buckets per level under two independent
64-bit hash functions, giving it 4*bucket_size candidate slots across both
levels before an insertion is forced to displace an existing occupant or
fail. This keeps lookups at a small constant number of probes even at high
load, and lets the table grow by rewriting only the (half-sized) bottom
level instead of rehashing everything.

Basic usage:

	import "github.com/kianoush-sadeghi/levelhash"

	opts := levelhash.DefaultOptions("/var/lib/myapp", "users")
	h, err := levelhash.Open(opts)
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	err = h.Put([]byte("alice"), []byte("engineer"))
	val, err := h.Get([]byte("alice"))

On-disk layout:

Given a directory D and name N, Open creates (or opens) four files:
D/N.index (the values store), D/N.index._keymap (the keymap),
D/N.index._meta (a fixed-size meta record), and D/N.index.lock (a
zero-byte sidecar used only to hold an advisory exclusive lock).

Concurrency:

A Handle supports a single writer at a time; a second Open of the same
directory+name fails immediately rather than blocking. A Handle itself is
not safe for concurrent use by multiple goroutines without external
synchronization — every operation assumes exclusive access, mirroring the
single-writer model of the on-disk format itself.
*/
package levelhash
