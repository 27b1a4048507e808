// Command levelhashdemo inserts a batch of keys into a fresh index,
// reads some of them back, updates one, and reports the elapsed time.
package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kianoush-sadeghi/levelhash"
)

func main() {
	dir, err := os.MkdirTemp("", "levelhashdemo")
	if err != nil {
		log.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	opts := levelhash.DefaultOptions(dir, "demo")
	h, err := levelhash.Open(opts)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer h.Close()

	fmt.Println("index opened:", h)

	const n = 10_000
	start := time.Now()
	for i := 0; i < n; i++ {
		key := make([]byte, 8)
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(i))
		binary.BigEndian.PutUint64(value, uint64(i*100))
		if err := h.Put(key, value); err != nil {
			log.Fatalf("put %d: %v", i, err)
		}
	}
	fmt.Printf("inserted %d pairs in %s\n", n, time.Since(start))

	for i := 0; i < 15; i += 2 {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(i))
		value, err := h.Get(key)
		if err != nil {
			log.Fatalf("get %d: %v", i, err)
		}
		if len(value) == 0 {
			fmt.Printf("key %d not found\n", i)
			continue
		}
		fmt.Printf("key %d => value %d\n", i, binary.BigEndian.Uint64(value))
	}

	key2 := make([]byte, 8)
	binary.BigEndian.PutUint64(key2, 2)
	newValue := make([]byte, 8)
	binary.BigEndian.PutUint64(newValue, 999)

	old, err := h.Update(key2, newValue)
	if err != nil {
		log.Fatalf("update key 2: %v", err)
	}
	fmt.Printf("updated key 2: old value %d\n", binary.BigEndian.Uint64(old))

	fmt.Println("final state:", h)
}
