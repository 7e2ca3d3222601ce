package cmn

import (
	"fmt"
	"strconv"
	"strings"
)

// bucketNullVal is djb2's traditional seed (5381); it also doubles as
// the hash of the empty string, which is why Bucket 0 is reserved for
// "unspecified" rather than being a hashable value (see spec §3).
const bucketNullVal uint32 = 5381

// BucketUnspecified is the reserved "no bucket set" value.
const BucketUnspecified Bucket = 0

// Bucket is a 32-bit namespace salt that partitions the keyspace.
// Two keys with the same (row, column) in different buckets are
// distinct cells in the LKV.
type Bucket uint32

// NewBucket hashes name with djb2 (Dan Bernstein's hash,
// http://www.cse.yorku.ca/~oz/hash.html), unless name is a "0x..."
// literal, in which case it is parsed directly.
func NewBucket(name string) (Bucket, error) {
	if strings.HasPrefix(name, "0x") {
		if len(name) > 10 {
			return 0, fmt.Errorf("kelpie: hex bucket literal exceeds uint32 capacity: %q", name)
		}
		v, err := strconv.ParseUint(name[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("kelpie: invalid hex bucket literal %q: %w", name, err)
		}
		return Bucket(v), nil
	}
	hash := bucketNullVal
	for i := 0; i < len(name); i++ {
		hash = (hash<<5 + hash) + uint32(name[i]) // hash*33 + c
	}
	return Bucket(hash), nil
}

// MustBucket is NewBucket but panics on parse failure; reserved for
// callers passing compile-time-constant names.
func MustBucket(name string) Bucket {
	b, err := NewBucket(name)
	if err != nil {
		panic(err)
	}
	return b
}

func (b Bucket) String() string { return fmt.Sprintf("0x%08x", uint32(b)) }

func (b Bucket) IsUnspecified() bool { return b == BucketUnspecified }
