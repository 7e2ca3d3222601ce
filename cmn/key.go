package cmn

import (
	"fmt"
	"strings"
)

// MaxKeyStringBytes is the largest a single key component (row or
// column) may be once packed for the wire or for pup().
const MaxKeyStringBytes = 255

// Key names a data object by a (row, column) pair. The column may be
// empty. A trailing '*' on either component is a prefix wildcard used
// only in read/drop/list queries, never in a stored key.
type Key struct {
	K1 string // row
	K2 string // column
}

func NewKey(k1 string) Key             { return Key{K1: k1} }
func NewKey2(k1, k2 string) Key        { return Key{K1: k1, K2: k2} }

func (k Key) String() string { return k.K1 + "|" + k.K2 }

// Valid reports whether the key has at least a row name.
func (k Key) Valid() bool { return len(k.K1) > 0 }

func (k Key) IsRowWildcard() bool { return strings.HasSuffix(k.K1, "*") }
func (k Key) IsColWildcard() bool { return strings.HasSuffix(k.K2, "*") }
func (k Key) IsWildcard() bool    { return k.IsRowWildcard() || k.IsColWildcard() }

// Less orders keys lexicographically on (K1, K2), per spec §3.
func (k Key) Less(o Key) bool {
	if k.K1 != o.K1 {
		return k.K1 < o.K1
	}
	return k.K2 < o.K2
}

func (k Key) Equal(o Key) bool { return k.K1 == o.K1 && k.K2 == o.K2 }

// MatchesPrefixString is the power-user match: the caller has already
// decided whether each component is a prefix match and has stripped
// any trailing '*'. An empty prefix with rowIsPrefix/colIsPrefix set
// matches everything for that component.
func (k Key) MatchesPrefixString(rowIsPrefix bool, rowMatch string, colIsPrefix bool, colMatch string) bool {
	if rowIsPrefix {
		if rowMatch != "" && !strings.HasPrefix(k.K1, rowMatch) {
			return false
		}
	} else if k.K1 != rowMatch {
		return false
	}
	if colIsPrefix {
		if colMatch != "" && !strings.HasPrefix(k.K2, colMatch) {
			return false
		}
	} else if k.K2 != colMatch {
		return false
	}
	return true
}

// Matches checks k against a pattern where either component may carry
// a trailing '*' wildcard.
func (k Key) Matches(rowPattern, colPattern string) bool {
	rowIsWild := strings.HasSuffix(rowPattern, "*")
	colIsWild := strings.HasSuffix(colPattern, "*")
	rowPrefix, colPrefix := rowPattern, colPattern
	if rowIsWild {
		rowPrefix = rowPattern[:len(rowPattern)-1]
	}
	if colIsWild {
		colPrefix = colPattern[:len(colPattern)-1]
	}
	return k.MatchesPrefixString(rowIsWild, rowPrefix, colIsWild, colPrefix)
}

func (k Key) MatchesKey(pattern Key) bool { return k.Matches(pattern.K1, pattern.K2) }

// Pup packs the key into the wire/disk form: k1 bytes, then k2 bytes,
// then two trailing length bytes (k1 size, k2 size). This mirrors
// kelpie's DIY pack/unpack pair used where a full archive is overkill.
func (k Key) Pup() (string, error) {
	if len(k.K1) > MaxKeyStringBytes || len(k.K2) > MaxKeyStringBytes {
		return "", fmt.Errorf("kelpie: cannot pack key with a component larger than %d bytes", MaxKeyStringBytes)
	}
	var b strings.Builder
	b.Grow(len(k.K1) + len(k.K2) + 2)
	b.WriteString(k.K1)
	b.WriteString(k.K2)
	b.WriteByte(byte(len(k.K1)))
	b.WriteByte(byte(len(k.K2)))
	return b.String(), nil
}

// Unpup reverses Pup.
func Unpup(packed string) (Key, error) {
	var s0, s1 int
	if len(packed) > 2 {
		i := len(packed) - 1
		s1 = int(packed[i])
		i--
		s0 = int(packed[i])
	}
	if s0+s1+2 > len(packed) {
		return Key{}, fmt.Errorf("kelpie: error unpacking key: declared sizes exceed packed length")
	}
	var k Key
	if s0 > 0 {
		k.K1 = packed[0:s0]
	}
	if s1 > 0 {
		k.K2 = packed[s0 : s0+s1]
	}
	return k, nil
}
