package wire

import (
	"encoding/binary"
	"io"

	"github.com/kestrelworks/ecs/typeset"
)

// WriteTypeSet writes s as a u64 byte length followed by that many bytes.
// An empty set is written as a zero-length body, which readers treat as
// the archetype-stream termination sentinel.
func WriteTypeSet(w io.Writer, s typeset.TypeSet) error {
	body := s.Bytes()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadTypeSet reads a type-set written by WriteTypeSet.
func ReadTypeSet(r io.Reader) (typeset.TypeSet, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return typeset.TypeSet{}, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n == 0 {
		return typeset.TypeSet{}, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return typeset.TypeSet{}, err
	}
	return typeset.FromBytes(body), nil
}

// IsSentinel reports whether s is the empty-set archetype-stream
// terminator.
func IsSentinel(s typeset.TypeSet) bool {
	return s.IsEmpty()
}
