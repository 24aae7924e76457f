package compact

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// FormatVersion is bumped whenever the encoded layout of Artifact changes.
const FormatVersion uint16 = 1

var magic = [4]byte{'M', 'N', 'S', 'C'}

var (
	ErrBadMagic = errors.New("not a compact model artifact")
	ErrVersion  = errors.New("unsupported compact artifact version")
)

// Encode writes the magic, the format version and the snappy compressed gob of a.
func Encode(a *Artifact, w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, FormatVersion); err != nil {
		return fmt.Errorf("error writing format version: %w", err)
	}
	sw := snappy.NewBufferedWriter(w)
	if err := gob.NewEncoder(sw).Encode(a); err != nil {
		return fmt.Errorf("error encoding compact model: %w", err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("error flushing compact model: %w", err)
	}
	return nil
}

// Decode reads an artifact written by Encode and validates its graph.
func Decode(r io.Reader) (*Artifact, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if !bytes.Equal(header[:], magic[:]) {
		return nil, ErrBadMagic
	}
	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("error reading format version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	a := &Artifact{}
	if err := gob.NewDecoder(snappy.NewReader(r)).Decode(a); err != nil {
		return nil, fmt.Errorf("error decoding compact model: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compact model: %w", err)
	}
	return a, nil
}
