package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
)

// header is the on-disk preamble of the binary project format: an 8-byte
// magic identifier, a major/minor version pair, and an optional metadata
// blob. This is a protobuf-analog wire form, not an actual protoc-generated
// encoding; no .proto toolchain runs as part of this build.
type header struct {
	Identifier   [8]byte
	MajorVersion uint16
	MinorVersion uint16
	MetaData     []byte
}

func init() {
	// View.Elements is an opaque map[string]any; gob requires concrete types
	// stored behind an interface to be registered, so the shapes
	// encoding/json itself produces when a view round-trips through the
	// native JSON format are registered here too.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(true)
}

// simlinBinaryMagic identifies a simlin binary project file.
var simlinBinaryMagic = [8]byte{'s', 'i', 'm', 'l', 'i', 'n', 'p', 'b'}

// binaryMajorVersion must match exactly for a file to be considered
// compatible; binaryMinorVersion may be less than or equal to the version
// this build writes.
const (
	binaryMajorVersion uint16 = 1
	binaryMinorVersion uint16 = 0
)

func (h *header) marshalBinary() []byte {
	var buf bytes.Buffer
	var major, minor [2]byte
	var metaLen [4]byte
	binary.BigEndian.PutUint16(major[:], h.MajorVersion)
	binary.BigEndian.PutUint16(minor[:], h.MinorVersion)
	binary.BigEndian.PutUint32(metaLen[:], uint32(len(h.MetaData)))
	buf.Write(h.Identifier[:])
	buf.Write(major[:])
	buf.Write(minor[:])
	buf.Write(metaLen[:])
	buf.Write(h.MetaData)
	return buf.Bytes()
}

func (h *header) unmarshalBinary(buf *bytes.Buffer) error {
	var majorB, minorB [2]byte
	var metaLenB [4]byte
	if n, err := buf.Read(h.Identifier[:]); err != nil || n != len(h.Identifier) {
		return fmt.Errorf("malformed simlin binary file: short identifier")
	}
	if n, err := buf.Read(majorB[:]); err != nil || n != len(majorB) {
		return fmt.Errorf("malformed simlin binary file: short major version")
	}
	if n, err := buf.Read(minorB[:]); err != nil || n != len(minorB) {
		return fmt.Errorf("malformed simlin binary file: short minor version")
	}
	if n, err := buf.Read(metaLenB[:]); err != nil || n != len(metaLenB) {
		return fmt.Errorf("malformed simlin binary file: short metadata length")
	}
	meta := make([]byte, binary.BigEndian.Uint32(metaLenB[:]))
	if n, err := buf.Read(meta); err != nil || n != len(meta) {
		return fmt.Errorf("malformed simlin binary file: short metadata")
	}
	h.MajorVersion = binary.BigEndian.Uint16(majorB[:])
	h.MinorVersion = binary.BigEndian.Uint16(minorB[:])
	h.MetaData = meta
	return nil
}

func (h *header) isCompatible() bool {
	return h.Identifier == simlinBinaryMagic &&
		h.MajorVersion == binaryMajorVersion &&
		h.MinorVersion <= binaryMinorVersion
}

// IsBinary reports whether data begins with the simlin binary magic,
// letting a caller dispatch between OpenProtobuf-style binary bytes and
// native JSON bytes without first attempting (and failing) a parse.
func IsBinary(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	var magic [8]byte
	copy(magic[:], data[:8])
	return magic == simlinBinaryMagic
}

// MarshalBinary serializes p into the versioned binary wire form: a
// header followed by a gob-encoded payload. Only the header is hand-rolled;
// the variable-shaped payload goes through a standard encoder.
func MarshalBinary(p *model.Project) ([]byte, error) {
	var buf bytes.Buffer
	h := header{Identifier: simlinBinaryMagic, MajorVersion: binaryMajorVersion, MinorVersion: binaryMinorVersion}
	buf.Write(h.marshalBinary())
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(toProjectJSON(p)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses bytes produced by MarshalBinary, reporting
// ProtobufDecode on any structural failure: bad magic,
// incompatible version, or a corrupt payload.
func UnmarshalBinary(data []byte) (*model.Project, *serr.Error) {
	buf := bytes.NewBuffer(data)
	var h header
	if err := h.unmarshalBinary(buf); err != nil {
		return nil, serr.New(serr.ProtobufDecode, err.Error())
	}
	if !h.isCompatible() {
		return nil, serr.Newf(serr.ProtobufDecode, "incompatible simlin binary file v%d.%d (expected v%d.%d)",
			h.MajorVersion, h.MinorVersion, binaryMajorVersion, binaryMinorVersion)
	}
	var pj projectJSON
	dec := gob.NewDecoder(buf)
	if err := dec.Decode(&pj); err != nil {
		return nil, serr.New(serr.ProtobufDecode, "corrupt simlin binary payload: "+err.Error())
	}
	return fromProjectJSON(pj), nil
}

// OpenXMILE is the hook point an embedder's XMILE importer plugs into.
// It is
// not implemented here; it returns a stable XmlDeserialization error so
// callers get a predictable code rather than a missing symbol.
func OpenXMILE(_ []byte) (*model.Project, *serr.Error) {
	return nil, serr.New(serr.XmlDeserialization, "XMILE import is handled outside the core engine")
}

// OpenVensim is the analogous hook point for Vensim MDL ingestion.
func OpenVensim(_ []byte) (*model.Project, *serr.Error) {
	return nil, serr.New(serr.VensimConversion, "Vensim import is handled outside the core engine")
}
