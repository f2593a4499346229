// Package wire implements the length-prefixed framing of the upload body.
//
// The on-wire order is: a 4-byte little-endian length followed by the JSON
// metadata, then for each of the manifest, the optional README, and the
// archive an 8-byte little-endian length followed by that many bytes. A
// README length of zero means the README is absent.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"regexp"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/manifest"
	"github.com/rangekit/depot/pkg/util/xio"
)

const (
	// ChunkSize is the read granularity for framed file payloads.
	ChunkSize = 64 * xio.KiB

	// maxMetadataBytes bounds the metadata frame. Metadata is a small
	// JSON object; anything larger is a malformed stream.
	maxMetadataBytes = 1 * xio.MiB
)

var checksumPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Metadata is the first frame of every upload.
type Metadata struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
	Size     uint64 `json:"size"`
}

// Validate checks that the metadata identifies a well-formed package.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "package name is empty")
	}
	if err := manifest.ValidateName(m.Name); err != nil {
		return err
	}
	if m.Version == "" {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "package version is empty")
	}
	if err := manifest.ValidateVersion(m.Version); err != nil {
		return err
	}
	if !checksumPattern.MatchString(m.Checksum) {
		return errdefs.Newf(errdefs.ErrInvalidParameter,
			"package checksum must be 64 lowercase hex characters")
	}
	return nil
}

// Encoder writes frames to an output stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteMetadata writes the metadata frame: a 4-byte little-endian length
// followed by the JSON encoding.
func (e *Encoder) WriteMetadata(m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := e.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// WriteUint64 writes an 8-byte little-endian length frame.
func (e *Encoder) WriteUint64(n uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	_, err := e.w.Write(buf[:])
	return err
}

// WriteFile writes a length frame followed by exactly length bytes copied
// from r.
func (e *Encoder) WriteFile(length uint64, r io.Reader) error {
	if err := e.WriteUint64(length); err != nil {
		return err
	}
	written, err := io.Copy(e.w, io.LimitReader(r, int64(length)))
	if err != nil {
		return err
	}
	if uint64(written) != length {
		return errdefs.Newf(errdefs.ErrUnprocessable,
			"short payload: declared %d bytes, read %d", length, written)
	}
	return nil
}

// WriteBytes writes a length frame followed by the given bytes. A nil or
// empty slice writes a zero length and no payload, which marks the frame
// as absent.
func (e *Encoder) WriteBytes(data []byte) error {
	if err := e.WriteUint64(uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := e.w.Write(data)
	return err
}

// Decoder reads frames off an input stream in wire order.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// NextMetadata reads the metadata frame.
func (d *Decoder) NextMetadata() (Metadata, error) {
	var m Metadata
	var prefix [4]byte
	if err := xio.ReadFull(d.r, prefix[:]); err != nil {
		return m, errdefs.Newf(errdefs.ErrUnprocessable, "missing metadata frame: %s", err)
	}
	length := binary.LittleEndian.Uint32(prefix[:])
	if length == 0 || length > maxMetadataBytes {
		return m, errdefs.Newf(errdefs.ErrUnprocessable, "metadata frame length %d out of range", length)
	}
	data := make([]byte, length)
	if err := xio.ReadFull(d.r, data); err != nil {
		return m, errdefs.Newf(errdefs.ErrUnprocessable, "truncated metadata frame: %s", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid metadata: %s", err)
	}
	return m, nil
}

// NextUint64 reads an 8-byte little-endian length frame.
func (d *Decoder) NextUint64() (uint64, error) {
	var buf [8]byte
	if err := xio.ReadFull(d.r, buf[:]); err != nil {
		return 0, errdefs.Newf(errdefs.ErrUnprocessable, "missing length frame: %s", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// NextFileBytes reads exactly length bytes, in ChunkSize chunks.
func (d *Decoder) NextFileBytes(length uint64) ([]byte, error) {
	data := make([]byte, 0, length)
	remaining := length
	for remaining > 0 {
		n := uint64(ChunkSize)
		if remaining < n {
			n = remaining
		}
		chunk := make([]byte, n)
		if err := xio.ReadFull(d.r, chunk); err != nil {
			return nil, errdefs.Newf(errdefs.ErrUnprocessable,
				"truncated file frame: %d of %d bytes missing", remaining, length)
		}
		data = append(data, chunk...)
		remaining -= n
	}
	return data, nil
}

// StreamFile copies exactly length bytes to w.
func (d *Decoder) StreamFile(length uint64, w io.Writer) error {
	written, err := io.Copy(w, io.LimitReader(d.r, int64(length)))
	if err != nil {
		return err
	}
	if uint64(written) != length {
		return errdefs.Newf(errdefs.ErrUnprocessable,
			"truncated file frame: declared %d bytes, read %d", length, written)
	}
	return nil
}
