package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangekit/depot/pkg/errdefs"
)

var testMetadata = Metadata{
	Name:     "some-package-name",
	Version:  "0.1.0",
	Checksum: "aa30b1cc05c10ac8a1f309e3de09de484c6de1dc7c226e2cf8e1a518369b1d73",
	Size:     1742,
}

func encodePayload(t *testing.T, md Metadata, toml, readme, arch []byte) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	require.NoError(t, enc.WriteMetadata(md))
	require.NoError(t, enc.WriteBytes(toml))
	require.NoError(t, enc.WriteBytes(readme))
	require.NoError(t, enc.WriteFile(uint64(len(arch)), bytes.NewReader(arch)))
	return buf
}

func TestRoundTrip(t *testing.T) {
	toml := []byte("[package]\nname = \"p\"\n")
	readme := []byte("# readme")
	arch := bytes.Repeat([]byte{0xde, 0xad}, 3*ChunkSize/2)

	dec := NewDecoder(encodePayload(t, testMetadata, toml, readme, arch))

	md, err := dec.NextMetadata()
	require.NoError(t, err)
	assert.Equal(t, testMetadata, md)

	tomlLen, err := dec.NextUint64()
	require.NoError(t, err)
	gotToml, err := dec.NextFileBytes(tomlLen)
	require.NoError(t, err)
	assert.Equal(t, toml, gotToml)

	readmeLen, err := dec.NextUint64()
	require.NoError(t, err)
	gotReadme, err := dec.NextFileBytes(readmeLen)
	require.NoError(t, err)
	assert.Equal(t, readme, gotReadme)

	archLen, err := dec.NextUint64()
	require.NoError(t, err)
	sink := &bytes.Buffer{}
	require.NoError(t, dec.StreamFile(archLen, sink))
	assert.Equal(t, arch, sink.Bytes())
}

func TestRoundTripWithoutReadme(t *testing.T) {
	dec := NewDecoder(encodePayload(t, testMetadata, []byte("toml"), nil, []byte("archive")))

	_, err := dec.NextMetadata()
	require.NoError(t, err)
	tomlLen, err := dec.NextUint64()
	require.NoError(t, err)
	_, err = dec.NextFileBytes(tomlLen)
	require.NoError(t, err)

	readmeLen, err := dec.NextUint64()
	require.NoError(t, err)
	assert.Zero(t, readmeLen)

	archLen, err := dec.NextUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), archLen)
}

func TestMetadataPrefixIsFourBytesLittleEndian(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewEncoder(buf).WriteMetadata(testMetadata))

	raw := buf.Bytes()
	length := binary.LittleEndian.Uint32(raw[:4])
	assert.Equal(t, int(length), len(raw)-4)
	assert.Contains(t, string(raw[4:]), `"name":"some-package-name"`)
}

func TestTruncatedMetadata(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewEncoder(buf).WriteMetadata(testMetadata))
	truncated := bytes.NewReader(buf.Bytes()[:8])

	_, err := NewDecoder(truncated).NextMetadata()
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrUnprocessable)
}

func TestTruncatedFileFrame(t *testing.T) {
	dec := NewDecoder(strings.NewReader("abc"))
	_, err := dec.NextFileBytes(10)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrUnprocessable)
}

func TestTruncatedLengthFrame(t *testing.T) {
	dec := NewDecoder(strings.NewReader("abc"))
	_, err := dec.NextUint64()
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrUnprocessable)
}

func TestStreamFileShort(t *testing.T) {
	dec := NewDecoder(strings.NewReader("abc"))
	err := dec.StreamFile(10, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrUnprocessable)
}

func TestInvalidMetadataJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := []byte("{not json")
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	buf.Write(prefix[:])
	buf.Write(payload)

	_, err := NewDecoder(buf).NextMetadata()
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrInvalidParameter)
}

func TestMetadataValidate(t *testing.T) {
	assert.NoError(t, testMetadata.Validate())

	bad := testMetadata
	bad.Name = "white space"
	assert.Error(t, bad.Validate())

	bad = testMetadata
	bad.Version = "not-semver"
	assert.Error(t, bad.Validate())

	bad = testMetadata
	bad.Checksum = "ABCD"
	assert.Error(t, bad.Validate())

	bad = testMetadata
	bad.Checksum = strings.ToUpper(bad.Checksum)
	assert.Error(t, bad.Validate())
}
