package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/value"
)

// SimzVersion is the current .simz format version.
const SimzVersion = 1

// SimzHeader is the first line of a .simz stream.
type SimzHeader struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`
	Digest  string `json:"digest"`
}

// EncodeDescriptor returns the canonical JSON form of d and its digest
// under value.DomainDescriptor. Descriptors that differ only in key order
// or whitespace encode identically.
func EncodeDescriptor(d content.Descriptor) ([]byte, string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, "", fmt.Errorf("encode descriptor: %w", err)
	}
	v, err := value.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("encode descriptor: %w", err)
	}
	canon, err := value.Canonical(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode descriptor: %w", err)
	}
	digest, err := value.Digest(value.DomainDescriptor, v)
	if err != nil {
		return nil, "", fmt.Errorf("encode descriptor: %w", err)
	}
	return canon, digest, nil
}

// DescriptorDigest is the digest half of EncodeDescriptor.
func DescriptorDigest(d content.Descriptor) (string, error) {
	_, digest, err := EncodeDescriptor(d)
	return digest, err
}

// WriteSimz writes d to w as a zstd stream: a JSON header line followed
// by the canonical descriptor.
func WriteSimz(w io.Writer, d content.Descriptor) error {
	body, digest, err := EncodeDescriptor(d)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("simz: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(SimzHeader{Version: SimzVersion, Name: d.Name, Digest: digest})
	if err != nil {
		enc.Close()
		return fmt.Errorf("simz header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return fmt.Errorf("simz: %w", err)
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return fmt.Errorf("simz: %w", err)
	}
	if _, err := bw.Write(body); err != nil {
		enc.Close()
		return fmt.Errorf("simz: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("simz: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("simz: %w", err)
	}
	return nil
}

// ReadSimz decodes a stream written by WriteSimz. The body digest must
// match the header.
func ReadSimz(r io.Reader) (SimzHeader, content.Descriptor, error) {
	var hdr SimzHeader
	var d content.Descriptor

	dec, err := zstd.NewReader(r)
	if err != nil {
		return hdr, d, fmt.Errorf("simz: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, d, fmt.Errorf("simz header: %w", err)
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &hdr); err != nil {
		return hdr, d, fmt.Errorf("simz header: %w", err)
	}
	if hdr.Version != SimzVersion {
		return hdr, d, fmt.Errorf("simz: unsupported version %d", hdr.Version)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return hdr, d, fmt.Errorf("simz body: %w", err)
	}
	if err := json.Unmarshal(body, &d); err != nil {
		return hdr, d, fmt.Errorf("simz body: %w", err)
	}
	digest, err := DescriptorDigest(d)
	if err != nil {
		return hdr, d, err
	}
	if digest != hdr.Digest {
		return hdr, d, fmt.Errorf("simz: digest mismatch: header %s, body %s", hdr.Digest, digest)
	}
	return hdr, d, nil
}

// WriteSimzFile writes d to path, creating parent directories.
func WriteSimzFile(path string, d content.Descriptor) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := WriteSimz(f, d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSimzFile reads a descriptor written by WriteSimzFile.
func ReadSimzFile(path string) (content.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return content.Descriptor{}, err
	}
	defer f.Close()
	_, d, err := ReadSimz(f)
	return d, err
}

// compress and decompress handle snapshot blobs, which carry no header.
var (
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	blobDecoder, _ = zstd.NewReader(nil)
)

func compress(b []byte) []byte {
	return blobEncoder.EncodeAll(b, make([]byte, 0, len(b)/2))
}

func decompress(b []byte) ([]byte, error) {
	out, err := blobDecoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
