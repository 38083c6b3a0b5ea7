// SPDX-License-Identifier: EPL-2.0

// Package wav implements the WAV sound.Type provider: canonical
// RIFF/WAVE headers (little-endian) plus the RIFX big-endian variant,
// generalized from a fixed 16-bit-only reader/writer to any of the
// bytesPerSample widths sound.Decode/Encode support.
package wav

import (
	"encoding/binary"
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"

	"github.com/samesimilar/m5-soundfile/sound"
)

const (
	fmtPCM        = 1
	fmtIEEEFloat  = 3
	canonicalSize = 44 // RIFF+WAVE+fmt(24)+data(8), no extension chunks
)

var (
	errTruncatedHeader = errors.New("wav: truncated header")
)

// Provider implements sound.Type for WAV (and its big-endian RIFX
// sibling).
type Provider struct{}

// New returns a WAV type provider.
func New() *Provider { return &Provider{} }

func (Provider) Name() string { return "wav" }

func (Provider) MinHeaderSize() int { return canonicalSize }

func (Provider) IsHeader(buf []byte) bool {
	if len(buf) < 12 {
		return false
	}
	isRiff := string(buf[0:4]) == "RIFF" || string(buf[0:4]) == "RIFX"
	return isRiff && string(buf[8:12]) == "WAVE"
}

func endiannessOf(magic [4]byte) sound.Endianness {
	if string(magic[:]) == "RIFX" {
		return sound.BigEndian
	}
	return sound.LittleEndian
}

// ReadHeader parses a RIFF/WAVE (or RIFX/WAVE) header starting at offset
// 0 of r, walking chunks until "data" is found. Chunks other than fmt
// and data are preserved verbatim as descriptor extensions; WriteHeader
// does not write them back out.
func (Provider) ReadHeader(r io.ReaderAt, desc *sound.Descriptor) error {
	hdr := make([]byte, 12)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return errTruncatedHeader
	}
	if string(hdr[0:4]) != "RIFF" && string(hdr[0:4]) != "RIFX" {
		return sound.ErrUnknownHeader
	}
	if string(hdr[8:12]) != "WAVE" {
		return sound.ErrUnknownHeader
	}
	var magic [4]byte
	copy(magic[:], hdr[0:4])
	bo := boFor(endiannessOf(magic))

	sawFmt := false
	var bitsPerSample uint16
	var audioFormat uint16
	offset := int64(12)

	chunkHdr := make([]byte, 8)
	for {
		if _, err := r.ReadAt(chunkHdr, offset); err != nil {
			return sound.ErrMalformedHeader
		}
		chunkID := string(chunkHdr[0:4])
		chunkSize := int64(bo.Uint32(chunkHdr[4:8]))
		bodyOffset := offset + 8

		switch chunkID {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := r.ReadAt(body, bodyOffset); err != nil {
				return sound.ErrMalformedHeader
			}
			if chunkSize < 16 {
				return sound.ErrMalformedHeader
			}
			audioFormat = bo.Uint16(body[0:2])
			numChannels := int(bo.Uint16(body[2:4]))
			sampleRate := int(bo.Uint32(body[4:8]))
			bitsPerSample = bo.Uint16(body[14:16])

			if audioFormat != fmtPCM && audioFormat != fmtIEEEFloat {
				return sound.ErrUnsupportedSampleFormat
			}
			bytesPerSample := int(bitsPerSample / 8)
			switch bytesPerSample {
			case 2, 3, 4, 8:
			default:
				return sound.ErrUnsupportedSampleFormat
			}
			if audioFormat == fmtIEEEFloat && bytesPerSample != 4 && bytesPerSample != 8 {
				return sound.ErrUnsupportedSampleFormat
			}

			desc.Format = &goaudio.Format{NumChannels: numChannels, SampleRate: sampleRate}
			desc.BytesPerSample = bytesPerSample
			desc.Endianness = endiannessOf(magic)
			desc.TypeName = "wav"
			sawFmt = true

		case "data":
			if !sawFmt {
				return sound.ErrMalformedHeader
			}
			desc.HeaderSize = int(bodyOffset)
			desc.ByteLimit = chunkSize
			return nil

		default:
			body := make([]byte, chunkSize)
			if chunkSize > 0 {
				if _, err := r.ReadAt(body, bodyOffset); err == nil {
					desc.AddExtension(chunkID, body)
				}
			}
		}

		offset = bodyOffset + chunkSize
		if chunkSize%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}
}

// WriteHeader writes a fresh RIFF/WAVE (or RIFX) header for desc's
// format with nframes as a placeholder frame count: the fmt chunk
// followed by the data chunk header. Extension chunks recorded on desc
// via AddExtension are not written. It returns the header size (offset
// of the first PCM byte).
func (Provider) WriteHeader(w io.WriterAt, desc *sound.Descriptor, nframes int64) (int, error) {
	if desc.Format == nil {
		return 0, sound.ErrEmpty
	}
	bo := boFor(desc.Endianness)
	magic := "RIFF"
	if desc.Endianness == sound.BigEndian {
		magic = "RIFX"
	}

	audioFormat := uint16(fmtPCM)
	if desc.BytesPerSample == 4 || desc.BytesPerSample == 8 {
		audioFormat = fmtIEEEFloat
	}

	numChannels := uint16(desc.Format.NumChannels)
	sampleRate := uint32(desc.Format.SampleRate)
	bitsPerSample := uint16(desc.BytesPerSample * 8)
	byteRate := sampleRate * uint32(numChannels) * uint32(desc.BytesPerSample)
	blockAlign := numChannels * uint16(desc.BytesPerSample)
	dataSize := uint32(nframes * int64(desc.BytesPerFrame()))

	buf := make([]byte, 0, canonicalSize)
	buf = append(buf, magic...)
	buf = appendUint32(buf, bo, 0) // riff size patched below
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = appendUint32(buf, bo, 16)
	buf = appendUint16(buf, bo, audioFormat)
	buf = appendUint16(buf, bo, numChannels)
	buf = appendUint32(buf, bo, sampleRate)
	buf = appendUint32(buf, bo, byteRate)
	buf = appendUint16(buf, bo, blockAlign)
	buf = appendUint16(buf, bo, bitsPerSample)

	buf = append(buf, "data"...)
	buf = appendUint32(buf, bo, dataSize)

	riffSize := uint32(len(buf)-8) + dataSize
	bo.PutUint32(buf[4:8], riffSize)

	if _, err := w.WriteAt(buf, 0); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// UpdateHeader rewrites the RIFF and data chunk sizes once the final
// frame count is known.
func (Provider) UpdateHeader(w io.WriterAt, desc *sound.Descriptor, framesWritten int64) error {
	if desc.Format == nil {
		return sound.ErrEmpty
	}
	bo := boFor(desc.Endianness)
	dataSize := uint32(framesWritten * int64(desc.BytesPerFrame()))
	riffSize := uint32(desc.HeaderSize-8) + dataSize

	b4 := make([]byte, 4)
	bo.PutUint32(b4, riffSize)
	if _, err := w.WriteAt(b4, 4); err != nil {
		return err
	}
	bo.PutUint32(b4, dataSize)
	if _, err := w.WriteAt(b4, int64(desc.HeaderSize-4)); err != nil {
		return err
	}
	return nil
}

// EndiannessPolicy honors the request as-is: WAV natively supports both
// little-endian (RIFF) and big-endian (RIFX) layouts for every sample
// width this package handles.
func (Provider) EndiannessPolicy(requested sound.Endianness, bytesPerSample int) sound.Endianness {
	return requested
}

func boFor(e sound.Endianness) binary.ByteOrder {
	if e == sound.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func appendUint32(buf []byte, bo binary.ByteOrder, v uint32) []byte {
	var b [4]byte
	bo.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint16(buf []byte, bo binary.ByteOrder, v uint16) []byte {
	var b [2]byte
	bo.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
