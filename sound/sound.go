// SPDX-License-Identifier: EPL-2.0

// Package sound defines the sound-file type-provider contract: a small
// interface every file format implements (WAV today; the registry is
// open to more), plus the Descriptor every provider fills in and the
// ordered registry that resolves a header to the right provider.
package sound

import (
	"io"
	"sync"

	goaudio "github.com/go-audio/audio"
)

// Endianness selects the byte order PCM samples are transferred in.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// Descriptor holds everything a stream needs to know about an open
// sound file: its PCM layout (via the embedded go-audio Format) plus the
// byte-level facts a type provider fills in from the header.
type Descriptor struct {
	*goaudio.Format

	// TypeName is the provider that produced this descriptor (e.g. "wav").
	TypeName string

	// BytesPerSample is the on-disk sample width: 2, 3, 4, or 8.
	BytesPerSample int

	// Endianness is the on-disk byte order of each sample.
	Endianness Endianness

	// HeaderSize is the number of bytes occupied by the header,
	// including any extension chunks.
	HeaderSize int

	// ByteLimit is the number of PCM data bytes available after the
	// header (the usable data-chunk length).
	ByteLimit int64

	extensions map[string][]byte
}

// NewDescriptor creates an empty descriptor with a zero-valued Format
// ready for a provider to fill in via ReadHeader or WriteHeader.
func NewDescriptor() *Descriptor {
	return &Descriptor{Format: &goaudio.Format{}, extensions: make(map[string][]byte)}
}

// TotalFrames returns the number of whole PCM frames covered by
// ByteLimit, given the descriptor's channel count and sample width.
func (d *Descriptor) TotalFrames() int64 {
	bpf := d.BytesPerFrame()
	if bpf <= 0 {
		return 0
	}
	return d.ByteLimit / int64(bpf)
}

// BytesPerFrame is BytesPerSample times the channel count.
func (d *Descriptor) BytesPerFrame() int {
	if d.Format == nil {
		return 0
	}
	return d.BytesPerSample * d.Format.NumChannels
}

// HasExtension reports whether a named extension chunk has been
// recorded on this descriptor (e.g. during ReadHeader or AddExtension).
func (d *Descriptor) HasExtension(name string) bool {
	_, ok := d.extensions[name]
	return ok
}

// AddExtension records an extension chunk's raw payload under name. The
// WAV provider's WriteHeader does not write recorded extensions.
func (d *Descriptor) AddExtension(name string, payload []byte) {
	if d.extensions == nil {
		d.extensions = make(map[string][]byte)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	d.extensions[name] = cp
}

// Extension returns a previously recorded extension chunk's payload.
func (d *Descriptor) Extension(name string) ([]byte, bool) {
	b, ok := d.extensions[name]
	return b, ok
}

// Type is the contract every sound file format implements: the ability
// to recognize its own header, read one into a Descriptor, and write a
// fresh one out (with a later update once the frame count is known).
type Type interface {
	// Name is the provider's registry key, e.g. "wav".
	Name() string

	// MinHeaderSize is the minimum number of bytes IsHeader needs to
	// make a determination.
	MinHeaderSize() int

	// IsHeader reports whether buf looks like this provider's header.
	IsHeader(buf []byte) bool

	// ReadHeader parses a header from r into desc, filling in channels,
	// sample rate, bytes-per-sample, endianness, header size, and byte
	// limit.
	ReadHeader(r io.ReaderAt, desc *Descriptor) error

	// WriteHeader writes a fresh header for desc's format, with
	// nframes as the initial (placeholder) frame count, and returns the
	// header size written.
	WriteHeader(w io.WriterAt, desc *Descriptor, nframes int64) (headerSize int, err error)

	// UpdateHeader rewrites the frame-count-dependent fields of an
	// already-written header once framesWritten is final.
	UpdateHeader(w io.WriterAt, desc *Descriptor, framesWritten int64) error

	// EndiannessPolicy resolves a requested endianness against what
	// this provider's format and bytesPerSample can actually carry.
	EndiannessPolicy(requested Endianness, bytesPerSample int) Endianness
}

// Registry is the ordered, first-match type-provider table. Index 0 is
// the default provider used when a stream's open message names no
// explicit type.
type Registry struct {
	mu    sync.Mutex
	types []Type
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a provider to the end of the ordered list. The
// first-registered provider is the default.
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, t)
}

// Default returns the first-registered provider, or nil if none is
// registered.
func (r *Registry) Default() Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.types) == 0 {
		return nil
	}
	return r.types[0]
}

// Lookup resolves a provider by its registered name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// MinHeaderSize is the maximum MinHeaderSize over every registered
// provider, i.e. the number of bytes a caller must read before calling
// Resolve.
func (r *Registry) MinHeaderSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, t := range r.types {
		if n := t.MinHeaderSize(); n > max {
			max = n
		}
	}
	return max
}

// Resolve returns the first registered provider whose IsHeader matches
// buf, in registration order.
func (r *Registry) Resolve(buf []byte) (Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t.IsHeader(buf) {
			return t, nil
		}
	}
	return nil, ErrUnknownHeader
}
