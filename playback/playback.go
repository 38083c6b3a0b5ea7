// SPDX-License-Identifier: EPL-2.0

// Package playback implements the sample-accurate playback engine: a
// state machine driven by realtime audio blocks, backed by a
// background worker goroutine that performs the actual file I/O.
package playback

import (
	"errors"
	"io"
	"math"
	"os"
	"sync"

	"github.com/samesimilar/m5-soundfile/anchor"
	"github.com/samesimilar/m5-soundfile/ftc"
	"github.com/samesimilar/m5-soundfile/host"
	"github.com/samesimilar/m5-soundfile/ringfifo"
	"github.com/samesimilar/m5-soundfile/sound"
)

// State is one node of the playback state machine.
type State int

const (
	StateIdle State = iota
	StateStartup
	StateStartup2
	StateStream
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStartup:
		return "startup"
	case StateStartup2:
		return "startup2"
	case StateStream:
		return "stream"
	default:
		return "unknown"
	}
}

type requestCode int

const (
	reqNone requestCode = iota
	reqOpen
	reqClose
	reqQuit
	reqBusy
)

// Sentinels for start/end time and loop length, mirroring the
// original's START_NOW/END_AT_LOOP/END_NEVER/LOOP_SELF markers.
const (
	StartNow  int64 = math.MinInt64
	EndAtLoop int64 = math.MaxInt64
	EndNever  int64 = math.MaxInt64 - 1
	loopSelf  int64 = -1
)

const readSize = 65536

var (
	// ErrNegativeStart rejects an explicit start FTC that is negative.
	ErrNegativeStart = errors.New("playback: start time must not be negative")
	// ErrIncompatibleState is returned when a message arrives in a
	// state that cannot act on it; the caller is told, but the stream's
	// state is left unchanged.
	ErrIncompatibleState = errors.New("playback: message ignored in current state")
	// ErrBusy is returned by Open when a previous Open's worker-side
	// doOpen is still in flight.
	ErrBusy = errors.New("playback: open already in progress")
)

// Options configures a playback stream at construction.
type Options struct {
	OutputChannels int
	BlockFrames    int
	FifoBytes      int
}

// Stream is one playback engine instance: one realtime-thread side
// (Process) and one background worker goroutine, coordinated by a
// single mutex and two condition variables.
type Stream struct {
	mu           sync.Mutex
	requestCond  *sync.Cond
	answerCond   *sync.Cond
	caps         host.Capabilities
	registry     *sound.Registry
	opts         Options
	quit         bool
	workerExited chan struct{}

	state       State
	requestCode requestCode
	err         error

	typeProvider sound.Type
	desc         *sound.Descriptor
	filename     string
	onsetFrames  int64

	fd   *os.File
	fifo *ringfifo.Fifo

	totalFrames        int64
	totalFramesKnown   bool
	totalFramesEmitted bool

	startTime int64
	endTime   int64

	loopLength       int64
	loopLengthIsSelf bool
	loopStart        int64
	loopParamsChange bool

	tailTime        int64
	headTimeRequest int64
	eof             bool

	anchorRef       *anchor.Anchor
	localAnchorSet  bool
	localAnchorZero uint64

	refillCountdown int
	refillPeriod    int

	initialOffset int64
	seekMax       int64
	nextSeek      int64
}

// New creates a playback stream bound to caps and registry, with its
// worker goroutine started and idle.
func New(caps host.Capabilities, registry *sound.Registry, opts Options) *Stream {
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = 64
	}
	if opts.OutputChannels <= 0 {
		opts.OutputChannels = 1
	}
	if opts.FifoBytes <= 0 {
		opts.FifoBytes = 262144
	}
	s := &Stream{
		caps:         caps,
		registry:     registry,
		opts:         opts,
		state:        StateIdle,
		startTime:    StartNow,
		endTime:      EndNever,
		loopStart:    0,
		workerExited: make(chan struct{}),
	}
	s.requestCond = sync.NewCond(&s.mu)
	s.answerCond = sync.NewCond(&s.mu)
	go s.workerLoop()
	return s
}

// Close requests the worker to quit and blocks until it has exited.
func (s *Stream) Close() {
	s.mu.Lock()
	s.quit = true
	s.requestCode = reqQuit
	s.requestCond.Signal()
	s.mu.Unlock()
	<-s.workerExited
}

// Open arms the stream to play typeName (empty for auto-detect
// resolved from the file's own header) at filename, skipping
// onsetFrames sample frames.
func (s *Stream) Open(typeName, filename string, onsetFrames int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requestCode == reqBusy {
		return ErrBusy
	}

	if typeName != "" {
		t, ok := s.registry.Lookup(typeName)
		if !ok {
			return sound.ErrUnknownHeader
		}
		s.typeProvider = t
	} else {
		s.typeProvider = nil // resolved from header at open time
	}
	s.filename = filename
	s.onsetFrames = onsetFrames
	s.totalFramesKnown = false
	s.totalFramesEmitted = false
	s.state = StateStartup
	s.requestCode = reqOpen
	s.err = nil
	s.requestCond.Signal()
	return nil
}

// Start begins playback immediately (on the next block).
func (s *Stream) Start() error { return s.startAt(StartNow) }

// StartAt begins playback at the given global frame time.
func (s *Stream) StartAt(t ftc.Code) error {
	frames := t.ToFrames()
	if frames < 0 {
		return ErrNegativeStart
	}
	return s.startAt(frames)
}

func (s *Stream) startAt(frames int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStartup2 && s.state != StateStream {
		return ErrIncompatibleState
	}
	s.startTime = frames
	s.state = StateStream
	return nil
}

// Stop stops playback immediately.
func (s *Stream) Stop() error { return s.stopAt(0) }

// StopNow is an alias for Stop.
func (s *Stream) StopNow() error { return s.stopAt(0) }

// StopAtEnd lets the stream run to the natural end of the current loop.
func (s *Stream) StopAtEnd() error { return s.stopAt(EndAtLoop) }

// StopNever clears any pending end time.
func (s *Stream) StopNever() error { return s.stopAt(EndNever) }

// StopAt schedules an end time at the given global frame.
func (s *Stream) StopAt(t ftc.Code) error { return s.stopAt(t.ToFrames()) }

func (s *Stream) stopAt(frames int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return ErrIncompatibleState
	}
	s.endTime = frames
	return nil
}

// SetLoopLengthSelf sets the loop length to "the file's own length".
func (s *Stream) SetLoopLengthSelf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopLengthIsSelf = true
	s.loopLength = loopSelf
	s.loopParamsChange = true
}

// SetLoopLength sets an explicit loop length.
func (s *Stream) SetLoopLength(l ftc.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopLengthIsSelf = false
	s.loopLength = l.ToFrames()
	s.loopParamsChange = true
}

// SetLoopStart sets the loop's start offset within the file.
func (s *Stream) SetLoopStart(l ftc.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopStart = l.ToFrames()
	s.loopParamsChange = true
}

// SetAnchor binds the stream to a shared TimeAnchor. Passing nil
// selects the per-stream local anchor ("self").
func (s *Stream) SetAnchor(a *anchor.Anchor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorRef = a
	if a != nil {
		a.MarkUsedInSignalGraph()
	}
	s.localAnchorSet = false
}

// State returns the current state machine state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Print dumps the stream's internal state to the host's diagnostic
// channel.
func (s *Stream) Print() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps.Log.Errorf(
		"playback: state=%s file=%q totalFrames=%d startTime=%d endTime=%d loopLength=%d eof=%v",
		s.state, s.filename, s.totalFrames, s.startTime, s.endTime, s.loopLength, s.eof,
	)
}

// elapsedFrames returns frames since the stream's local ("self") origin,
// latching that origin to blockStartHint on first call.
func (s *Stream) elapsedFrames(blockStartHint int64) int64 {
	if !s.localAnchorSet {
		s.localAnchorZero = uint64(blockStartHint)
		s.localAnchorSet = true
	}
	return blockStartHint - int64(s.localAnchorZero)
}

// Process runs one realtime block: out holds one []float32 per output
// channel, each of length blockFrames. hostClockFrames is the host's
// own free-running frame counter; when no shared anchor is bound it is
// the local ("self") clock, with the first value seen as its origin.
func (s *Stream) Process(out [][]float32, hostClockFrames int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blockFrames := s.opts.BlockFrames
	if len(out) == 0 || len(out[0]) < blockFrames {
		blockFrames = 0
	}

	switch s.state {
	case StateIdle:
		s.zeroBlock(out, blockFrames)
		return
	case StateStartup:
		if s.totalFramesKnown && !s.totalFramesEmitted {
			s.emitTotalFrames()
		}
		if s.err != nil {
			s.state = StateIdle
			s.caps.Scheduler.Defer(func() { s.caps.Log.Errorf("playback: %v", s.err) })
		}
		s.zeroBlock(out, blockFrames)
		return
	case StateStartup2:
		s.zeroBlock(out, blockFrames)
		return
	}

	// StateStream from here on.
	var blockStart int64
	if s.anchorRef != nil {
		blockStart = int64(s.anchorRef.ElapsedFrames())
	} else {
		blockStart = s.elapsedFrames(hostClockFrames)
	}

	if s.startTime == StartNow {
		s.startTime = blockStart
	}

	if s.loopParamsChange {
		s.fifo.Reset()
		s.tailTime = 0
		s.headTimeRequest = 0
		s.eof = false
		s.loopParamsChange = false
	}

	if s.tailTime != blockStart {
		delta := blockStart - s.tailTime
		if delta < 0 || int64(s.fifo.Occupied()) < delta*int64(s.desc.BytesPerFrame()) {
			s.fifo.Reset()
			s.tailTime = blockStart
			s.headTimeRequest = blockStart
		} else {
			s.fifo.AdvanceTail(int(delta) * s.desc.BytesPerFrame())
			s.tailTime = blockStart
		}
	}

	if s.fifo.Head() == s.fifo.Tail() {
		s.headTimeRequest = blockStart
		s.tailTime = blockStart
	}

	if s.fifo.Occupied() < blockFrames*s.desc.BytesPerFrame() && !s.eof {
		s.zeroBlock(out, blockFrames)
		s.requestCond.Signal()
		s.advanceTailTime(blockFrames)
		return
	}

	if s.endTime == EndAtLoop {
		lFrames := s.loopLength
		if s.loopLengthIsSelf || lFrames <= 0 {
			lFrames = s.totalFrames
		}
		if lFrames <= 0 {
			lFrames = 1
		}
		k := (blockStart-s.startTime)/lFrames + 1
		if k < 1 {
			k = 1
		}
		s.endTime = s.startTime + k*lFrames
	}

	blockEnd := blockStart + int64(blockFrames)

	switch {
	case s.endTime <= blockEnd:
		prefix := int(max64(0, s.endTime-blockStart))
		s.decodeInto(out, 0, prefix)
		s.zeroChannels(out, prefix, blockFrames)
		s.requestCode = reqClose
		s.requestCond.Signal()
		s.state = StateIdle
		s.caps.Scheduler.Defer(func() { s.caps.Emit.EmitBang("done") })
	case blockStart < s.startTime:
		silentPrefix := int(min64(s.startTime-blockStart, int64(blockFrames)))
		remainder := blockFrames - silentPrefix
		s.zeroChannels(out, 0, silentPrefix)
		if remainder > 0 {
			s.decodeInto(out, silentPrefix, remainder)
		}
		// Keep the tail in sync even though we are not reading (all) the
		// data for this block: decodeInto only advanced the tail by the
		// decoded remainder, so catch it up to the full block here.
		s.fifo.AdvanceTail(silentPrefix * s.desc.BytesPerFrame())
	default:
		s.decodeInto(out, 0, blockFrames)
	}

	s.advanceTailTime(blockFrames)

	s.refillCountdown--
	if s.refillCountdown <= 0 {
		s.requestCond.Signal()
		s.resetRefillCountdown()
	}
}

func (s *Stream) advanceTailTime(blockFrames int) {
	s.tailTime += int64(blockFrames)
}

func (s *Stream) resetRefillCountdown() {
	bpf := 1
	if s.desc != nil {
		bpf = s.desc.BytesPerFrame()
	}
	period := s.fifo.Capacity() / max(1, 16*bpf*s.opts.BlockFrames)
	if period < 1 {
		period = 1
	}
	s.refillPeriod = period
	s.refillCountdown = period
}

func (s *Stream) zeroBlock(out [][]float32, n int) {
	for _, ch := range out {
		limit := n
		if limit > len(ch) {
			limit = len(ch)
		}
		for i := 0; i < limit; i++ {
			ch[i] = 0
		}
	}
}

func (s *Stream) zeroChannels(out [][]float32, from, to int) {
	for _, ch := range out {
		for i := from; i < to && i < len(ch); i++ {
			ch[i] = 0
		}
	}
}

// decodeInto decodes frames [from, from+n) of out from the FIFO,
// advancing Tail as it consumes bytes.
func (s *Stream) decodeInto(out [][]float32, from, n int) {
	if s.desc == nil || n <= 0 {
		return
	}
	bpf := s.desc.BytesPerFrame()
	raw := make([]byte, n*bpf)
	got := s.fifo.ReadAt(raw)
	s.fifo.AdvanceTail(got)
	frames := got / bpf
	interleaved := make([]float32, frames*len(out))
	sound.DecodeInterleaved(interleaved, len(out), raw[:frames*bpf], s.desc.Format.NumChannels, s.desc.BytesPerSample, frames, s.desc.Endianness)
	for ch := range out {
		for f := 0; f < frames; f++ {
			out[ch][from+f] = interleaved[f*len(out)+ch]
		}
		for f := frames; f < n; f++ {
			if from+f < len(out[ch]) {
				out[ch][from+f] = 0
			}
		}
	}
}

func (s *Stream) emitTotalFrames() {
	s.totalFramesEmitted = true
	s.state = StateStartup2
	code := ftc.FromFrames(s.totalFrames)
	s.caps.Scheduler.Defer(func() {
		e := code.Emit()
		s.caps.Emit.EmitList("frames", e[:])
	})
}

// workerLoop is the background worker goroutine: it performs all
// blocking file I/O, coordinated with Process via requestCond/answerCond.
func (s *Stream) workerLoop() {
	defer close(s.workerExited)
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		switch s.requestCode {
		case reqQuit:
			s.closeFileLocked()
			s.answerCond.Signal()
			return
		case reqOpen:
			s.requestCode = reqBusy
			s.doOpen()
			s.requestCode = reqNone
			continue
		case reqClose:
			s.closeFileLocked()
			s.requestCode = reqNone
			continue
		}

		if !s.eof && s.fd != nil && (s.state == StateStream || s.state == StateStartup2 || s.state == StateStartup) {
			s.refill()
			continue
		}

		s.answerCond.Signal()
		if s.quit {
			return
		}
		s.requestCond.Wait()
	}
}

func (s *Stream) closeFileLocked() {
	if s.fd != nil {
		fd := s.fd
		s.fd = nil
		s.mu.Unlock()
		fd.Close()
		s.mu.Lock()
	}
	s.eof = true
	s.answerCond.Signal()
}

func (s *Stream) doOpen() {
	filename := s.filename
	onsetFrames := s.onsetFrames

	if s.fd != nil {
		fd := s.fd
		s.fd = nil
		s.mu.Unlock()
		fd.Close()
		s.mu.Lock()
	}

	s.mu.Unlock()
	f, err := s.caps.Files.Open(filename)
	s.mu.Lock()
	if err != nil {
		s.err = &sound.OsError{Op: "open", Err: err}
		return
	}

	hdrSize := s.registry.MinHeaderSize()
	buf := make([]byte, hdrSize)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		f.Close()
		s.err = &sound.OsError{Op: "read header", Err: err}
		return
	}

	provider := s.typeProvider
	if provider == nil {
		p, err := s.registry.Resolve(buf)
		if err != nil {
			f.Close()
			s.err = err
			return
		}
		provider = p
	}

	desc := sound.NewDescriptor()
	if err := provider.ReadHeader(f, desc); err != nil {
		f.Close()
		s.err = err
		return
	}

	s.fd = f
	s.desc = desc
	s.typeProvider = provider

	bpf := desc.BytesPerFrame()
	s.initialOffset = int64(desc.HeaderSize) + onsetFrames*int64(bpf)
	s.seekMax = desc.ByteLimit + s.initialOffset
	s.totalFrames = (desc.ByteLimit - onsetFrames*int64(bpf)) / int64(bpf)
	if s.totalFrames < 0 {
		s.totalFrames = 0
	}
	s.totalFramesKnown = true

	fifoBuf := make([]byte, s.opts.FifoBytes)
	s.fifo = ringfifo.New(fifoBuf, bpf*s.opts.BlockFrames)
	s.tailTime = 0
	s.headTimeRequest = 0
	s.eof = false
	s.nextSeek = s.initialOffset
	s.resetRefillCountdown()
}

func (s *Stream) refill() {
	if s.fd == nil || s.desc == nil || s.eof {
		return
	}
	bpf := s.desc.BytesPerFrame()

	loopBytes := s.desc.ByteLimit
	if !s.loopLengthIsSelf && s.loopLength > 0 {
		loopBytes = s.loopLength * int64(bpf)
	}
	if loopBytes <= 0 {
		s.err = sound.ErrEmpty
		s.eof = true
		return
	}
	loopStartBytes := s.loopStart * int64(bpf)

	if s.fifo.Head() == 0 && s.fifo.Tail() == 0 {
		byteTime := (s.headTimeRequest - max64(0, s.startTime)) * int64(bpf)
		var next int64
		if byteTime >= 0 {
			next = mod64(byteTime, loopBytes) + s.initialOffset + loopStartBytes
		} else {
			next = loopBytes - mod64(-byteTime, loopBytes) + s.initialOffset + loopStartBytes
		}
		if next == s.initialOffset+loopStartBytes+loopBytes {
			next = s.initialOffset + loopStartBytes
		}
		s.nextSeek = next
	}

	contiguous := s.fifo.ContiguousFree()
	want := contiguous
	if want > readSize {
		want = readSize
	}
	remaining := loopBytes + s.initialOffset + loopStartBytes - s.nextSeek
	if remaining < int64(want) {
		want = int(remaining)
	}
	if want <= 0 {
		s.requestCond.Wait()
		return
	}

	snapHead := s.fifo.Head()
	snapHeadTimeRequest := s.headTimeRequest
	seekPos := s.nextSeek
	fd := s.fd

	s.mu.Unlock()
	buf := make([]byte, want)
	n, rerr := fd.ReadAt(buf, seekPos)
	s.mu.Lock()

	if fd != s.fd {
		return // file changed underneath us; discard
	}
	if s.fifo.Head() != snapHead || s.headTimeRequest != snapHeadTimeRequest {
		return // consumer moved the goalposts; discard this read
	}

	if n < want && rerr != nil && rerr != io.EOF {
		s.err = &sound.OsError{Op: "read", Err: rerr}
	}
	if n < want {
		for i := n; i < want; i++ {
			buf[i] = 0
		}
	}

	s.fifo.WriteAt(buf[:want])
	s.nextSeek += int64(want)
	if s.nextSeek >= s.initialOffset+loopStartBytes+loopBytes {
		s.nextSeek = s.initialOffset + loopStartBytes
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func mod64(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
