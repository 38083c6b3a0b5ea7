// SPDX-License-Identifier: EPL-2.0

// Package capture implements the sample-accurate recording engine:
// Idle -> Startup -> StreamJustStarting -> Stream -> Idle2 -> Idle,
// driven by realtime audio blocks and backed by a background worker
// goroutine that owns all file I/O.
package capture

import (
	"errors"
	"math"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"

	"github.com/samesimilar/m5-soundfile/anchor"
	"github.com/samesimilar/m5-soundfile/ftc"
	"github.com/samesimilar/m5-soundfile/host"
	"github.com/samesimilar/m5-soundfile/ringfifo"
	"github.com/samesimilar/m5-soundfile/sound"
)

// State is one node of the capture state machine.
type State int

const (
	StateIdle State = iota
	StateStartup
	StateStreamJustStarting
	StateStream
	StateIdle2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStartup:
		return "startup"
	case StateStreamJustStarting:
		return "stream-just-starting"
	case StateStream:
		return "stream"
	case StateIdle2:
		return "idle2"
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

const (
	// StartNow means "latch to the first block processed".
	StartNow int64 = math.MinInt64
	// StartAtThreshold means "latch when |x| >= threshold is first seen".
	StartAtThreshold int64 = math.MaxInt64
	// EndNever means "run until stopped".
	EndNever int64 = math.MaxInt64 - 1
)

const readSize = 65536

var (
	// ErrNegativeStart rejects an explicit start FTC that is negative.
	ErrNegativeStart = errors.New("capture: start time must not be negative")
	// ErrIncompatibleState is returned when a message arrives in a
	// state that cannot act on it.
	ErrIncompatibleState = errors.New("capture: message ignored in current state")
	// ErrBusy is returned by Open when a previous Open's worker-side
	// doOpen is still in flight.
	ErrBusy = errors.New("capture: open already in progress")
)

// Options configures a capture stream at construction.
type Options struct {
	InputChannels  int
	FileChannels   int
	BlockFrames    int
	FifoBytes      int
	BytesPerSample int
	Endianness     sound.Endianness
	SampleRate     int
}

// Stream is one capture engine instance.
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

	fd   *os.File
	fifo *ringfifo.Fifo

	startTime int64
	endTime   int64
	threshold float32
	useThreshold bool

	tailPush            bool
	performedFifoBytes  int64
	framesWritten       int64
	finished            bool
	startTimeReported   bool

	anchorRef       *anchor.Anchor
	localAnchorSet  bool
	localAnchorZero uint64

	refillCountdown int
}

// New creates a capture stream bound to caps and registry, with its
// worker goroutine started and idle.
func New(caps host.Capabilities, registry *sound.Registry, opts Options) *Stream {
	if opts.BlockFrames <= 0 {
		opts.BlockFrames = 64
	}
	if opts.InputChannels <= 0 {
		opts.InputChannels = 1
	}
	if opts.FileChannels <= 0 {
		opts.FileChannels = opts.InputChannels
	}
	if opts.BytesPerSample <= 0 {
		opts.BytesPerSample = 2
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

// Open arms the stream to record into filename using typeName (empty
// selects the registry's default provider, e.g. WAV).
func (s *Stream) Open(typeName, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requestCode == reqBusy {
		return ErrBusy
	}

	var t sound.Type
	if typeName != "" {
		var ok bool
		t, ok = s.registry.Lookup(typeName)
		if !ok {
			return sound.ErrUnknownHeader
		}
	} else {
		t = s.registry.Default()
		if t == nil {
			return sound.ErrUnknownHeader
		}
	}
	s.typeProvider = t
	s.filename = filename
	// No start time is armed until Start/StartAt/StartAtThreshold: the
	// StartAtThreshold sentinel with useThreshold off keeps every block
	// on the pre-roll path and the stream in StreamJustStarting.
	s.startTime = StartAtThreshold
	s.useThreshold = false
	s.state = StateStartup
	s.requestCode = reqOpen
	s.err = nil
	s.performedFifoBytes = 0
	s.framesWritten = 0
	s.finished = false
	s.startTimeReported = false
	s.tailPush = false
	s.requestCond.Signal()
	return nil
}

// Start begins recording immediately (on the next block).
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useThreshold = false
	s.startTime = StartNow
	return nil
}

// StartAtThreshold arms threshold-triggered recording.
func (s *Stream) StartAtThreshold(threshold float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useThreshold = true
	s.threshold = threshold
	s.startTime = StartAtThreshold
	return nil
}

// StartAt begins recording at the given global frame time.
func (s *Stream) StartAt(t ftc.Code) error {
	frames := t.ToFrames()
	if frames < 0 {
		return ErrNegativeStart
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useThreshold = false
	s.startTime = frames
	return nil
}

// Stop ends recording on the next block.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return ErrIncompatibleState
	}
	s.endTime = 0
	return nil
}

// StopAt schedules an end time at the given global frame.
func (s *Stream) StopAt(t ftc.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return ErrIncompatibleState
	}
	s.endTime = t.ToFrames()
	return nil
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
		"capture: state=%s file=%q startTime=%d endTime=%d framesWritten=%d",
		s.state, s.filename, s.startTime, s.endTime, s.framesWritten,
	)
}

func (s *Stream) elapsedFrames(blockStartHint int64) int64 {
	if !s.localAnchorSet {
		s.localAnchorZero = uint64(blockStartHint)
		s.localAnchorSet = true
	}
	return blockStartHint - int64(s.localAnchorZero)
}

// Process runs one realtime block: in holds one []float32 per input
// channel, each of length blockFrames. hostClockFrames seeds the local
// ("self") anchor when no shared anchor is bound.
func (s *Stream) Process(in [][]float32, hostClockFrames int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateIdle2 {
		return
	}
	if s.state == StateStartup {
		if s.err != nil {
			s.state = StateIdle
			s.caps.Scheduler.Defer(func() { s.caps.Log.Errorf("capture: %v", s.err) })
		}
		return
	}
	if s.fifo == nil {
		return
	}

	blockFrames := s.opts.BlockFrames
	if len(in) > 0 && len(in[0]) < blockFrames {
		blockFrames = len(in[0])
	}

	var blockStart int64
	if s.anchorRef != nil {
		blockStart = int64(s.anchorRef.ElapsedFrames())
	} else {
		blockStart = s.elapsedFrames(hostClockFrames)
	}

	if s.startTime == StartNow {
		s.startTime = blockStart
		s.scheduleStartTimeReport(s.startTime)
	}

	if s.useThreshold && s.startTime == StartAtThreshold {
		if t, ok := s.scanThreshold(in, blockFrames); ok {
			s.startTime = blockStart + int64(t)
		}
	}

	vecsize := blockFrames
	vecstart := 0
	s.tailPush = false

	if s.endTime != EndNever && blockStart+int64(vecsize) > s.endTime {
		vecsize = int(max64(0, s.endTime-blockStart))
		s.finished = true
	}

	switch {
	// Always true while still armed at StartAtThreshold, since that
	// sentinel is math.MaxInt64: the pre-roll tailpush path below must
	// run for every block spent waiting for the trigger.
	case blockStart <= s.startTime:
		if blockStart+int64(vecsize) > s.startTime {
			vecstart = int(s.startTime - blockStart)
			bpf := s.opts.FileChannels * s.opts.BytesPerSample
			s.fifo.SetHead(vecstart * bpf)
			s.fifo.SetTail(vecstart * bpf)
			vecsize -= vecstart
			if !s.startTimeReported {
				s.scheduleStartTimeReport(s.startTime)
			}
		} else {
			s.tailPush = true
		}
	default:
		if s.state == StateStreamJustStarting && blockStart > s.startTime && !s.startTimeReported {
			bpf := s.opts.FileChannels * s.opts.BytesPerSample
			overdue := min64(min64((blockStart-s.startTime)*int64(bpf), int64(s.fifo.Capacity())-int64(bpf)), s.performedFifoBytes)
			s.fifo.SetTail(wrapIdx(s.fifo.Head()-int(overdue), s.fifo.Capacity()))
			recovered := overdue / int64(bpf)
			adjusted := blockStart - recovered
			s.startTime = adjusted
			s.scheduleStartTimeReport(adjusted)
		}
	}

	if vecsize > 0 && vecstart < len(in[0]) {
		s.encodeFrom(in, vecstart, vecsize)
	}

	if s.tailPush {
		s.fifo.SetTail(s.fifo.Head())
	}

	if s.finished {
		s.state = StateIdle2
		s.requestCode = reqClose
		s.requestCond.Signal()
		return
	}

	if s.state == StateStreamJustStarting && blockStart >= s.startTime {
		s.state = StateStream
	}

	s.refillCountdown--
	if s.refillCountdown <= 0 {
		s.requestCond.Signal()
		s.resetRefillCountdown()
	}
}

func (s *Stream) scheduleStartTimeReport(frames int64) {
	s.startTimeReported = true
	code := ftc.FromFrames(frames)
	s.caps.Scheduler.Defer(func() {
		e := code.Emit()
		s.caps.Emit.EmitList("start", e[:])
	})
}

func (s *Stream) scanThreshold(in [][]float32, blockFrames int) (int, bool) {
	if len(in) == 0 {
		return 0, false
	}
	for t := 0; t < blockFrames; t++ {
		for ch := range in {
			if t < len(in[ch]) {
				v := in[ch][t]
				if v < 0 {
					v = -v
				}
				if v >= s.threshold {
					return t, true
				}
			}
		}
	}
	return 0, false
}

func (s *Stream) encodeFrom(in [][]float32, from, n int) {
	bpf := s.opts.FileChannels * s.opts.BytesPerSample
	interleaved := make([]float32, n*len(in))
	for ch := range in {
		for f := 0; f < n; f++ {
			if from+f < len(in[ch]) {
				interleaved[f*len(in)+ch] = in[ch][from+f]
			}
		}
	}
	raw := make([]byte, n*bpf)
	sound.EncodeInterleaved(raw, s.opts.FileChannels, s.opts.BytesPerSample, interleaved, len(in), n, s.opts.Endianness)
	written := s.fifo.WriteAt(raw)
	s.performedFifoBytes += int64(written)
	if s.performedFifoBytes > int64(s.fifo.Capacity()) {
		s.performedFifoBytes = int64(s.fifo.Capacity())
	}
}

func (s *Stream) resetRefillCountdown() {
	bpf := s.opts.FileChannels * s.opts.BytesPerSample
	period := s.fifo.Capacity() / max(1, 16*bpf*s.opts.BlockFrames)
	if period < 1 {
		period = 1
	}
	s.refillCountdown = period
}

// workerLoop performs all blocking file I/O for the stream: OPEN
// creates the file, the drain loop writes [tail, head) to disk, and
// CLOSE/QUIT finish the header and publish the final frame count.
func (s *Stream) workerLoop() {
	defer close(s.workerExited)
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		switch s.requestCode {
		case reqQuit:
			s.finishAndClose()
			s.answerCond.Signal()
			return
		case reqOpen:
			s.requestCode = reqBusy
			s.doOpen()
			s.requestCode = reqNone
			continue
		case reqClose:
			s.finishAndClose()
			s.requestCode = reqNone
			continue
		}

		if s.fd != nil && s.fifo != nil && s.fifo.Occupied() > 0 {
			s.drain()
			continue
		}

		s.answerCond.Signal()
		if s.quit {
			return
		}
		s.requestCond.Wait()
	}
}

func (s *Stream) doOpen() {
	filename := s.filename
	provider := s.typeProvider

	if s.fd != nil {
		fd := s.fd
		s.fd = nil
		s.mu.Unlock()
		fd.Close()
		s.mu.Lock()
	}

	s.mu.Unlock()
	f, err := s.caps.Files.Create(filename)
	s.mu.Lock()
	if err != nil {
		s.err = &sound.OsError{Op: "create", Err: err}
		return
	}

	desc := sound.NewDescriptor()
	desc.Format = &goaudio.Format{NumChannels: s.opts.FileChannels, SampleRate: s.opts.SampleRate}
	desc.BytesPerSample = s.opts.BytesPerSample
	desc.Endianness = provider.EndiannessPolicy(s.opts.Endianness, s.opts.BytesPerSample)

	headerSize, err := provider.WriteHeader(f, desc, 0)
	if err != nil {
		f.Close()
		s.err = err
		return
	}
	desc.HeaderSize = headerSize

	s.fd = f
	s.desc = desc

	fifoBuf := make([]byte, s.opts.FifoBytes)
	bpf := s.opts.FileChannels * s.opts.BytesPerSample
	s.fifo = ringfifo.New(fifoBuf, bpf*s.opts.BlockFrames)
	s.state = StateStreamJustStarting
	s.resetRefillCountdown()
}

func (s *Stream) drain() {
	if s.fd == nil || s.fifo == nil {
		return
	}
	n := s.fifo.ContiguousOccupied()
	if n > readSize {
		n = readSize
	}
	if n <= 0 {
		return
	}

	buf := make([]byte, n)
	got := s.fifo.ReadAt(buf)
	fd := s.fd
	offset := s.desc.HeaderSize + int(s.framesWritten)*s.desc.BytesPerFrame()

	s.mu.Unlock()
	_, werr := fd.WriteAt(buf[:got], int64(offset))
	s.mu.Lock()

	if fd != s.fd {
		return
	}
	if werr != nil {
		s.err = &sound.OsError{Op: "write", Err: werr}
		return
	}
	s.fifo.AdvanceTail(got)
	s.framesWritten += int64(got / s.desc.BytesPerFrame())
}

func (s *Stream) finishAndClose() {
	if s.fd != nil && s.desc != nil && s.typeProvider != nil {
		for s.fifo != nil && s.fifo.Occupied() > 0 {
			s.drain()
		}
		if err := s.typeProvider.UpdateHeader(s.fd, s.desc, s.framesWritten); err != nil {
			s.err = err
		}
		fd := s.fd
		s.fd = nil
		s.mu.Unlock()
		fd.Close()
		s.mu.Lock()
	}
	frames := s.framesWritten
	s.caps.Scheduler.Defer(func() {
		e := ftc.FromFrames(frames).Emit()
		s.caps.Emit.EmitList("length", e[:])
	})
	s.state = StateIdle
	s.answerCond.Signal()
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

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func wrapIdx(v, capacity int) int {
	if capacity == 0 {
		return 0
	}
	v %= capacity
	if v < 0 {
		v += capacity
	}
	return v
}
