// SPDX-License-Identifier: EPL-2.0

package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samesimilar/m5-soundfile/formats/wav"
	"github.com/samesimilar/m5-soundfile/host"
	"github.com/samesimilar/m5-soundfile/internal/hosttest"
	"github.com/samesimilar/m5-soundfile/sound"
)

func newTestStream(t *testing.T, dir string) (*Stream, *hosttest.Emitter, *hosttest.Logger) {
	t.Helper()
	reg := sound.NewRegistry()
	reg.Register(wav.New())

	emitter := &hosttest.Emitter{}
	logger := &hosttest.Logger{}
	caps := host.Capabilities{
		Files:     &hosttest.Files{Dir: dir},
		Emit:      emitter,
		Scheduler: hosttest.Scheduler{},
		Log:       logger,
	}
	s := New(caps, reg, Options{
		InputChannels:  1,
		FileChannels:   1,
		BlockFrames:    64,
		FifoBytes:      4096,
		BytesPerSample: 2,
		SampleRate:     48000,
	})
	t.Cleanup(s.Close)
	return s, emitter, logger
}

func waitForState(t *testing.T, s *Stream, want State, in [][]float32, clock *int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Process(in, *clock)
		*clock += int64(len(in[0]))
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("stream never reached state %v (stuck at %v)", want, s.State())
}

func TestOpenStartRecordsThenStopWritesReadableWAV(t *testing.T) {
	dir := t.TempDir()
	s, emitter, _ := newTestStream(t, dir)

	if err := s.Open("", "rec.wav"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	in := [][]float32{make([]float32, 64)}
	for i := range in[0] {
		in[0][i] = 0.25
	}
	var clock int64

	waitForState(t, s, StateStreamJustStarting, in, &clock)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Feed a handful of blocks of constant-amplitude signal.
	deadline := time.Now().Add(500 * time.Millisecond)
	for i := 0; i < 20 && time.Now().Before(deadline); i++ {
		s.Process(in, clock)
		clock += int64(len(in[0]))
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.State() != StateIdle {
		s.Process(in, clock)
		clock += int64(len(in[0]))
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateIdle {
		t.Fatalf("stream never returned to idle after Stop")
	}

	sawLength := false
	for _, l := range emitter.Lists {
		if l.Outlet == "length" {
			sawLength = true
		}
	}
	if !sawLength {
		t.Fatalf("expected a final length emission")
	}

	path := filepath.Join(dir, "rec.wav")
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat recorded file: %v", err)
	}
	if fi.Size() <= 44 {
		t.Fatalf("recorded file has no PCM payload: size=%d", fi.Size())
	}
}

func TestStartAtThresholdWaitsForLoudSample(t *testing.T) {
	dir := t.TempDir()
	s, _, _ := newTestStream(t, dir)

	if err := s.Open("", "thresh.wav"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	quiet := [][]float32{make([]float32, 64)}
	var clock int64
	waitForState(t, s, StateStreamJustStarting, quiet, &clock)

	if err := s.StartAtThreshold(0.5); err != nil {
		t.Fatalf("StartAtThreshold: %v", err)
	}

	// A few quiet blocks should not trip the threshold.
	for i := 0; i < 3; i++ {
		s.Process(quiet, clock)
		clock += int64(len(quiet[0]))
	}
	if s.State() != StateStreamJustStarting {
		t.Fatalf("threshold tripped on silence")
	}

	loud := [][]float32{make([]float32, 64)}
	for i := range loud[0] {
		loud[0][i] = 0.9
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.State() != StateStream {
		s.Process(loud, clock)
		clock += int64(len(loud[0]))
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateStream {
		t.Fatalf("threshold never tripped on loud signal")
	}

	// Feed a few more loud blocks so there is data past the trigger to
	// flush, then stop and inspect what actually landed on disk.
	for i := 0; i < 5; i++ {
		s.Process(loud, clock)
		clock += int64(len(loud[0]))
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.State() != StateIdle {
		s.Process(loud, clock)
		clock += int64(len(loud[0]))
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateIdle {
		t.Fatalf("stream never returned to idle after Stop")
	}

	firstFrame := readFirstFrame(t, filepath.Join(dir, "thresh.wav"))
	if diff := firstFrame - 0.9; diff < -0.05 || diff > 0.05 {
		t.Fatalf("recorded file's first frame = %v, want ~0.9 (pre-roll silence should never reach disk)", firstFrame)
	}
}

// readFirstFrame reads and decodes the first sample of a recorded mono WAV
// file, so a test can tell whether pre-roll silence leaked onto disk ahead
// of the actual recorded content.
func readFirstFrame(t *testing.T, path string) float32 {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	desc := sound.NewDescriptor()
	p := wav.New()
	if err := p.ReadHeader(f, desc); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if desc.TotalFrames() == 0 {
		t.Fatalf("recorded file has no frames")
	}

	raw := make([]byte, desc.BytesPerFrame())
	if _, err := f.ReadAt(raw, int64(desc.HeaderSize)); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	out := make([]float32, 1)
	sound.DecodeInterleaved(out, 1, raw, desc.Format.NumChannels, desc.BytesPerSample, 1, desc.Endianness)
	return out[0]
}
