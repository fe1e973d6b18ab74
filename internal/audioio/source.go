// SPDX-License-Identifier: MIT
package audioio

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	applog "ultrasonic/internal/log"
)

// ringCapacity is sized generously relative to typical block sizes so a
// brief consumer stall (a GC pause, a slow subscriber write) doesn't
// immediately start dropping samples.
const ringCapacity = 1 << 18

// AudioSource captures mono float32 blocks from one PortAudio input
// device. It is grounded on the teacher's Engine (internal/audio/engine.go):
// same StartInputStream/StopInputStream shape and the same
// LockOSThread-in-callback discipline, generalized from a single fixed
// device + fixed int32 format to any resolved device and the float32
// format spec.md's AudioConfig specifies, and from "process in place" to
// "hand off through a ring buffer" so capture never blocks on downstream
// processing.
type AudioSource struct {
	deviceInfo *portaudio.DeviceInfo
	channels   int
	blockSize  int
	stream     *portaudio.Stream
	ring       *ringBuffer
	running    int32

	rawBuffer []float32 // interleaved, channels*blockSize
	mono      []float32 // scratch for channel-0 extraction
}

// OpenAudioSource resolves a device from preferredNames (falling back to
// the system default input) and prepares, but does not yet start, capture
// at sampleRate with blockSize frames per PortAudio callback.
func OpenAudioSource(preferredNames []string, sampleRate, blockSize, channels int) (*AudioSource, error) {
	info, err := ResolveDevice(preferredNames)
	if err != nil {
		return nil, fmt.Errorf("audioio: resolve device: %w", err)
	}
	if channels < 1 {
		channels = 1
	}
	if info.MaxInputChannels < channels {
		channels = info.MaxInputChannels
	}

	src := &AudioSource{
		deviceInfo: info,
		channels:   channels,
		blockSize:  blockSize,
		ring:       newRingBuffer(ringCapacity),
		rawBuffer:  make([]float32, blockSize*channels),
		mono:       make([]float32, blockSize),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   info,
			Latency:  inputLatencyFor(info),
		},
		Output:          portaudio.StreamDeviceParameters{Channels: 0, Device: nil},
		FramesPerBuffer: blockSize,
		SampleRate:      float64(sampleRate),
	}

	stream, err := portaudio.OpenStream(params, src.callback)
	if err != nil {
		return nil, fmt.Errorf("audioio: open stream on %q: %w", info.Name, err)
	}
	src.stream = stream
	return src, nil
}

// DeviceName returns the resolved device's name, for registry resolution
// and diagnostics.
func (s *AudioSource) DeviceName() string {
	return s.deviceInfo.Name
}

// HostApiName returns the resolved device's host API name.
func (s *AudioSource) HostApiName() string {
	if s.deviceInfo.HostApi != nil {
		return s.deviceInfo.HostApi.Name
	}
	return "unknown"
}

// Start begins capture. Blocks() will not yield data until Start has been
// called.
func (s *AudioSource) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("audioio: start stream on %q: %w", s.deviceInfo.Name, err)
	}
	atomic.StoreInt32(&s.running, 1)
	return nil
}

// Stop halts capture. The AudioSource can be Start()ed again afterward.
func (s *AudioSource) Stop() error {
	atomic.StoreInt32(&s.running, 0)
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("audioio: stop stream on %q: %w", s.deviceInfo.Name, err)
	}
	return nil
}

// Close releases the underlying PortAudio stream. The AudioSource must not
// be used afterward.
func (s *AudioSource) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

// Overruns reports how many block writes overwrote unread ring-buffer data
// because the consumer fell behind the producer. It counts overrunning
// writes, not dropped samples.
func (s *AudioSource) Overruns() uint64 {
	return s.ring.Overruns()
}

// Blocks drains whatever mono float32 samples have accumulated in the
// ring buffer since the last call. It returns nil if nothing new has
// arrived yet; callers poll it from the pipeline's processing loop rather
// than blocking, since the producer side never blocks either.
func (s *AudioSource) Blocks() []float32 {
	return s.ring.Drain()
}

// callback is PortAudio's real-time audio thread entry point. Performance
// critical: no allocations, no locks held longer than the ring buffer's
// own short critical section, mirroring the teacher's
// processInputStream/processBuffer split.
func (s *AudioSource) callback(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	copy(s.rawBuffer, in)

	var overran bool
	if s.channels == 1 {
		overran = s.ring.Write(s.rawBuffer[:len(in)])
	} else {
		frames := len(in) / s.channels
		for i := 0; i < frames; i++ {
			s.mono[i] = s.rawBuffer[i*s.channels]
		}
		overran = s.ring.Write(s.mono[:frames])
	}
	if overran {
		applog.Warnf("audioio: ring buffer overrun on %q, oldest samples dropped", s.deviceInfo.Name)
	}
}

// pollInterval is how often DevicePipeline should call Blocks() while
// idling between PortAudio callbacks.
const pollInterval = 5 * time.Millisecond

// PollInterval exposes pollInterval for the pipeline's read loop.
func PollInterval() time.Duration { return pollInterval }
