// SPDX-License-Identifier: MIT
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ultrasonic/internal/audioio"
	"ultrasonic/internal/broadcast"
	"ultrasonic/internal/config"
	"ultrasonic/internal/dsp"
	"ultrasonic/internal/frame"
	applog "ultrasonic/internal/log"
	"ultrasonic/internal/throttle"
)

// DevicePipeline owns the full capture-to-fanout chain for one physical
// device: AudioSource -> FFTProcessor -> StreamThrottler -> Encoder ->
// Broadcaster, plus the adaptive FPS controller that retunes the
// throttler's pacing stage. Exactly one DevicePipeline exists per stable
// device ID at a time, owned by internal/manager's DeviceManager.
type DevicePipeline struct {
	stableID string

	mu           sync.Mutex
	audioCfg     config.AudioConfig
	streamCfg    config.StreamConfig
	state        State
	lastErr      error
	restartCount int

	source      *audioio.AudioSource
	processor   *dsp.Processor
	throttler   *throttle.StreamThrottler
	adaptiveCtl *throttle.AdaptiveFPSController
	encoder     *frame.Encoder
	broadcaster *broadcast.Broadcaster
	recorder    *audioio.RawCaptureRecorder

	stopCh chan struct{}
	wg     sync.WaitGroup

	running int32

	// lastBlockAt tracks when processOnce last retrieved a non-nil block
	// from the AudioSource, so producerWait measures the idle gap between
	// successive block arrivals rather than any compute cost downstream.
	lastBlockAt   time.Time
	haveLastBlock bool

	startedAt   time.Time
	totalFrames uint64
}

// New constructs a DevicePipeline for stableID in the Stopped state. Call
// Start to begin capturing.
func New(stableID string, audioCfg config.AudioConfig, streamCfg config.StreamConfig) *DevicePipeline {
	return &DevicePipeline{
		stableID:  stableID,
		audioCfg:  audioCfg.Clone(),
		streamCfg: streamCfg,
		state:     Stopped,
	}
}

// StableID returns the device ID this pipeline was constructed for.
func (p *DevicePipeline) StableID() string { return p.stableID }

// Start transitions Stopped -> Starting -> Running, opening the audio
// device and constructing the DSP/throttle/broadcast chain. It returns an
// error and leaves the pipeline Stopped if the device can't be opened —
// callers that want auto-restart on transient failures should run it under
// a Supervisor (NewSupervisor, then Run) instead of calling Start directly.
func (p *DevicePipeline) Start() error {
	p.mu.Lock()
	if p.state != Stopped {
		p.mu.Unlock()
		return fmt.Errorf("pipeline %s: cannot start from state %s", p.stableID, p.state)
	}
	p.state = Starting
	audioCfg := p.audioCfg
	streamCfg := p.streamCfg
	p.mu.Unlock()

	source, err := audioio.OpenAudioSource(audioCfg.DeviceNames, audioCfg.SampleRate, audioCfg.BlockSize, 1)
	if err != nil {
		p.setStopped(err)
		return err
	}

	windowKind, err := dsp.ParseWindowKind(audioCfg.WindowKind)
	if err != nil {
		source.Close()
		cfgErr := &ConfigError{err: err}
		p.setStopped(cfgErr)
		return cfgErr
	}

	processor, err := dsp.NewProcessor(audioCfg.SampleRate, audioCfg.FFTSize, windowKind, audioCfg.OverlapFraction, streamCfg.ThresholdDb)
	if err != nil {
		source.Close()
		cfgErr := &ConfigError{err: err}
		p.setStopped(cfgErr)
		return cfgErr
	}

	if err := source.Start(); err != nil {
		source.Close()
		p.setStopped(err)
		return err
	}

	p.mu.Lock()
	p.source = source
	p.processor = processor
	p.throttler = throttle.NewStreamThrottler(streamCfg.MagnitudeThresholdDb, streamCfg.SimilarityThreshold, streamCfg.EnableSmartSkip, streamCfg.TargetFps)
	if streamCfg.EnableAdaptiveFps {
		p.adaptiveCtl = throttle.NewAdaptiveFPSController(streamCfg.TargetFps, streamCfg.MinAdaptiveFps, streamCfg.MaxAdaptiveFps)
	} else {
		p.adaptiveCtl = nil
	}
	p.encoder = frame.NewEncoder()
	p.broadcaster = broadcast.NewBroadcaster(broadcast.DefaultCapacity)
	p.recorder = audioio.NewRawCaptureRecorder(audioCfg.SampleRate)
	p.stopCh = make(chan struct{})
	p.state = Running
	p.haveLastBlock = false
	p.startedAt = time.Now()
	atomic.StoreUint64(&p.totalFrames, 0)
	p.mu.Unlock()

	atomic.StoreInt32(&p.running, 1)
	p.wg.Add(1)
	go p.loop()

	applog.Infof("pipeline %s: started on device %q", p.stableID, source.DeviceName())
	return nil
}

// Stop transitions Running -> Stopping -> Stopped, tearing down the audio
// stream and closing the broadcaster so subscribers see their channel
// close cleanly.
func (p *DevicePipeline) Stop() error {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline %s: cannot stop from state %s", p.stableID, p.state)
	}
	p.state = Stopping
	stopCh := p.stopCh
	source := p.source
	broadcaster := p.broadcaster
	p.mu.Unlock()

	atomic.StoreInt32(&p.running, 0)
	close(stopCh)
	p.wg.Wait()

	if err := source.Stop(); err != nil {
		applog.Warnf("pipeline %s: stream stop: %v", p.stableID, err)
	}
	if err := source.Close(); err != nil {
		applog.Warnf("pipeline %s: stream close: %v", p.stableID, err)
	}
	if broadcaster != nil {
		broadcaster.Close()
	}

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()

	applog.Infof("pipeline %s: stopped", p.stableID)
	return nil
}

// Subscribe registers a new frame consumer. Returns nil if the pipeline
// isn't currently running.
func (p *DevicePipeline) Subscribe() *broadcast.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broadcaster == nil {
		return nil
	}
	return p.broadcaster.Subscribe()
}

// Unsubscribe removes a frame consumer registered via Subscribe.
func (p *DevicePipeline) Unsubscribe(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broadcaster != nil {
		p.broadcaster.Unsubscribe(id)
	}
}

// UpdateStreamConfig stores cfg on a running (or stopped) pipeline and
// applies the throttle fields (magnitude threshold, similarity threshold,
// smart skip, target FPS) to a running throttler without a restart.
// ThresholdDb is not passed to the running FFTProcessor (that is
// UpdateAudioHotParams' job); otherwise it takes effect on the next Start.
// Enabling or disabling adaptive FPS takes effect at once, but an existing
// adaptive controller keeps the target and bounds it was created with.
func (p *DevicePipeline) UpdateStreamConfig(cfg config.StreamConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamCfg = cfg
	if p.throttler != nil {
		p.throttler.UpdateHot(cfg.MagnitudeThresholdDb, cfg.SimilarityThreshold, cfg.EnableSmartSkip, cfg.TargetFps)
	}
	if cfg.EnableAdaptiveFps {
		if p.adaptiveCtl == nil {
			p.adaptiveCtl = throttle.NewAdaptiveFPSController(cfg.TargetFps, cfg.MinAdaptiveFps, cfg.MaxAdaptiveFps)
		}
	} else {
		p.adaptiveCtl = nil
	}
	return nil
}

// UpdateAudioHotParams applies the AudioConfig fields that don't require a
// restart (window kind, overlap fraction, noise floor via StreamConfig's
// ThresholdDb) to a running pipeline's FFTProcessor.
func (p *DevicePipeline) UpdateAudioHotParams(windowKind string, overlapFraction, thresholdDb float64) error {
	kind, err := dsp.ParseWindowKind(windowKind)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processor == nil {
		return fmt.Errorf("pipeline %s: not running", p.stableID)
	}
	return p.processor.SetHotParams(kind, overlapFraction, thresholdDb)
}

// Status returns a snapshot of the pipeline's current health.
func (p *DevicePipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		StableID:     p.stableID,
		State:        p.state,
		RestartCount: p.restartCount,
		AudioConfig:  p.audioCfg,
		StreamConfig: p.streamCfg,
		TotalFrames:  atomic.LoadUint64(&p.totalFrames),
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	if p.broadcaster != nil {
		snap := p.broadcaster.Snapshot()
		st.SubscriberCount = snap.SubscriberCount
		st.TotalDropped = snap.TotalDropped
	}
	if p.source != nil {
		st.Overruns = p.source.Overruns()
	}
	if p.adaptiveCtl != nil {
		st.ObservedFps = float64(p.adaptiveCtl.CurrentFps())
	} else {
		st.ObservedFps = float64(p.streamCfg.TargetFps)
	}
	if p.state == Running {
		st.UptimeMs = time.Since(p.startedAt).Milliseconds()
	}
	return st
}

func (p *DevicePipeline) setStopped(err error) {
	p.mu.Lock()
	p.state = Stopped
	p.lastErr = err
	p.mu.Unlock()
}

// loop is the pipeline's read-process-gate-publish cycle. It polls the
// AudioSource rather than blocking on it, since AudioSource.Blocks never
// blocks either (see audioio's ring buffer).
func (p *DevicePipeline) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(audioio.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case pollAt := <-ticker.C:
			p.processOnce(pollAt)
		}
	}
}

func (p *DevicePipeline) processOnce(pollAt time.Time) {
	p.mu.Lock()
	source := p.source
	processor := p.processor
	throttler := p.throttler
	adaptiveCtl := p.adaptiveCtl
	encoder := p.encoder
	broadcaster := p.broadcaster
	recorder := p.recorder
	p.mu.Unlock()

	if source == nil {
		return
	}

	block := source.Blocks()
	if block == nil {
		return
	}
	_ = recorder.WriteSamples(block)

	blockAt := time.Now()
	p.mu.Lock()
	var producerWait time.Duration
	if p.haveLastBlock {
		producerWait = blockAt.Sub(p.lastBlockAt)
	}
	p.lastBlockAt = blockAt
	p.haveLastBlock = true
	p.mu.Unlock()

	frames := processor.Push(block)
	atomic.AddUint64(&p.totalFrames, uint64(len(frames)))

	for i := range frames {
		var fps float64
		if adaptiveCtl != nil {
			currentInterval := time.Second / time.Duration(maxInt(1, adaptiveCtl.CurrentFps()))
			if newFps, changed := adaptiveCtl.Observe(producerWait, currentInterval); changed {
				throttler.SetFrameInterval(time.Second / time.Duration(newFps))
			}
			fps = float64(adaptiveCtl.CurrentFps())
		} else {
			fps = float64(p.currentTargetFps())
		}
		frames[i].Fps = fps

		if !throttler.Allow(&frames[i], pollAt) {
			continue
		}

		p.mu.Lock()
		compressionLevel := p.streamCfg.CompressionLevel
		p.mu.Unlock()

		wf, err := encoder.Encode(&frames[i], compressionLevel)
		if err != nil {
			applog.Errorf("pipeline %s: encode frame: %v", p.stableID, err)
			continue
		}
		broadcaster.Publish(wf)
	}
}

func (p *DevicePipeline) currentTargetFps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCfg.TargetFps
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
