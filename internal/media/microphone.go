package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"avatarstream/native/internal/domain"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	opusClockRate     = 48000
	defaultFrameDelay = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of silence (TOC 0xf8, no audio).
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var (
	errNoSource = errors.New("no audio input configured")
	errNoAudio  = errors.New("no audio pages in source")
)

// Devices acquires the local "microphone": an Ogg/Opus file played in a loop.
// It implements domain.MediaDevices.
type Devices struct {
	Path string
}

// CaptureAudio opens the audio source and starts streaming it. The returned
// capture starts disabled and sends silence until enabled.
func (d *Devices) CaptureAudio(ctx context.Context) (domain.AudioCapture, error) {
	if d.Path == "" {
		return nil, &domain.MediaAccessError{Err: errNoSource}
	}

	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, &domain.MediaAccessError{Source: d.Path, Err: err}
	}
	if _, _, err := oggreader.NewWith(bytes.NewReader(data)); err != nil {
		return nil, &domain.MediaAccessError{Source: d.Path, Err: fmt.Errorf("parse ogg: %w", err)}
	}

	streamID := uuid.NewString()
	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		uuid.NewString(), streamID,
	)
	if err != nil {
		return nil, &domain.MediaAccessError{Source: d.Path, Err: err}
	}

	// The capture outlives the request that acquired it; Close stops it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &Microphone{
		track:  track,
		data:   data,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.pump(ctx)

	log.Info().Str("module", "media").Str("source", d.Path).Str("stream_id", streamID).Msg("microphone captured")
	return m, nil
}

// Microphone streams Opus samples into a local track.
type Microphone struct {
	track   *pion.TrackLocalStaticSample
	data    []byte
	enabled atomic.Bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (m *Microphone) Track() pion.TrackLocal { return m.track }

func (m *Microphone) Enabled() bool { return m.enabled.Load() }

func (m *Microphone) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	log.Debug().Str("module", "media").Bool("enabled", enabled).Msg("microphone toggled")
}

// Close stops streaming and waits for the pump to exit.
func (m *Microphone) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
	})
	return nil
}

func (m *Microphone) pump(ctx context.Context) {
	defer close(m.done)

	for {
		if err := m.playOnce(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("module", "media").Msg("microphone stopped")
			}
			return
		}
	}
}

// playOnce streams the file from the start, paced by Ogg granule positions.
func (m *Microphone) playOnce(ctx context.Context) error {
	reader, _, err := oggreader.NewWith(bytes.NewReader(m.data))
	if err != nil {
		return fmt.Errorf("parse ogg: %w", err)
	}

	ticker := time.NewTicker(defaultFrameDelay)
	defer ticker.Stop()

	var lastGranule uint64
	written := 0
	for {
		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if written == 0 {
				return errNoAudio
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}

		duration := defaultFrameDelay
		if header.GranulePosition > lastGranule {
			samples := header.GranulePosition - lastGranule
			duration = time.Duration(samples) * time.Second / opusClockRate
		}
		lastGranule = header.GranulePosition

		payload := page
		if !m.enabled.Load() {
			payload = opusSilence
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := m.track.WriteSample(pionmedia.Sample{Data: payload, Duration: duration}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
		written++
		ticker.Reset(duration)
	}
}
