package webrtc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// rtpWriter consumes the RTP packets of one remote track.
type rtpWriter interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Sink renders remote tracks. With an empty Dir every track is drained,
// otherwise H264 goes to video.h264, VP8 to video.ivf and Opus to audio.ogg.
// Each new session overwrites the previous recording.
type Sink struct {
	Dir string
}

// Attach starts reading track until it ends.
func (s *Sink) Attach(track *pion.TrackRemote) {
	codec := track.Codec()
	w, err := s.writerFor(codec.MimeType)
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("codec", codec.MimeType).Msg("open track output, draining instead")
		w = nil
	}
	go readTrack(track, w)
}

func (s *Sink) writerFor(mimeType string) (rtpWriter, error) {
	if s == nil || s.Dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	switch strings.ToLower(mimeType) {
	case strings.ToLower(pion.MimeTypeH264):
		f, err := os.Create(filepath.Join(s.Dir, "video.h264"))
		if err != nil {
			return nil, err
		}
		return newAnnexBWriter(f), nil
	case strings.ToLower(pion.MimeTypeVP8):
		return ivfwriter.New(filepath.Join(s.Dir, "video.ivf"))
	case strings.ToLower(pion.MimeTypeOpus):
		return oggwriter.New(filepath.Join(s.Dir, "audio.ogg"), 48000, 2)
	default:
		return nil, nil
	}
}

func readTrack(track *pion.TrackRemote, w rtpWriter) {
	l := log.With().Str("module", "webrtc").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Logger()
	if w != nil {
		defer func() {
			if err := w.Close(); err != nil {
				l.Warn().Err(err).Msg("close track output")
			}
		}()
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				l.Debug().Err(err).Msg("track read ended")
			}
			return
		}
		if w == nil {
			continue
		}
		if err := w.WriteRTP(pkt); err != nil {
			l.Warn().Err(err).Msg("write track output")
			return
		}
	}
}

// annexBWriter writes H264 NAL units with start codes, playable with ffplay -f h264.
type annexBWriter struct {
	out    io.WriteCloser
	depack *H264Depacketizer
}

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

func newAnnexBWriter(out io.WriteCloser) *annexBWriter {
	return &annexBWriter{out: out, depack: NewH264Depacketizer()}
}

func (w *annexBWriter) WriteRTP(pkt *rtp.Packet) error {
	for _, nalu := range w.depack.Depacketize(pkt.SequenceNumber, pkt.Payload) {
		if len(nalu) == 0 {
			continue
		}
		if _, err := w.out.Write(startCode); err != nil {
			return err
		}
		if _, err := w.out.Write(nalu); err != nil {
			return err
		}
	}
	return nil
}

func (w *annexBWriter) Close() error {
	return w.out.Close()
}
