package webrtc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestAnnexBWriter_WritesStartCodes(t *testing.T) {
	out := &bufferCloser{}
	w := newAnnexBWriter(out)

	stapA := []byte{0x18, 0x00, 0x02, 0x67, 0xAA, 0x00, 0x01, 0x68}
	if err := w.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}, Payload: stapA}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}, Payload: []byte{0x65, 0x01}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	expected := []byte{
		0, 0, 0, 1, 0x67, 0xAA,
		0, 0, 0, 1, 0x68,
		0, 0, 0, 1, 0x65, 0x01,
	}
	if !bytes.Equal(out.Bytes(), expected) {
		t.Errorf("expected %v, got %v", expected, out.Bytes())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !out.closed {
		t.Error("expected underlying writer to be closed")
	}
}

func TestSink_WriterForDrainsWithoutDir(t *testing.T) {
	s := &Sink{}

	w, err := s.writerFor(pion.MimeTypeOpus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Errorf("expected nil writer without a media dir, got %T", w)
	}
}

func TestSink_WriterForPicksFileByCodec(t *testing.T) {
	dir := t.TempDir()
	s := &Sink{Dir: dir}

	cases := map[string]string{
		pion.MimeTypeH264: "video.h264",
		pion.MimeTypeVP8:  "video.ivf",
		pion.MimeTypeOpus: "audio.ogg",
	}
	for mime, file := range cases {
		w, err := s.writerFor(mime)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", mime, err)
		}
		if w == nil {
			t.Fatalf("%s: expected a writer", mime)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("%s: close: %v", mime, err)
		}
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			t.Errorf("%s: expected %s: %v", mime, file, err)
		}
	}

	w, err := s.writerFor(pion.MimeTypeG722)
	if err != nil || w != nil {
		t.Errorf("expected drain for unsupported codec, got %T, %v", w, err)
	}
}
