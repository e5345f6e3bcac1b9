package pion

import (
	"math/rand"
	"sync"
	"time"

	"roomlink/internal/media"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/google/uuid"
)

const (
	defaultDeviceID = "default"

	videoClockRate = 90000
	audioClockRate = 48000

	// maxPayloadSize keeps RTP packets under typical path MTU.
	maxPayloadSize = 1200
)

// silentOpusFrame is a valid Opus packet decoding to silence.
var silentOpusFrame = []byte{0xf8, 0xff, 0xfe}

// audioSource paces silent Opus frames every 20ms so the audio m-line stays
// live end to end.
type audioSource struct {
	track *localTrack
	done  chan struct{}
	once  sync.Once
}

func newAudioSource() (*audioSource, error) {
	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: 2},
		"audio",
		"roomlink-"+uuid.NewString(),
	)
	if err != nil {
		return nil, err
	}

	s := &audioSource{
		track: &localTrack{rtpTrack: rtpTrack},
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *audioSource) run() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	seq := uint16(rand.Intn(1 << 16))
	ts := rand.Uint32()
	ssrc := rand.Uint32()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         false,
					SequenceNumber: seq,
					Timestamp:      ts,
					SSRC:           ssrc,
				},
				Payload: silentOpusFrame,
			}
			// Write errors just mean no link is bound yet.
			_ = s.track.rtpTrack.WriteRTP(pkt)

			seq++
			ts += audioClockRate / 50
		}
	}
}

func (s *audioSource) stop() {
	s.once.Do(func() { close(s.done) })
}

// videoSource is a test-pattern generator: VP8-framed RTP at the constrained
// frame rate, padded to hit the target bitrate. It stands in for a camera on
// headless hosts and is what quality sampling reads its numbers from.
type videoSource struct {
	track    *localTrack
	deviceID string

	mu            sync.Mutex
	constraints   media.VideoConstraints
	targetBitrate int
	measuredFPS   float64

	done chan struct{}
	once sync.Once
}

func newVideoSource(deviceID string, c media.VideoConstraints) (*videoSource, error) {
	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate},
		"video",
		"roomlink-"+uuid.NewString(),
	)
	if err != nil {
		return nil, err
	}

	if c.Framerate <= 0 {
		c.Framerate = 30
	}

	s := &videoSource{
		deviceID:      deviceID,
		constraints:   c,
		targetBitrate: 2_500_000,
		done:          make(chan struct{}),
	}
	s.track = &localTrack{rtpTrack: rtpTrack, source: s}

	go s.run()
	return s, nil
}

func (s *videoSource) Track() media.Track {
	return s.track
}

func (s *videoSource) DeviceID() string {
	return s.deviceID
}

func (s *videoSource) ApplyConstraints(c media.VideoConstraints) error {
	if c.Framerate <= 0 {
		c.Framerate = 30
	}

	s.mu.Lock()
	s.constraints = c
	s.mu.Unlock()
	return nil
}

func (s *videoSource) Stop() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *videoSource) videoStats() (float64, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measuredFPS, s.constraints.Width, s.constraints.Height
}

func (s *videoSource) setTargetBitrate(bps int) {
	s.mu.Lock()
	s.targetBitrate = bps
	s.mu.Unlock()
}

func (s *videoSource) run() {
	seq := uint16(rand.Intn(1 << 16))
	ts := rand.Uint32()
	ssrc := rand.Uint32()

	frames := 0
	windowStart := time.Now()

	for {
		s.mu.Lock()
		fps := s.constraints.Framerate
		frameBytes := int(float64(s.targetBitrate) / 8 / fps)
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		case <-time.After(time.Duration(float64(time.Second) / fps)):
		}

		seq = s.writeFrame(seq, ts, ssrc, frameBytes)
		ts += uint32(videoClockRate / fps)

		frames++
		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			s.mu.Lock()
			s.measuredFPS = float64(frames) / elapsed.Seconds()
			s.mu.Unlock()
			frames = 0
			windowStart = time.Now()
		}
	}
}

// writeFrame emits one frame as a run of RTP packets, marker set on the last.
func (s *videoSource) writeFrame(seq uint16, ts, ssrc uint32, frameBytes int) uint16 {
	remaining := frameBytes
	first := true

	for remaining > 0 || first {
		size := remaining
		if size > maxPayloadSize {
			size = maxPayloadSize
		}
		if size < 1 {
			size = 1
		}
		remaining -= size

		// Minimal VP8 payload descriptor: S bit marks the frame start.
		payload := make([]byte, size+1)
		if first {
			payload[0] = 0x10
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         remaining <= 0,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
			},
			Payload: payload,
		}
		_ = s.track.rtpTrack.WriteRTP(pkt)

		seq++
		first = false
	}
	return seq
}
