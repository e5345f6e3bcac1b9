package pion

import (
	"github.com/pion/webrtc/v3"
)

// videoStatsProvider is implemented by sources that can report what they are
// actually producing. The pacer is the source of truth for frame rate and
// resolution; transport stats only cover bytes and loss.
type videoStatsProvider interface {
	videoStats() (fps float64, width, height int)
	setTargetBitrate(bps int)
}

// localTrack adapts a pion RTP track to the media boundary. Video tracks
// carry a back reference to their producing source for stats.
type localTrack struct {
	rtpTrack *webrtc.TrackLocalStaticRTP
	source   videoStatsProvider
}

func (t *localTrack) ID() string {
	return t.rtpTrack.ID()
}

func (t *localTrack) Kind() string {
	return t.rtpTrack.Kind().String()
}
