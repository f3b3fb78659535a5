package media

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// TrackStats is a snapshot of one track's traffic.
type TrackStats struct {
	ID      string
	Kind    string
	Codec   string
	Packets uint64
	Bytes   uint64
}

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RemoteTrack counts the packets received on a remote track. Payloads are discarded.
type RemoteTrack struct {
	id    string
	kind  string
	codec string

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// NewRemoteTrack describes a track announced by the remote peer.
func NewRemoteTrack(id, kind, mimeType string) *RemoteTrack {
	return &RemoteTrack{id: id, kind: kind, codec: codecName(mimeType)}
}

// Consume reads r until it ends. A closed track is not an error.
func (t *RemoteTrack) Consume(r RTPReader) error {
	for {
		pkt, _, err := r.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		t.packets.Add(1)
		t.bytes.Add(uint64(len(pkt.Payload)))
	}
}

// Stats returns the counters so far.
func (t *RemoteTrack) Stats() TrackStats {
	return TrackStats{
		ID:      t.id,
		Kind:    t.kind,
		Codec:   t.codec,
		Packets: t.packets.Load(),
		Bytes:   t.bytes.Load(),
	}
}
