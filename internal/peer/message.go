package peer

import (
	pion "github.com/pion/webrtc/v4"
)

// Signal payload types carried inside the broker's opaque signal envelope.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload is an SDP description or a trickled ICE candidate.
type SignalPayload struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// Signal is a relayed payload together with its envelope.
type Signal struct {
	RoomID  string
	From    string
	Payload SignalPayload
}

// Match describes the partner assigned by the broker.
type Match struct {
	RoomID         string
	Initiator      bool
	PartnerID      string
	PartnerCountry string
}
