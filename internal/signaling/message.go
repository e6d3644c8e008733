package signaling

import "encoding/json"

// Signal types carried in Envelope.Data.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Envelope is the JSON message relayed verbatim to every room member,
// sender included. UserID lets receivers drop their own echoes.
type Envelope struct {
	UserID string `json:"userId"`
	Data   Signal `json:"data"`
}

// Signal is one negotiation step.
type Signal struct {
	Type      string              `json:"type"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}

// MarshalJSON keeps an explicit "candidate": null on candidate signals so
// the peer sees the end of gathering.
func (s Signal) MarshalJSON() ([]byte, error) {
	if s.Type == TypeCandidate {
		return json.Marshal(struct {
			Type      string        `json:"type"`
			Candidate *ICECandidate `json:"candidate"`
		}{s.Type, s.Candidate})
	}

	type plain Signal
	return json.Marshal(plain(s))
}

// SessionDescription mirrors RTCSessionDescriptionInit.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// EndOfCandidates reports whether c marks the end of gathering. Browsers send
// either null or an empty candidate string.
func (c *ICECandidate) EndOfCandidates() bool {
	return c == nil || c.Candidate == ""
}

func OfferSignal(sd SessionDescription) Signal {
	return Signal{Type: TypeOffer, Offer: &sd}
}

func AnswerSignal(sd SessionDescription) Signal {
	return Signal{Type: TypeAnswer, Answer: &sd}
}

func CandidateSignal(c *ICECandidate) Signal {
	return Signal{Type: TypeCandidate, Candidate: c}
}
