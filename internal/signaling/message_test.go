package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeJSON(t *testing.T) {
	b, err := json.Marshal(Envelope{UserID: "u1", Data: OfferSignal(SessionDescription{Type: "offer", SDP: "v=0"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"u1","data":{"type":"offer","offer":{"type":"offer","sdp":"v=0"}}}`, string(b))

	b, err = json.Marshal(Envelope{UserID: "u1", Data: CandidateSignal(nil)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"u1","data":{"type":"candidate","candidate":null}}`, string(b))
}

func TestDecodeBrowserCandidate(t *testing.T) {
	raw := `{"userId":"b","data":{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host","sdpMid":"0","sdpMLineIndex":0,"usernameFragment":"abcd"}}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "b", env.UserID)
	assert.Equal(t, TypeCandidate, env.Data.Type)
	require.NotNil(t, env.Data.Candidate)
	assert.Equal(t, "0", *env.Data.Candidate.SDPMid)
	assert.Equal(t, uint16(0), *env.Data.Candidate.SDPMLineIndex)
	assert.False(t, env.Data.Candidate.EndOfCandidates())

	require.NoError(t, json.Unmarshal([]byte(`{"userId":"b","data":{"type":"candidate","candidate":null}}`), &env))
	assert.True(t, env.Data.Candidate.EndOfCandidates())
}
