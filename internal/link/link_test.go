package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomdrop/roomdrop/internal/protocol"
	"github.com/roomdrop/roomdrop/internal/signaling"
)

func waitOpen(t *testing.T, l *Link) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	ch, err := l.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, Open, l.State())
}

func inject(s *fakeSignaler, from string, sig signaling.Signal) {
	s.incoming <- signaling.Envelope{UserID: from, Data: sig}
}

func TestCrossingOffersResolveToOneNegotiation(t *testing.T) {
	r := &room{}
	alice, bob := r.join("alice"), r.join("bob")
	ta, tb := newFakeTransport("alice"), newFakeTransport("bob")
	la, lb := New(ta, alice, nil), New(tb, bob, nil)

	require.NoError(t, la.Start(t.Context()))
	require.NoError(t, lb.Start(t.Context()))

	waitOpen(t, la)
	waitOpen(t, lb)

	// bob re-sends its offer with candidates added; alice must not answer
	// it a second time.
	time.Sleep(50 * time.Millisecond)

	_, rollbacks, _ := ta.snapshot()
	assert.Equal(t, 1, rollbacks, "smaller user id yields")
	assert.Equal(t, 2, bob.sentOfType(signaling.TypeOffer))
	assert.Contains(t, ta.remoteSDP(), "o=- bob0 1 ")
	_, rollbacks, _ = tb.snapshot()
	assert.Equal(t, 0, rollbacks)

	assert.Equal(t, 1, alice.sentOfType(signaling.TypeAnswer))
	assert.Equal(t, 0, bob.sentOfType(signaling.TypeAnswer))
	assert.Equal(t, ConnectionConnected, la.ConnectionState())
}

func TestLateJoinerReceivesRepublishedOffer(t *testing.T) {
	r := &room{}
	zed := r.join("zed")
	tz := newFakeTransport("zed")
	lz := New(tz, zed, nil)
	require.NoError(t, lz.Start(t.Context()))

	// zed's first offer went to an empty room; its own echo must be ignored.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Negotiating, lz.State())

	amy := r.join("amy")
	ta := newFakeTransport("amy")
	la := New(ta, amy, nil)
	require.NoError(t, la.Start(t.Context()))

	waitOpen(t, lz)
	waitOpen(t, la)

	assert.Equal(t, 2, zed.sentOfType(signaling.TypeOffer))
	_, rollbacks, _ := ta.snapshot()
	assert.Equal(t, 1, rollbacks)
}

func TestSameOffer(t *testing.T) {
	first := "v=0\r\no=- 4242 2 IN IP4 127.0.0.1\r\ns=-\r\n"
	withCandidates := first + "a=candidate:1 1 udp 1 10.0.0.1 5000 typ host\r\n"
	nextVersion := "v=0\r\no=- 4242 3 IN IP4 127.0.0.1\r\ns=-\r\n"

	assert.True(t, sameOffer(withCandidates, first))
	assert.False(t, sameOffer(nextVersion, first))
	assert.False(t, sameOffer(first, ""))
	assert.True(t, sameOffer("opaque", "opaque"))
	assert.False(t, sameOffer("opaque", "other"))
}

func TestRollbackRequiresPendingOffer(t *testing.T) {
	tr := newFakeTransport("x")
	assert.ErrorIs(t, tr.Rollback(), errWrongState)

	_, err := tr.CreateOffer(t.Context())
	require.NoError(t, err)
	require.NoError(t, tr.Rollback())
	assert.Nil(t, tr.LocalDescription())
	assert.ErrorIs(t, tr.Rollback(), errWrongState)
}

func TestEchoAndStaleAnswerAreIgnored(t *testing.T) {
	s := &fakeSignaler{userID: "zzz", incoming: make(chan signaling.Envelope, 16)}
	tr := newFakeTransport("zzz")
	l := New(tr, s, nil)
	require.NoError(t, l.Start(t.Context()))

	inject(s, "zzz", signaling.OfferSignal(signaling.SessionDescription{Type: "offer", SDP: "offer-zzz-1"}))
	inject(s, "aaa", signaling.AnswerSignal(signaling.SessionDescription{Type: "answer", SDP: "answer-aaa"}))
	waitOpen(t, l)

	// A late answer once stable is stale.
	inject(s, "aaa", signaling.AnswerSignal(signaling.SessionDescription{Type: "answer", SDP: "answer-aaa"}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Open, l.State())
	assert.NoError(t, l.Err())
}

func TestCandidatesWaitForRemoteDescription(t *testing.T) {
	s := &fakeSignaler{userID: "aaa", incoming: make(chan signaling.Envelope, 16)}
	tr := newFakeTransport("aaa")
	l := New(tr, s, nil)
	require.NoError(t, l.Start(t.Context()))

	host := &signaling.ICECandidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host"}
	inject(s, "bbb", signaling.CandidateSignal(host))
	inject(s, "bbb", signaling.CandidateSignal(nil))

	time.Sleep(20 * time.Millisecond)
	candidates, _, _ := tr.snapshot()
	assert.Empty(t, candidates)

	inject(s, "bbb", signaling.AnswerSignal(signaling.SessionDescription{Type: "answer", SDP: "answer-bbb"}))
	waitOpen(t, l)

	require.Eventually(t, func() bool {
		candidates, _, _ := tr.snapshot()
		return len(candidates) == 2
	}, time.Second, 5*time.Millisecond)

	candidates, _, _ = tr.snapshot()
	assert.Equal(t, host, candidates[0])
	assert.Nil(t, candidates[1])

	inject(s, "bbb", signaling.CandidateSignal(host))
	require.Eventually(t, func() bool {
		candidates, _, _ := tr.snapshot()
		return len(candidates) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestLocalCandidatesArePublished(t *testing.T) {
	s := &fakeSignaler{userID: "aaa", incoming: make(chan signaling.Envelope, 16)}
	tr := newFakeTransport("aaa")
	l := New(tr, s, nil)
	require.NoError(t, l.Start(t.Context()))

	tr.emitCandidate(&signaling.ICECandidate{Candidate: "candidate:1"})
	tr.emitCandidate(nil)
	assert.Equal(t, 2, s.sentOfType(signaling.TypeCandidate))
}

func TestTransportFailure(t *testing.T) {
	s := &fakeSignaler{userID: "aaa", incoming: make(chan signaling.Envelope, 16)}
	tr := newFakeTransport("aaa")
	l := New(tr, s, nil)

	var seen []ConnectionState
	l.OnConnectionState = func(cs ConnectionState) { seen = append(seen, cs) }

	require.NoError(t, l.Start(t.Context()))
	inject(s, "bbb", signaling.AnswerSignal(signaling.SessionDescription{Type: "answer", SDP: "answer-bbb"}))
	waitOpen(t, l)

	tr.setState(ConnectionDisconnected)
	assert.Equal(t, Open, l.State())

	tr.setState(ConnectionFailed)
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("link did not fail")
	}
	assert.Equal(t, Failed, l.State())
	assert.ErrorIs(t, l.Err(), ErrTransportFailure)
	assert.Equal(t, ConnectionFailed, l.ConnectionState())

	require.Eventually(t, func() bool { return len(seen) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []ConnectionState{ConnectionConnected, ConnectionDisconnected, ConnectionFailed}, seen)
}

func TestRelayRefusalFailsNegotiation(t *testing.T) {
	s := &fakeSignaler{userID: "aaa", incoming: make(chan signaling.Envelope, 16)}
	l := New(newFakeTransport("aaa"), s, nil)
	require.NoError(t, l.Start(t.Context()))

	s.closeWith(protocol.ErrRoomFull)

	_, err := l.Wait(t.Context())
	assert.ErrorIs(t, err, protocol.ErrRoomFull)
	assert.Equal(t, Failed, l.State())
}

func TestCloseTearsDownChannelThenTransport(t *testing.T) {
	s := &fakeSignaler{userID: "aaa", incoming: make(chan signaling.Envelope, 16)}
	tr := newFakeTransport("aaa")
	l := New(tr, s, nil)
	require.NoError(t, l.Start(t.Context()))
	inject(s, "bbb", signaling.AnswerSignal(signaling.SessionDescription{Type: "answer", SDP: "answer-bbb"}))
	waitOpen(t, l)

	require.NoError(t, l.Close())
	assert.True(t, tr.channel.isClosed())
	_, _, closed := tr.snapshot()
	assert.True(t, closed)
	assert.Equal(t, Closed, l.State())
	assert.Equal(t, ConnectionNew, l.ConnectionState())

	// The transport reporting closed after teardown is not a failure.
	tr.setState(ConnectionClosed)
	assert.Equal(t, Closed, l.State())
	assert.ErrorIs(t, l.Err(), ErrLinkClosed)
	assert.NoError(t, l.Close())

	assert.ErrorIs(t, l.Start(t.Context()), ErrAlreadyStarted)
}
