package waitset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/go-waitset/message"
)

type addRequest struct {
	A int `json:"a"`
	B int `json:"b"`
}

type addReply struct {
	Sum int `json:"sum"`
}

func TestRequestReplyRoundTrip(t *testing.T) {
	s := createTestSession(t)

	svc, err := s.NewService("add_two_ints")
	require.NoError(t, err)
	cli, err := s.NewClient("add_two_ints")
	require.NoError(t, err)

	seq, err := cli.SendRequest(addRequest{A: 2, B: 3})
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)

	ws := s.NewWaitSet()
	w := &Waitables{Services: []*Service{svc}}
	require.NoError(t, ws.Wait(w, 2*time.Second))
	require.Same(t, svc, w.Services[0])

	var req addRequest
	id, ok, err := svc.TakeRequest(&req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cli.Identity(), id.Writer)
	assert.Equal(t, seq, id.Sequence)
	assert.Equal(t, 2, req.A)
	assert.Equal(t, 3, req.B)

	require.NoError(t, svc.SendResponse(id, addReply{Sum: req.A + req.B}))

	w = &Waitables{Clients: []*Client{cli}}
	require.NoError(t, ws.Wait(w, 2*time.Second))
	require.Same(t, cli, w.Clients[0])

	var rep addReply
	rid, ok, err := cli.TakeResponse(&rep)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, rid, "reply carries the request pair back bit-identically")
	assert.Equal(t, 5, rep.Sum)
}

func TestTwoClientsReceiveOnlyOwnReplies(t *testing.T) {
	s := createTestSession(t)

	svc, err := s.NewService("echo")
	require.NoError(t, err)
	alpha, err := s.NewClient("echo")
	require.NoError(t, err)
	beta, err := s.NewClient("echo")
	require.NoError(t, err)

	seqA, err := alpha.SendRequest(addRequest{A: 1})
	require.NoError(t, err)
	seqB, err := beta.SendRequest(addRequest{A: 2})
	require.NoError(t, err)

	// Serve both requests.
	ws := s.NewWaitSet()
	served := 0
	for served < 2 {
		w := &Waitables{Services: []*Service{svc}}
		require.NoError(t, ws.Wait(w, 2*time.Second))
		for {
			var req addRequest
			id, ok, err := svc.TakeRequest(&req)
			require.NoError(t, err)
			if !ok {
				break
			}
			require.NoError(t, svc.SendResponse(id, addReply{Sum: req.A * 10}))
			served++
		}
	}

	var rep addReply
	w := &Waitables{Clients: []*Client{alpha}}
	require.NoError(t, ws.Wait(w, 2*time.Second))
	rid, ok, err := alpha.TakeResponse(&rep)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, message.RequestID{Writer: alpha.Identity(), Sequence: seqA}, rid)
	assert.Equal(t, 10, rep.Sum)

	// Alpha got exactly one reply: its own.
	_, ok, err = alpha.TakeResponse(&rep)
	require.NoError(t, err)
	assert.False(t, ok)

	w = &Waitables{Clients: []*Client{beta}}
	require.NoError(t, ws.Wait(w, 2*time.Second))
	rid, ok, err = beta.TakeResponse(&rep)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, message.RequestID{Writer: beta.Identity(), Sequence: seqB}, rid)
	assert.Equal(t, 20, rep.Sum)
}

func TestClientReplyFilterShape(t *testing.T) {
	s := createTestSession(t)
	cli, err := s.NewClient("calc")
	require.NoError(t, err)

	f := cli.ReplyFilter()
	hx := cli.Identity().String()
	assert.Equal(t, "rr.calc_"+hx, f.Name)
	assert.Equal(t, "related.writer_id = &hex("+hx+")", f.Expression)
	assert.Equal(t, "rr.calc."+hx, f.subject())
}

func TestServiceSendResponseZeroID(t *testing.T) {
	s := createTestSession(t)
	svc, err := s.NewService("nothing")
	require.NoError(t, err)

	err = svc.SendResponse(message.RequestID{}, addReply{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestClientClose(t *testing.T) {
	s := createTestSession(t)
	cli, err := s.NewClient("closing")
	require.NoError(t, err)

	require.NoError(t, cli.Close())
	assert.ErrorIs(t, cli.Close(), ErrClosed)

	_, err = cli.SendRequest(addRequest{})
	assert.ErrorIs(t, err, ErrClosed)
	var rep addReply
	_, _, err = cli.TakeResponse(&rep)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServiceClose(t *testing.T) {
	s := createTestSession(t)
	svc, err := s.NewService("closing2")
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.ErrorIs(t, svc.Close(), ErrClosed)
	assert.ErrorIs(t, svc.SendResponse(message.RequestID{Writer: message.NewIdentity(), Sequence: 1}, addReply{}), ErrClosed)
}
