package apifront

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
	"github.com/stretchr/testify/require"
)

func codecTestPeerID(t *testing.T) peerid.ID {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := peerid.FromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestRequestRoundTrip(t *testing.T) {
	peer := codecTestPeerID(t)
	nickname := "alice"

	cases := []Request{
		UpdateRequest{Peer: peer},
		PatchRequest{Peer: peer, Commit: gitrepo.Commit{1, 2, 3}},
		IdRequest{},
		IdRequest{Nickname: &nickname},
		AddPeerRequest{Peer: peer, Nickname: nickname},
		ShutdownRequest{},
	}

	var buf bytes.Buffer
	enc := newRequestEncoder(&buf)
	for _, req := range cases {
		require.NoError(t, enc.send(req))
	}

	dec := newRequestDecoder(&buf)
	for _, want := range cases {
		got, err := dec.next()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	peer := codecTestPeerID(t)

	cases := []Response{
		UpdateResponse{},
		UpdateResponse{Err: apierrors.UnknownPeerId},
		UpdateResponse{Err: apierrors.TransportError("peer unreachable: dial tcp: i/o timeout")},
		PatchResponse{Err: apierrors.TransportError("peer unreachable: connection refused")},
		IdResponse{Peer: peer},
		IdResponse{Err: apierrors.UnknownNickname},
		AddPeerResponse{Err: apierrors.NicknameAlreadyExists},
		ShutdownResponse{},
	}

	var buf bytes.Buffer
	enc := newResponseEncoder(&buf)
	for _, resp := range cases {
		require.NoError(t, enc.send(resp))
	}

	dec := newResponseDecoder(&buf)
	for _, want := range cases {
		got, err := dec.next()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
