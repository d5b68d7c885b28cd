package swarmfront

import (
	"bytes"
	"testing"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/stretchr/testify/require"
)

func commitN(n byte) gitrepo.Commit {
	var c gitrepo.Commit
	c[0] = n
	return c
}

func TestUpdateRequestRoundTrip(t *testing.T) {
	original := &UpdateRequest{Path: []gitrepo.Commit{commitN(1), commitN(2), commitN(3)}}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, original)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)

	got, ok := decoded.(*UpdateRequest)
	require.True(t, ok)
	require.Equal(t, original.Path, got.Path)
}

func TestUpdateRequestEmptyPathRoundTrip(t *testing.T) {
	original := &UpdateRequest{}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, original)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got := decoded.(*UpdateRequest)
	require.Empty(t, got.Path)
}

func TestPatchRequestRoundTrip(t *testing.T) {
	original := &PatchRequest{Commit: commitN(42)}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, original)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got := decoded.(*PatchRequest)
	require.Equal(t, original.Commit, got.Commit)
}

func TestUpdateResponseOkRoundTrip(t *testing.T) {
	original := &UpdateResponse{Ancestor: commitN(7)}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, original)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got := decoded.(*UpdateResponse)
	require.Empty(t, got.Rejection)
	require.Equal(t, original.Ancestor, got.Ancestor)
}

func TestUpdateResponseRejectionRoundTrip(t *testing.T) {
	original := &UpdateResponse{Rejection: apierrors.NoCommonAncestor}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, original)
	require.NoError(t, err)

	decoded, err := ReadMessage(&buf)
	require.NoError(t, err)
	got := decoded.(*UpdateResponse)
	require.Equal(t, apierrors.NoCommonAncestor, got.Rejection)
}

func TestReadMessageTruncatedHeader(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{1, 2}))
	require.Error(t, err)
}

func TestMultipleMessagesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteMessage(&buf, &PatchRequest{Commit: commitN(1)})
	require.NoError(t, err)
	_, err = WriteMessage(&buf, &PatchResponse{})
	require.NoError(t, err)

	first, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.IsType(t, &PatchRequest{}, first)

	second, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.IsType(t, &PatchResponse{}, second)
}
