package swarmfront

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
)

// ProtocolID is the literal wire protocol identifier used during
// substream negotiation (spec §4.3). Bytes are identical on the wire; a
// future version bump gets a new identifier entirely.
const ProtocolID = "/git-patch/0.1"

// MaxMessagePayload bounds a single encoded message, generously sized for
// long ancestor paths.
const MaxMessagePayload = 1 << 20

// MessageType tags a WireMessage the same way lnwire.MessageType tags a
// lightning wire message: a small fixed header ahead of the payload.
type MessageType uint8

const (
	MsgUpdateRequest MessageType = iota + 1
	MsgPatchRequest
	MsgUpdateResponse
	MsgPatchResponse
)

// WireMessage is a SwarmRequest or SwarmResponse variant that knows how to
// serialize itself, in the same shape as lnwire.Message.
type WireMessage interface {
	Encode(w io.Writer) error
	Decode(r io.Reader) error
	MsgType() MessageType
}

func makeEmptyMessage(t MessageType) (WireMessage, error) {
	switch t {
	case MsgUpdateRequest:
		return &UpdateRequest{}, nil
	case MsgPatchRequest:
		return &PatchRequest{}, nil
	case MsgUpdateResponse:
		return &UpdateResponse{}, nil
	case MsgPatchResponse:
		return &PatchResponse{}, nil
	default:
		return nil, fmt.Errorf("swarmfront: unknown message type %d", t)
	}
}

// WriteMessage frames msg as [1-byte type][4-byte big-endian length][payload]
// and writes it to w.
func WriteMessage(w io.Writer, msg WireMessage) (int, error) {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return 0, err
	}
	if payload.Len() > MaxMessagePayload {
		return 0, fmt.Errorf("swarmfront: encoded message is %d bytes, "+
			"exceeds maximum of %d", payload.Len(), MaxMessagePayload)
	}

	var header [5]byte
	header[0] = byte(msg.MsgType())
	binary.BigEndian.PutUint32(header[1:], uint32(payload.Len()))

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload.Bytes())
	return n + m, err
}

// ReadMessage reads and decodes the next framed WireMessage from r.
func ReadMessage(r io.Reader) (WireMessage, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxMessagePayload {
		return nil, fmt.Errorf("swarmfront: announced payload length %d "+
			"exceeds maximum of %d", length, MaxMessagePayload)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateRequest carries the ancestor path computed by the dialing peer
// (spec §4.1.1): a non-empty, tip-first sequence of commits ending at the
// most recent commonly-known ancestor.
type UpdateRequest struct {
	Path []gitrepo.Commit
}

func (*UpdateRequest) MsgType() MessageType { return MsgUpdateRequest }
func (*UpdateRequest) isRequest()           {}

func (m *UpdateRequest) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(m.Path))); err != nil {
		return err
	}
	for _, c := range m.Path {
		if _, err := w.Write(c[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *UpdateRequest) Decode(r io.Reader) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return err
	}
	m.Path = make([]gitrepo.Commit, n)
	for i := range m.Path {
		if _, err := io.ReadFull(r, m.Path[i][:]); err != nil {
			return err
		}
	}
	return nil
}

// PatchRequest asks the peer for the patch introducing Commit. The wire
// shape of the patch content itself is left open by spec §9; only the
// request/response envelope is specified.
type PatchRequest struct {
	Commit gitrepo.Commit
}

func (*PatchRequest) MsgType() MessageType { return MsgPatchRequest }
func (*PatchRequest) isRequest()           {}

func (m *PatchRequest) Encode(w io.Writer) error {
	_, err := w.Write(m.Commit[:])
	return err
}

func (m *PatchRequest) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, m.Commit[:])
	return err
}

// UpdateResponse carries either the responder's chosen common ancestor or
// an UpdateRejection (spec §4.1.2).
type UpdateResponse struct {
	Ancestor  gitrepo.Commit
	Rejection apierrors.UpdateRejection // empty string means no rejection
}

func (*UpdateResponse) MsgType() MessageType { return MsgUpdateResponse }
func (*UpdateResponse) isResponse()          {}

func (m *UpdateResponse) Encode(w io.Writer) error {
	ok := byte(0)
	if m.Rejection == "" {
		ok = 1
	}
	if _, err := w.Write([]byte{ok}); err != nil {
		return err
	}
	if ok == 1 {
		_, err := w.Write(m.Ancestor[:])
		return err
	}
	return writeString(w, string(m.Rejection))
}

func (m *UpdateResponse) Decode(r io.Reader) error {
	var ok [1]byte
	if _, err := io.ReadFull(r, ok[:]); err != nil {
		return err
	}
	if ok[0] == 1 {
		m.Rejection = ""
		_, err := io.ReadFull(r, m.Ancestor[:])
		return err
	}
	s, err := readString(r)
	if err != nil {
		return err
	}
	m.Rejection = apierrors.UpdateRejection(s)
	return nil
}

// PatchResponse is the response envelope for a PatchRequest. Its payload
// is unspecified by spec §9 (no concrete handler exists); it is present
// only so the wire protocol carries the variant the spec mandates.
type PatchResponse struct{}

func (*PatchResponse) MsgType() MessageType { return MsgPatchResponse }
func (*PatchResponse) isResponse()          {}

func (*PatchResponse) Encode(io.Writer) error { return nil }
func (*PatchResponse) Decode(io.Reader) error { return nil }

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

var (
	_ Request  = (*UpdateRequest)(nil)
	_ Request  = (*PatchRequest)(nil)
	_ Response = (*UpdateResponse)(nil)
	_ Response = (*PatchResponse)(nil)
)
