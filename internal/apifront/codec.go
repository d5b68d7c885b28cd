package apifront

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/gitpatchd/gitpatchd/internal/apierrors"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
)

// requestKind tags a wireRequest's active fields. gob can encode an
// interface value only if every concrete type crossing the wire has been
// registered with gob.Register; a flat, explicitly-tagged envelope avoids
// that registration step entirely and keeps the wire format a single
// struct per direction.
type requestKind uint8

const (
	kindUpdate requestKind = iota + 1
	kindPatch
	kindID
	kindAddPeer
	kindShutdown
)

// wireRequest is the gob encoding of a Request. Only the fields relevant
// to Kind are meaningful.
type wireRequest struct {
	Kind        requestKind
	Peer        [peerid.Size]byte
	Commit      [32]byte
	Nickname    string
	HasNickname bool
}

func encodeRequest(req Request) (wireRequest, error) {
	switch r := req.(type) {
	case UpdateRequest:
		return wireRequest{Kind: kindUpdate, Peer: r.Peer}, nil
	case PatchRequest:
		return wireRequest{Kind: kindPatch, Peer: r.Peer, Commit: r.Commit}, nil
	case IdRequest:
		w := wireRequest{Kind: kindID}
		if r.Nickname != nil {
			w.HasNickname = true
			w.Nickname = *r.Nickname
		}
		return w, nil
	case AddPeerRequest:
		return wireRequest{Kind: kindAddPeer, Peer: r.Peer, Nickname: r.Nickname}, nil
	case ShutdownRequest:
		return wireRequest{Kind: kindShutdown}, nil
	default:
		return wireRequest{}, fmt.Errorf("apifront: unknown request type %T", req)
	}
}

func (w wireRequest) decode() (Request, error) {
	switch w.Kind {
	case kindUpdate:
		return UpdateRequest{Peer: peerid.ID(w.Peer)}, nil
	case kindPatch:
		return PatchRequest{Peer: peerid.ID(w.Peer), Commit: gitrepo.Commit(w.Commit)}, nil
	case kindID:
		if !w.HasNickname {
			return IdRequest{}, nil
		}
		nickname := w.Nickname
		return IdRequest{Nickname: &nickname}, nil
	case kindAddPeer:
		return AddPeerRequest{Peer: peerid.ID(w.Peer), Nickname: w.Nickname}, nil
	case kindShutdown:
		return ShutdownRequest{}, nil
	default:
		return nil, fmt.Errorf("apifront: unknown wire request kind %d", w.Kind)
	}
}

// responseKind tags a wireResponse's active fields.
type responseKind uint8

const (
	kindUpdateResp responseKind = iota + 1
	kindPatchResp
	kindIDResp
	kindAddPeerResp
	kindShutdownResp
)

// wireResponse is the gob encoding of a Response. For the documented,
// fixed-message apierrors sentinels, only HasErr needs to cross the wire:
// the concrete value is recovered from which Kind this envelope carries,
// since each response variant only ever fails with one such sentinel.
// ErrTransport marks the one kind of error that is NOT a fixed sentinel —
// apierrors.TransportError, a dispatch-level failure (e.g. a registered
// peer that is currently unreachable) — whose actual message must cross
// the wire in ErrMsg instead of being coerced to the sentinel.
type wireResponse struct {
	Kind         responseKind
	Peer         [peerid.Size]byte
	ErrMsg       string
	HasErr       bool
	ErrTransport bool
}

func encodeResponse(resp Response) (wireResponse, error) {
	switch r := resp.(type) {
	case UpdateResponse:
		w := wireResponse{Kind: kindUpdateResp}
		setErr(&w, r.Err)
		return w, nil
	case PatchResponse:
		w := wireResponse{Kind: kindPatchResp}
		setErr(&w, r.Err)
		return w, nil
	case IdResponse:
		w := wireResponse{Kind: kindIDResp, Peer: r.Peer}
		setErr(&w, r.Err)
		return w, nil
	case AddPeerResponse:
		w := wireResponse{Kind: kindAddPeerResp}
		setErr(&w, r.Err)
		return w, nil
	case ShutdownResponse:
		return wireResponse{Kind: kindShutdownResp}, nil
	default:
		return wireResponse{}, fmt.Errorf("apifront: unknown response type %T", resp)
	}
}

func setErr(w *wireResponse, err error) {
	if err == nil {
		return
	}
	w.HasErr = true
	if te, ok := err.(apierrors.TransportError); ok {
		w.ErrTransport = true
		w.ErrMsg = string(te)
		return
	}
	w.ErrMsg = err.Error()
}

func (w wireResponse) decode() (Response, error) {
	switch w.Kind {
	case kindUpdateResp:
		return UpdateResponse{Err: errOrNil(w, apierrors.UnknownPeerId)}, nil
	case kindPatchResp:
		return PatchResponse{Err: errOrNil(w, apierrors.UnknownPeerId)}, nil
	case kindIDResp:
		return IdResponse{Peer: peerid.ID(w.Peer), Err: errOrNil(w, apierrors.UnknownNickname)}, nil
	case kindAddPeerResp:
		return AddPeerResponse{Err: errOrNil(w, apierrors.NicknameAlreadyExists)}, nil
	case kindShutdownResp:
		return ShutdownResponse{}, nil
	default:
		return nil, fmt.Errorf("apifront: unknown wire response kind %d", w.Kind)
	}
}

// errOrNil recovers the error value for a wireResponse whose HasErr flag
// is set. A transport-level failure carries its own message (ErrTransport
// is set; the sentinel passed in is not used at all) and is reconstructed
// as an apierrors.TransportError. Otherwise this response variant fails
// with exactly one fixed apierrors kind, so the sentinel passed in is
// returned as-is.
func errOrNil(w wireResponse, sentinel error) error {
	if w.ErrTransport {
		return apierrors.TransportError(w.ErrMsg)
	}
	if !w.HasErr {
		return nil
	}
	return sentinel
}

// requestEncoder writes successive wireRequest values through a single
// gob.Encoder bound to one connection's lifetime. gob transmits a type's
// wire definition the first time a value of that type is encoded on a
// given Encoder and rejects a repeat of that definition on the decoding
// side, so every value after the first must reuse the same Encoder the
// first one used rather than a fresh one per message.
type requestEncoder struct {
	enc *gob.Encoder
}

func newRequestEncoder(w io.Writer) *requestEncoder {
	return &requestEncoder{enc: gob.NewEncoder(w)}
}

func (e *requestEncoder) send(req Request) error {
	wr, err := encodeRequest(req)
	if err != nil {
		return err
	}
	return e.enc.Encode(wr)
}

// responseEncoder is requestEncoder's mirror for the reply direction.
type responseEncoder struct {
	enc *gob.Encoder
}

func newResponseEncoder(w io.Writer) *responseEncoder {
	return &responseEncoder{enc: gob.NewEncoder(w)}
}

func (e *responseEncoder) send(resp Response) error {
	wr, err := encodeResponse(resp)
	if err != nil {
		return err
	}
	return e.enc.Encode(wr)
}

// requestDecoder reads successive wireRequest values from a single
// gob.Decoder bound to one connection's lifetime.
type requestDecoder struct {
	dec *gob.Decoder
}

func newRequestDecoder(r io.Reader) *requestDecoder {
	return &requestDecoder{dec: gob.NewDecoder(r)}
}

func (d *requestDecoder) next() (Request, error) {
	var wr wireRequest
	if err := d.dec.Decode(&wr); err != nil {
		return nil, err
	}
	return wr.decode()
}

type responseDecoder struct {
	dec *gob.Decoder
}

func newResponseDecoder(r io.Reader) *responseDecoder {
	return &responseDecoder{dec: gob.NewDecoder(r)}
}

func (d *responseDecoder) next() (Response, error) {
	var wr wireResponse
	if err := d.dec.Decode(&wr); err != nil {
		return nil, err
	}
	return wr.decode()
}
