package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Message type discriminators. Candidate messages intentionally have no
// entry here: the browser sends a bare RTCIceCandidate JSON object without
// a "type" field, and the protocol keeps that quirk. A candidate is
// recognized by the presence of its "candidate" field instead.
const (
	TypeJoin     = "join"
	TypeUserList = "userList"
	TypeOffer    = "offer"
	TypeAnswer   = "answer"
)

var ErrMalformed = errors.New("malformed signaling message")

// Kind classifies a decoded signaling message.
type Kind int

const (
	KindJoin Kind = iota
	KindUserList
	KindOffer
	KindAnswer
	KindCandidate
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return TypeJoin
	case KindUserList:
		return TypeUserList
	case KindOffer:
		return TypeOffer
	case KindAnswer:
		return TypeAnswer
	case KindCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// Join is the first message a participant sends after connecting.
type Join struct {
	Type string `json:"type"`
	User string `json:"user"`
}

func NewJoin(user string) Join {
	return Join{Type: TypeJoin, User: user}
}

// UserList is broadcast by the relay to every room member whenever
// membership changes. Users appear in join order.
type UserList struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

func NewUserList(users []string) UserList {
	return UserList{Type: TypeUserList, Users: users}
}

// Envelope is the decoded view of one signaling message. Exactly one of the
// payload pointers is set, according to Kind. Raw keeps the original bytes
// so the relay can forward messages verbatim.
type Envelope struct {
	Kind Kind
	Raw  json.RawMessage

	Join        *Join
	UserList    *UserList
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
}

// Decode parses raw bytes into an Envelope.
//
// Offer and answer messages carry the RTCSessionDescription JSON shape
// ({"type":...,"sdp":...}); candidates carry the RTCIceCandidate shape with
// no "type" field at all. Anything else is ErrMalformed.
func Decode(raw []byte) (*Envelope, error) {
	var probe struct {
		Type      *string `json:"type"`
		Candidate *string `json:"candidate"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	env := &Envelope{Raw: append(json.RawMessage(nil), raw...)}

	if probe.Type == nil {
		if probe.Candidate == nil {
			return nil, fmt.Errorf("%w: no type and no candidate field", ErrMalformed)
		}

		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &candidate); err != nil {
			return nil, fmt.Errorf("%w: decode candidate: %w", ErrMalformed, err)
		}

		env.Kind = KindCandidate
		env.Candidate = &candidate

		return env, nil
	}

	switch *probe.Type {
	case TypeJoin:
		var join Join
		if err := json.Unmarshal(raw, &join); err != nil {
			return nil, fmt.Errorf("%w: decode join: %w", ErrMalformed, err)
		}

		env.Kind = KindJoin
		env.Join = &join

	case TypeUserList:
		var userList UserList
		if err := json.Unmarshal(raw, &userList); err != nil {
			return nil, fmt.Errorf("%w: decode userList: %w", ErrMalformed, err)
		}

		env.Kind = KindUserList
		env.UserList = &userList

	case TypeOffer, TypeAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(raw, &desc); err != nil {
			return nil, fmt.Errorf("%w: decode session description: %w", ErrMalformed, err)
		}

		if *probe.Type == TypeOffer {
			env.Kind = KindOffer
		} else {
			env.Kind = KindAnswer
		}
		env.Description = &desc

	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformed, *probe.Type)
	}

	return env, nil
}
