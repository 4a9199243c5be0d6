package domain

type (
	// SessionID groups the clients negotiating one peer connection.
	SessionID string
	// ClientID is the identity a client claims inside a session.
	ClientID string
)

// Kind tags a signaling message.
type Kind string

const (
	KindJoin    Kind = "join"
	KindOffer   Kind = "offer"
	KindAnswer  Kind = "answer"
	KindICE     Kind = "ice"
	KindControl Kind = "control"
)

func (k Kind) Valid() bool {
	switch k {
	case KindJoin, KindOffer, KindAnswer, KindICE, KindControl:
		return true
	}
	return false
}
