package p2p

import "errors"

var (
	ErrSelfConnect          = errors.New("cannot attempt connection to self")
	ErrAlreadyConnected     = errors.New("already connected to this node")
	ErrBanned               = errors.New("node is banned")
	ErrUnexpectedNodePubKey = errors.New("unexpected node pubkey")
	ErrMalformedPacket      = errors.New("malformed packet")
	ErrPeerNotFound         = errors.New("peer not found")
	ErrTorDisabled          = errors.New("tor address given but tor is disabled")
	ErrInvalidNodeURI       = errors.New("invalid node uri")
)
