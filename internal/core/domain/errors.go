package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room full")
	ErrNotInRoom         = errors.New("participant not in room")
	ErrLinkNotFound      = errors.New("peer link not found")
	ErrMediaUnavailable  = errors.New("media device unavailable")
	ErrNegotiationFailed = errors.New("peer negotiation failed")
)
