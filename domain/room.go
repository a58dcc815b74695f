package domain

import "strconv"

// RoomID identifies a conversation and therefore its fan-out scope.
type RoomID int

func (r RoomID) String() string {
	return strconv.Itoa(int(r))
}

// UserID identifies an authenticated user. It is the subject of the access token.
type UserID string

func (u UserID) String() string {
	return string(u)
}
