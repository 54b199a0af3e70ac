package session

import (
	"errors"
	"fmt"
)

// User-input errors. All are non-fatal and retryable by re-entering
// input; nothing in this package is fatal to the process.

type ErrNameInvalid struct {
}

func (e *ErrNameInvalid) Error() string {
	return "player name must not be empty"
}

func IsNameInvalid(err error) bool {
	var nameInvalid *ErrNameInvalid
	return errors.As(err, &nameInvalid)
}

type ErrRoomNotFound struct {
	Code string
}

func (e *ErrRoomNotFound) Error() string {
	return fmt.Sprintf("room %s not found or game already started", e.Code)
}

func IsRoomNotFound(err error) bool {
	var roomNotFound *ErrRoomNotFound
	return errors.As(err, &roomNotFound)
}

type ErrRoomFull struct {
	Code string
}

func (e *ErrRoomFull) Error() string {
	return fmt.Sprintf("room %s is full", e.Code)
}

func IsRoomFull(err error) bool {
	var roomFull *ErrRoomFull
	return errors.As(err, &roomFull)
}
