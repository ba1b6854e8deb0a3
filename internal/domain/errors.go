package domain

import "errors"

var (
	// ErrNotInRoom is returned when an operation needs an active room binding.
	ErrNotInRoom = errors.New("not joined to a room")
	// ErrNoSession is returned when no session is running in the room.
	ErrNoSession = errors.New("no active session")
	// ErrNoQuestion is returned when the session has no displayed question.
	ErrNoQuestion = errors.New("no current question")
	// ErrAlreadyAnswered is returned on a second submission for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrIncompleteAnswer is returned when a draft is missing required fields.
	ErrIncompleteAnswer = errors.New("answer is incomplete")
	// ErrRoomClosed indicates the host closed the room.
	ErrRoomClosed = errors.New("room closed")
	// ErrStaleSubmission indicates a submission targeted a question that is no
	// longer displayed.
	ErrStaleSubmission = errors.New("submission targets a stale question")
)
