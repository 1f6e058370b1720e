package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid          = errors.New("invalid parameter")
	ErrInvalidTarget         = errors.New("conversation target is invalid")
	ErrConversationHidden    = errors.New("conversation is not visible to you")
	ErrNoActiveConversation  = errors.New("no conversation is open")
	ErrMessageNotFound       = errors.New("message not found")
	ErrEmptyMessage          = errors.New("message is empty")
	ErrMessageTooLong        = errors.New("message is too long")
	ErrMessageInvalidUTF8    = errors.New("message is not valid UTF-8")
	ErrNotAuthor             = errors.New("only the author can change this message")
	ErrEditWindowClosed      = errors.New("message can no longer be edited")
	ErrMessageNotEditable    = errors.New("message cannot be edited")
	ErrSessionClosed         = errors.New("session is closed")
	ErrSessionAlreadyStarted = errors.New("session already started")
	UnauthorizedError        = errors.New("unauthorized")
	UnExpectedError          = errors.New("unexpected error, please retry")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:          BadRequest,
	ErrInvalidTarget:         BadRequest,
	ErrConversationHidden:    Forbidden,
	ErrNoActiveConversation:  BadRequest,
	ErrMessageNotFound:       NotFound,
	ErrEmptyMessage:          BadRequest,
	ErrMessageTooLong:        BadRequest,
	ErrMessageInvalidUTF8:    BadRequest,
	ErrNotAuthor:             Forbidden,
	ErrEditWindowClosed:      BadRequest,
	ErrMessageNotEditable:    BadRequest,
	ErrSessionClosed:         BadRequest,
	ErrSessionAlreadyStarted: BadRequest,
	UnauthorizedError:        Unauthorized,
	UnExpectedError:          InternalServerError,
}

// CodeOf maps err (or anything it wraps) to a response code.
func CodeOf(err error) int {
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code
		}
	}
	return InternalServerError
}
