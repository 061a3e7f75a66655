package mailing

import "errors"

var (
	// ErrNoMessages indicates the provider returned zero messages for a
	// list request.
	ErrNoMessages = errors.New("no messages found")

	// ErrAttachmentsTooLarge indicates the combined attachment size of an
	// outgoing message exceeds the provider limit.
	ErrAttachmentsTooLarge = errors.New("combined attachment size exceeds 25 MB")
)
