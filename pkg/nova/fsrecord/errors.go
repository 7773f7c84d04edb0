package fsrecord

import "errors"

// Store-boundary error taxonomy. Stores return these sentinels for expected
// conditions; unexpected filesystem failures are wrapped IO errors.
var (
	// ErrNotFound reports a missing bot, chat, persona, IAM item, or model file.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a create against an already existing name.
	ErrConflict = errors.New("already exists")

	// ErrInvalidIndex reports an out-of-range transcript index.
	ErrInvalidIndex = errors.New("invalid message index")

	// ErrRefused reports an operation rejected by policy, such as deleting the
	// default IAM set, deleting the system persona, or switching IAM sets after
	// the first user message.
	ErrRefused = errors.New("operation refused")
)
