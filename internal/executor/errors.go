package executor

import "errors"

// ErrAssistantNotFound is returned when the configured Assistant CLI
// binary is not present on PATH.
var ErrAssistantNotFound = errors.New("assistant CLI not found on PATH")
