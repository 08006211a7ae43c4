/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"errors"
	"fmt"
)

// ErrUnknownTaskType is returned by the default handler when no handler is registered for the task type.
var ErrUnknownTaskType = errors.New("unknown task type")

// ErrChannelClosed is returned by a Channel that has been closed.
var ErrChannelClosed = errors.New("channel is closed")

// ErrMalformedMessage is returned when a received message cannot be decoded or is invalid.
var ErrMalformedMessage = errors.New("malformed message")

// ErrDispatcherClosed is returned for tasks dispatched after the Dispatcher was closed.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// TaskError is returned on the dispatcher side when the worker replies with an ERROR message.
type TaskError struct {
	TaskID   string
	TaskType string
	Message  string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %s", e.TaskID, e.TaskType, e.Message)
}
