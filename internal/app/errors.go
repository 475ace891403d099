package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("application already started")

	// ErrShutdown indicates the application was shut down.
	ErrShutdown = errors.New("application shut down")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// FolderError is a failure tied to one workspace folder.
type FolderError struct {
	Folder string
	Op     string
	Err    error
}

func (e *FolderError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
