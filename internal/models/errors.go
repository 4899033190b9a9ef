package models

import "errors"

var (
	ErrInvalidName            = errors.New("invalid participant name")
	ErrDuplicateName          = errors.New("participant already exists")
	ErrNotFound               = errors.New("participant not found")
	ErrInvalidEntryCount      = errors.New("entry count must be a positive integer")
	ErrInvalidActivityLabel   = errors.New("activity label is required")
	ErrNoEligibleParticipants = errors.New("no participants with raffle entries")
	ErrAlreadyDrawing         = errors.New("a drawing is already in progress")
	ErrNotDrawing             = errors.New("no drawing in progress")
	ErrInvalidState           = errors.New("invalid drawing state")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidName, "InvalidName"},
	{ErrDuplicateName, "DuplicateName"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidEntryCount, "InvalidEntryCount"},
	{ErrInvalidActivityLabel, "InvalidActivityLabel"},
	{ErrNoEligibleParticipants, "NoEligibleParticipants"},
	{ErrAlreadyDrawing, "AlreadyDrawing"},
	{ErrNotDrawing, "NotDrawing"},
	{ErrInvalidState, "InvalidState"},
}

// ErrorKind names the raffle error wrapped by err, or "" when err is not one of ours.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
