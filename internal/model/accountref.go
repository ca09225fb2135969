package model

import (
	"errors"

	"github.com/google/uuid"
)

var ErrEmptyAccountRef = errors.New("account ref requires exactly one identifier")

// AccountRef is a tagged reference to an account by numeric id, public UUID
// or QR token. Callers resolve it through a single store lookup instead of
// branching on which field was present.
type AccountRef struct {
	ID      *int64
	UUID    *uuid.UUID
	QRToken *string
}

func RefByID(id int64) AccountRef {
	return AccountRef{ID: &id}
}

func RefByUUID(id uuid.UUID) AccountRef {
	return AccountRef{UUID: &id}
}

func RefByQRToken(token string) AccountRef {
	return AccountRef{QRToken: &token}
}

func (r AccountRef) Validate() error {
	set := 0
	if r.ID != nil {
		set++
	}
	if r.UUID != nil {
		set++
	}
	if r.QRToken != nil {
		set++
	}
	if set != 1 {
		return ErrEmptyAccountRef
	}
	return nil
}
