package checkin

import (
	"net/http"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

type Outcome string

const (
	// OutcomeCreated: a new attendance record was written.
	OutcomeCreated Outcome = "created"
	// OutcomeAlreadyPresent: re-scan of a checked-in student; idempotent success.
	OutcomeAlreadyPresent Outcome = "already_present"
	// OutcomeAlreadyRecorded: manual check-in hit an existing record. Manual
	// entries are explicit administrative actions expected to be novel, so
	// this one is an error where a re-scan is not.
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeAccessDenied    Outcome = "access_denied"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeValidation      Outcome = "validation_failed"
)

func (o Outcome) HTTPStatus() int {
	switch o {
	case OutcomeCreated:
		return http.StatusCreated
	case OutcomeAlreadyPresent:
		return http.StatusOK
	case OutcomeAlreadyRecorded:
		return http.StatusUnprocessableEntity
	case OutcomeAccessDenied:
		return http.StatusForbidden
	case OutcomeNotFound:
		return http.StatusNotFound
	case OutcomeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Result carries the outcome kind plus whatever context the operator needs to
// act on it; policy denials still include the student identity.
type Result struct {
	Outcome    Outcome
	Reason     string
	Student    *model.Account
	Teacher    *model.Teacher
	Session    *model.ScanSession
	Attendance *model.AttendanceRecord
}
