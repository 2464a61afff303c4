// Package schema resolves and validates the per-service input field
// schema: which declared field is the primary device identifier and
// which secondary fields a placement must carry.
package schema

import (
	"errors"

	"unlockdesk/internal/models"
	"unlockdesk/internal/request"
)

var ErrMissingPrimary = errors.New("primary field is required")

// MissingFieldError names the first required secondary field that was
// absent or empty in the submitted field map.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return e.Field + " is required"
}

// Resolve splits the declared fields of a service into the primary
// field name (IMEI services reserve the first declared field) and the
// required secondary field names, in declaration order.
func Resolve(svc *models.Service, declared []models.ServiceField) (primary string, required []string) {
	secondary := declared
	if svc.ServiceType == models.ServiceTypeIMEI && len(declared) > 0 {
		primary = declared[0].Name
		secondary = declared[1:]
	}
	required = make([]string, 0, len(secondary))
	for _, f := range secondary {
		required = append(required, f.Name)
	}
	return primary, required
}

// Validate checks a decoded placement against the service schema. An
// IMEI service with at least one declared field must carry a primary
// value; every required secondary field must be present and non-empty.
// Fields are checked in declaration order so the reported error is
// deterministic.
func Validate(svc *models.Service, declared []models.ServiceField, primaryValue string, fields request.FieldMap) error {
	if svc.ServiceType == models.ServiceTypeIMEI && len(declared) > 0 && primaryValue == "" {
		return ErrMissingPrimary
	}

	_, required := Resolve(svc, declared)
	for _, name := range required {
		if v, ok := fields.Get(name); !ok || v == "" {
			return MissingFieldError{Field: name}
		}
	}
	return nil
}
