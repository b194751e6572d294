package importer

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/schema"
)

// Sentinel errors, compared with errors.Is.
var (
	ErrRunNotFound         = eris.New("run not found")
	ErrRecordNotFound      = eris.New("record not found")
	ErrRecordNotInConflict = eris.New("record_not_in_conflict")
	ErrInvalidTransition   = eris.New("invalid run transition")
	ErrDryRunPublish       = eris.New("dry run cannot be published")
	ErrNotManualRun        = eris.New("run is not a manual upload")
	ErrCompanyNotFound     = eris.New("company not found")
)

// ValidationError rejects a request before any run is persisted.
type ValidationError = schema.ValidationError

// Validation codes added on top of the upload codes.
const (
	CodeInvalidRequest = schema.CodeInvalidRequest
	CodeCityNotFound   = "city_not_found"
	CodeNicheNotFound  = "niche_not_found"
)

// RunError reports a run that was accepted and then failed. Run carries the
// persisted failed run.
type RunError struct {
	Run *Run
	Err error
}

func (e *RunError) Error() string {
	return "importer: run " + e.Run.ID + " failed: " + e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest runs struct tags and converts failures into a
// ValidationError naming the first offending field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Code:    CodeInvalidRequest,
			Message: fe.Field() + " failed " + fe.Tag(),
			Row:     -1,
		}
	}
	return eris.Wrap(err, "importer: validate request")
}
