package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrRejected      = errors.New("rejected by backend")
	ErrTransport     = errors.New("transport failure")
	ErrPersistence   = errors.New("persistence failure")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// DefaultErrorHint is returned by ErrorHint for errors without a marker.
const DefaultErrorHint = "check logs for details"

// ErrorHint maps a stage error to the operator hint attached to failure logs.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "check the topic and content kind supplied with the run"
	case errors.Is(err, ErrConfiguration):
		return "check the craefto config file"
	case errors.Is(err, ErrRejected):
		return "the generation backend refused the request; inspect its error message"
	case errors.Is(err, ErrTransport), errors.Is(err, ErrTimeout):
		return "verify generation.base_url is reachable and retry"
	case errors.Is(err, ErrPersistence):
		return "check data_dir permissions and free space"
	default:
		return DefaultErrorHint
	}
}

// EventType returns a stable event_type tag for a stage failure.
func EventType(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrConfiguration):
		return "configuration_invalid"
	case errors.Is(err, ErrRejected):
		return "generation_rejected"
	case errors.Is(err, ErrTransport), errors.Is(err, ErrTimeout):
		return "generation_unreachable"
	case errors.Is(err, ErrPersistence):
		return "persistence_failed"
	default:
		return "stage_failed"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
