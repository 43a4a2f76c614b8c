package service

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies service errors for logging and degradation decisions
type ErrorType int

const (
	ErrorTypeValidation ErrorType = iota
	ErrorTypeProviderFailed
	ErrorTypeRateResolution
	ErrorTypeInfeasibleRoute
	ErrorTypeContextCancelled
	ErrorTypeUnknown
)

// ServiceError represents a service-specific error with type information
type ServiceError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// classifyError classifies an error and returns the appropriate error type
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var serviceError *ServiceError
	if errors.As(err, &serviceError) {
		return serviceError.Type
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeContextCancelled
	}
	return ErrorTypeProviderFailed
}
