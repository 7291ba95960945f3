// Package errors implements the domain error taxonomy of spec.md §4.2/§7:
// a small, closed set of error kinds that every provider-handler boundary
// translates raw AWS SDK errors into, so upstream code never has to reason
// about AWS error codes directly.
package errors

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws/awserr"
)

// Kind is the closed set of domain error kinds.
type Kind string

const (
	Validation   Kind = "Validation"
	NotFound     Kind = "NotFound"
	Authorization Kind = "Authorization"
	Quota        Kind = "Quota"
	RateLimit    Kind = "RateLimit"
	ResourceInUse Kind = "ResourceInUse"
	Network      Kind = "Network"
	Infra        Kind = "Infra"
	CircuitOpen  Kind = "CircuitOpen"
	InvalidState Kind = "InvalidState"
	Configuration Kind = "ConfigurationError"
)

// Retryable reports whether the taxonomy considers this kind retryable in isolation
// (the resilience layer additionally consults strategy configuration).
func (k Kind) Retryable() bool {
	switch k {
	case RateLimit, Network, Infra:
		return true
	default:
		return false
	}
}

// DomainError is the single error type every package above pkg/cloudclient sees.
type DomainError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Retryable reports whether this specific error should be retried by the resilience layer.
func (e *DomainError) Retryable() bool { return e.Kind.Retryable() }

// New constructs a DomainError.
func New(kind Kind, message string, cause error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err, or any error it wraps, is a *DomainError of the given kind.
func Is(err error, kind Kind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// codeTable maps raw AWS error codes to domain kinds, per spec.md §4.2.
var codeTable = map[string]Kind{
	"ValidationError":                Validation,
	"InvalidParameterValue":          Validation,
	"InvalidParameterCombination":    Validation,
	"MissingParameter":               Validation,
	"LimitExceeded":                  Quota,
	"InstanceLimitExceeded":          Quota,
	"MaxSpotInstanceCountExceeded":   Quota,
	"ResourceInUse":                  ResourceInUse,
	"IncorrectState":                 ResourceInUse,
	"UnauthorizedOperation":          Authorization,
	"AccessDenied":                   Authorization,
	"AuthFailure":                    Authorization,
	"RequestLimitExceeded":           RateLimit,
	"Throttling":                     RateLimit,
	"ThrottlingException":            RateLimit,
	"ResourceNotFound":               NotFound,
	"InvalidInstanceID.NotFound":     NotFound,
	"InvalidFleetId.NotFound":        NotFound,
	"InvalidAutoScalingGroup.NotFound": NotFound,
	"InvalidLaunchTemplateId.NotFound": NotFound,
	"RequestTimeout":                 Network,
	"ServiceUnavailable":             Network,
	"RequestExpired":                 Network,
}

// FromAWS classifies a raw AWS SDK error into a DomainError. Any code not present
// in codeTable is classified Infra (spec.md §4.2 "anything else"), which the
// resilience layer treats as retryable.
func FromAWS(operation string, err error) *DomainError {
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		kind, ok := codeTable[aerr.Code()]
		if !ok {
			kind = Infra
		}
		return New(kind, fmt.Sprintf("%s failed (%s)", operation, aerr.Code()), err)
	}
	return New(Infra, fmt.Sprintf("%s failed", operation), err)
}
