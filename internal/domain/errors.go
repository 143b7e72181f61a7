package domain

import (
	"errors"
	"fmt"
)

// Markers attached by storage adapters so that services can classify failures
// without knowing the driver.
var (
	// ErrPersistence marks a failure reported by the database or its driver.
	ErrPersistence = errors.New("persistence failure")
	// ErrIntegrityViolation marks a unique, foreign-key, check or not-null violation.
	ErrIntegrityViolation = errors.New("integrity constraint violated")
)

// IsPersistence reports whether err was marked by a storage adapter.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrIntegrityViolation)
}

// Kind is the closed set of failure categories.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: malformed or unsupported connection string. Fatal at startup.
	KindConfiguration
	// KindConnection: the engine could not be constructed. Fatal at startup.
	KindConnection
	// KindSession: a persistence failure while a session scope was active.
	KindSession
	// KindUnexpectedSession: any other failure while a session scope was active.
	KindUnexpectedSession
	// KindUserProvisioning: the user row could not be ensured.
	KindUserProvisioning
	// KindEventStaging: event rows could not be built or staged.
	KindEventStaging
	// KindDataIntegrity: constraint violation at commit.
	KindDataIntegrity
	// KindDataPersistence: other persistence failure at commit, possibly transient.
	KindDataPersistence
	// KindUnexpectedIngestion: non-persistence failure during ingestion.
	KindUnexpectedIngestion
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindConfiguration:       "configuration",
	KindConnection:          "connection",
	KindSession:             "session",
	KindUnexpectedSession:   "unexpected_session",
	KindUserProvisioning:    "user_provisioning",
	KindEventStaging:        "event_staging",
	KindDataIntegrity:       "data_integrity",
	KindDataPersistence:     "data_persistence",
	KindUnexpectedIngestion: "unexpected_ingestion",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason refines a Kind into a specific message template.
type Reason string

const (
	ReasonInvalidURLType       Reason = "invalid_url_type"
	ReasonEmptyURL             Reason = "empty_url"
	ReasonMalformedURL         Reason = "malformed_url"
	ReasonMissingScheme        Reason = "missing_scheme"
	ReasonUnsupportedScheme    Reason = "unsupported_scheme"
	ReasonInvalidSQLiteFormat  Reason = "invalid_sqlite_format"
	ReasonInvalidEngineConfig  Reason = "invalid_engine_config"
	ReasonEngineCreationFailed Reason = "engine_creation_failed"
)

// Error is the typed failure returned by the session manager and the
// ingestion service. Value holds the offending input (scheme, user id),
// Detail any extra context such as the supported scheme list.
type Error struct {
	Kind   Kind
	Reason Reason
	Value  string
	Detail string
	Cause  error
}

// NewError builds an Error of the given kind around cause.
func NewError(kind Kind, value string, cause error) *Error {
	return &Error{Kind: kind, Value: value, Cause: cause}
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonInvalidURLType:
		return "database URL must be a string"
	case ReasonEmptyURL:
		return "database URL must not be empty"
	case ReasonMalformedURL:
		return fmt.Sprintf("database URL is malformed: %s", e.causeText())
	case ReasonMissingScheme:
		return "database URL must contain a scheme (e.g., 'postgresql://')"
	case ReasonUnsupportedScheme:
		return fmt.Sprintf("unsupported database scheme '%s'. Supported schemes: %s", e.Value, e.Detail)
	case ReasonInvalidSQLiteFormat:
		return "invalid SQLite URL format"
	case ReasonInvalidEngineConfig:
		return fmt.Sprintf("invalid database configuration: %s", e.causeText())
	case ReasonEngineCreationFailed:
		return fmt.Sprintf("failed to initialize database engine: %s", e.causeText())
	}

	switch e.Kind {
	case KindSession:
		return fmt.Sprintf("database session error: %s", e.causeText())
	case KindUnexpectedSession:
		return fmt.Sprintf("unexpected session error: %s", e.causeText())
	case KindUserProvisioning:
		return fmt.Sprintf("unable to create/find user %s: %s", e.Value, e.causeText())
	case KindEventStaging:
		return fmt.Sprintf("failed to stage events for user %s: %s", e.Value, e.causeText())
	case KindDataIntegrity:
		return fmt.Sprintf("data integrity issue when saving events for user %s: %s", e.Value, e.causeText())
	case KindDataPersistence:
		return fmt.Sprintf("database error while saving events for user %s: %s", e.Value, e.causeText())
	case KindUnexpectedIngestion:
		return fmt.Sprintf("unexpected error while processing events for user %s: %s", e.Value, e.causeText())
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.causeText())
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) causeText() string {
	if e.Cause == nil {
		return "<nil>"
	}
	return e.Cause.Error()
}

// KindOf returns the Kind of the outermost *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
