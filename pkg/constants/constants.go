// Package constants provides shared constants used throughout eolsync.
// This includes the catalog API contract (paths, field names, the EOL marker),
// timeouts, and circuit breaker limits.
package constants

import "time"

// Catalog API contract
const (
	// DefaultBaseURL is the public Port API endpoint
	DefaultBaseURL = "https://api.getport.io"

	// APIVersionPrefix is prepended to every catalog path
	APIVersionPrefix = "/v1"

	// AccessTokenPath is the credential exchange endpoint
	AccessTokenPath = APIVersionPrefix + "/auth/access_token"

	// EntitiesPathFormat formats the entity collection path of a blueprint
	EntitiesPathFormat = APIVersionPrefix + "/blueprints/%s/entities"

	// EntityPathFormat formats the path of a single entity of a blueprint
	EntityPathFormat = APIVersionPrefix + "/blueprints/%s/entities/%s"
)

// Reconciliation defaults
const (
	// ServiceBlueprint is the blueprint whose entities receive the count
	ServiceBlueprint = "service"

	// FrameworkBlueprint is the blueprint whose entities carry a lifecycle state
	FrameworkBlueprint = "framework"

	// FrameworkRelation is the service relation listing framework identifiers
	FrameworkRelation = "framework"

	// StateProperty is the framework property holding the lifecycle state
	StateProperty = "state"

	// EOLCountProperty is the service property overwritten with the count
	EOLCountProperty = "number_of_eol_packages"

	// EOLState is the lifecycle state counted as end-of-life (exact, case-sensitive)
	EOLState = "EOL"
)

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to the catalog
	DefaultHTTPTimeout = 30 * time.Second

	// TokenExpirySkew renews an access token this long before it expires
	TokenExpirySkew = 30 * time.Second

	// DefaultTokenLifetime is assumed when the token response omits expiresIn
	DefaultTokenLifetime = 1 * time.Hour
)

// Circuit breaker constants
const (
	// BreakerFailureThreshold trips the breaker after this many consecutive failures
	BreakerFailureThreshold = 5

	// BreakerOpenTimeout is how long an open breaker rejects calls before probing
	BreakerOpenTimeout = 60 * time.Second

	// BreakerHalfOpenRequests is the number of probes allowed while half-open
	BreakerHalfOpenRequests = 1
)

// Network constants
const (
	// DialTimeout is the timeout for establishing network connections
	DialTimeout = 10 * time.Second

	// KeepAliveInterval is the interval between keep-alive probes
	KeepAliveInterval = 30 * time.Second

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections = 10

	// MaxErrorBodyBytes caps how much of an error response is kept in diagnostics
	MaxErrorBodyBytes = 512
)

// File permission constants define standard Unix file permissions
const (
	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Output
const (
	// SuccessMessage is printed after a pass that updated every service
	SuccessMessage = "Successfully updated all services with EOL package counts"

	// UserAgentPrefix identifies the client to the catalog
	UserAgentPrefix = "eolsync/"
)
