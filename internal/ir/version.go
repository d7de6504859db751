package ir

// Version constants for the persisted layout and the resolver.
const (
	// SchemaVersion is the microtransaction document layout version.
	SchemaVersion = "1"

	// ResolverVersion is the swimport resolver version.
	ResolverVersion = "0.1.0"
)
