// Package core defines the data model shared by every provider adapter and
// the ProviderClient contract the upsert pipeline is written against.
package core

import "context"

// ProviderClient is the boundary to one email service provider. Every
// operation returns a *errors.Error on failure; no vendor specific error
// type crosses this interface.
type ProviderClient interface {
	// ID returns the registered provider id
	ID() string
	// Capabilities declares what the adapter can do in a single call
	Capabilities() Capabilities
	// TypeMapper returns the provider's static field type table
	TypeMapper() TypeMapper

	// TestConnection verifies the credentials
	TestConnection(ctx context.Context) error
	// ListTargets returns the lists, groups or campaigns subscribers can join
	ListTargets(ctx context.Context) ([]Target, error)
	// FetchFieldSchema returns the provider's custom fields
	FetchFieldSchema(ctx context.Context) ([]CustomFieldDescriptor, error)
	// CreateField creates a custom field. Adapters that cannot create fields
	// return a validation error without calling the provider.
	CreateField(ctx context.Context, req FieldRequest) (CustomFieldDescriptor, error)
	// FindSubscriberByEmail returns the provider record id, or "" when absent
	FindSubscriberByEmail(ctx context.Context, email string) (string, error)
	// UpsertSubscriber creates or updates the subscriber keyed by email
	UpsertSubscriber(ctx context.Context, rec *SubscriberRecord) (UpsertOutcome, error)
	// AttachToList adds the record to a list
	AttachToList(ctx context.Context, recordID, listID string) error
}

// FieldWriter is implemented by adapters that write custom fields in a separate call
type FieldWriter interface {
	WriteCustomFields(ctx context.Context, recordID string, values map[string]string) error
}

// Tagger is implemented by adapters with a tag API
type Tagger interface {
	AddTags(ctx context.Context, recordID string, tags []string) error
}

// TypeMapper converts between canonical and provider native field types.
// Both directions are total and default to text.
type TypeMapper interface {
	ToCanonical(native string) CanonicalType
	ToProviderNative(t CanonicalType) string
}

// Capabilities describes how an adapter writes
type Capabilities struct {
	// AtomicUpsert means UpsertSubscriber resolves existence itself
	AtomicUpsert bool
	// CombinedWrite means UpsertSubscriber also writes custom fields
	CombinedWrite bool
	// Tags means UpsertSubscriber also writes tags
	Tags bool
	// ListInUpsert means UpsertSubscriber also attaches the list
	ListInUpsert bool
	// FieldCreation means CreateField is supported
	FieldCreation bool

	// Encoding the provider expects for normalized values
	MultiSeparator string
	BooleanTrue    string
	BooleanFalse   string
	DateFormat     string
	DateTimeFormat string
}
