// Package providertest provides an in-memory ProviderClient that records
// every call, for pipeline and connection tests.
package providertest

import (
	"context"
	"strconv"
	"sync"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

// Operation names, shared with error injection
const (
	OpTestConnection    = "test_connection"
	OpListTargets       = "list_targets"
	OpFetchFieldSchema  = "fetch_field_schema"
	OpCreateField       = "create_field"
	OpFindSubscriber    = "find_subscriber"
	OpUpsertSubscriber  = "upsert_subscriber"
	OpAttachToList      = "attach_to_list"
	OpWriteCustomFields = "write_custom_fields"
	OpAddTags           = "add_tags"
)

var writeOps = []string{OpCreateField, OpUpsertSubscriber, OpAttachToList, OpWriteCustomFields, OpAddTags}

// Mapper is the type table used by the stub
var Mapper = fieldtype.MustNew("stub", []fieldtype.Entry{
	{Native: "text", Canonical: core.TypeText, Preferred: true},
	{Native: "number", Canonical: core.TypeNumber, Preferred: true},
	{Native: "date", Canonical: core.TypeDate, Preferred: true},
	{Native: "datetime", Canonical: core.TypeDateTime, Preferred: true},
	{Native: "checkbox", Canonical: core.TypeBoolean, Preferred: true},
	{Native: "dropdown", Canonical: core.TypeSingleSelect, Preferred: true},
	{Native: "multiselect", Canonical: core.TypeMultiSelect, Preferred: true},
})

// Subscriber is a record held by the stub
type Subscriber struct {
	ID     string
	Email  string
	Name   string
	Phone  string
	Fields map[string]string
	Tags   []string
	Lists  []string
}

// Stub is a call-counting ProviderClient. The zero value is not usable; use New.
type Stub struct {
	mu sync.Mutex

	id     string
	caps   core.Capabilities
	fields []core.CustomFieldDescriptor

	// Targets is returned by ListTargets
	Targets []core.Target

	subscribers map[string]*Subscriber
	calls       map[string]int
	errs        map[string]error
	nextID      int
}

// New creates a stub with the given capabilities
func New(id string, caps core.Capabilities) *Stub {
	return &Stub{
		id:          id,
		caps:        caps,
		subscribers: make(map[string]*Subscriber),
		calls:       make(map[string]int),
		errs:        make(map[string]error),
	}
}

// WithFields sets the schema FetchFieldSchema returns
func (s *Stub) WithFields(fields ...core.CustomFieldDescriptor) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = append([]core.CustomFieldDescriptor(nil), fields...)
	return s
}

// WithTargets sets the lists ListTargets returns
func (s *Stub) WithTargets(targets ...core.Target) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Targets = append([]core.Target(nil), targets...)
	return s
}

// FailOn makes op return err until cleared with FailOn(op, nil)
func (s *Stub) FailOn(op string, err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, op)
	} else {
		s.errs[op] = err
	}
	return s
}

// Calls returns how many times op was invoked
func (s *Stub) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// WriteCalls returns the number of calls that could change provider state
func (s *Stub) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range writeOps {
		n += s.calls[op]
	}
	return n
}

// TotalCalls returns the number of calls of any kind
func (s *Stub) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Subscriber returns a copy of the record stored for email
func (s *Stub) Subscriber(email string) (Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[email]
	if !ok {
		return Subscriber{}, false
	}
	cp := *sub
	cp.Fields = copyMap(sub.Fields)
	cp.Tags = append([]string(nil), sub.Tags...)
	cp.Lists = append([]string(nil), sub.Lists...)
	return cp, true
}

// SubscriberCount returns the number of distinct records
func (s *Stub) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Stub) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.errs[op]
}

// ID implements core.ProviderClient
func (s *Stub) ID() string { return s.id }

// Capabilities implements core.ProviderClient
func (s *Stub) Capabilities() core.Capabilities { return s.caps }

// TypeMapper implements core.ProviderClient
func (s *Stub) TypeMapper() core.TypeMapper { return Mapper }

// TestConnection implements core.ProviderClient
func (s *Stub) TestConnection(context.Context) error {
	return s.enter(OpTestConnection)
}

// ListTargets implements core.ProviderClient
func (s *Stub) ListTargets(context.Context) ([]core.Target, error) {
	if err := s.enter(OpListTargets); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Target(nil), s.Targets...), nil
}

// FetchFieldSchema implements core.ProviderClient
func (s *Stub) FetchFieldSchema(context.Context) ([]core.CustomFieldDescriptor, error) {
	if err := s.enter(OpFetchFieldSchema); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CustomFieldDescriptor(nil), s.fields...), nil
}

// CreateField implements core.ProviderClient
func (s *Stub) CreateField(_ context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	if err := s.enter(OpCreateField); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	if !s.caps.FieldCreation {
		return core.CustomFieldDescriptor{}, errors.New(errors.KindValidation, "field creation unsupported").
			WithProvider(s.id, OpCreateField)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	d := core.CustomFieldDescriptor{
		ID:         "field_" + strconv.Itoa(s.nextID),
		Type:       req.Type,
		Label:      req.Label,
		NativeType: Mapper.ToProviderNative(req.Type),
		Options:    req.Options,
	}
	s.fields = append(s.fields, d)
	return d, nil
}

// FindSubscriberByEmail implements core.ProviderClient
func (s *Stub) FindSubscriberByEmail(_ context.Context, email string) (string, error) {
	if err := s.enter(OpFindSubscriber); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscribers[email]; ok {
		return sub.ID, nil
	}
	return "", nil
}

// UpsertSubscriber implements core.ProviderClient. Without AtomicUpsert a
// create for an email that already exists is rejected, as real providers do.
func (s *Stub) UpsertSubscriber(_ context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	if err := s.enter(OpUpsertSubscriber); err != nil {
		return core.UpsertOutcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscribers[rec.Email]
	switch {
	case exists && !s.caps.AtomicUpsert && rec.ExistingID == "":
		return core.UpsertOutcome{}, errors.New(errors.KindProviderRejected, "contact already exists").
			WithProvider(s.id, OpUpsertSubscriber).
			WithDiagnostic("duplicate email")
	case !exists:
		s.nextID++
		sub = &Subscriber{ID: "sub_" + strconv.Itoa(s.nextID), Email: rec.Email, Fields: map[string]string{}}
		s.subscribers[rec.Email] = sub
	}

	sub.Name = rec.DisplayName
	sub.Phone = rec.Phone
	if s.caps.CombinedWrite {
		for k, v := range rec.CustomFields {
			sub.Fields[k] = v
		}
	}
	if s.caps.Tags {
		sub.Tags = mergeTags(sub.Tags, rec.Tags)
	}
	if s.caps.ListInUpsert && rec.ListID != "" {
		sub.Lists = mergeTags(sub.Lists, []string{rec.ListID})
	}
	return core.UpsertOutcome{ID: sub.ID, Created: !exists}, nil
}

// AttachToList implements core.ProviderClient
func (s *Stub) AttachToList(_ context.Context, recordID, listID string) error {
	if err := s.enter(OpAttachToList); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.byID(recordID)
	if sub == nil {
		return errors.New(errors.KindProviderRejected, "unknown record").WithProvider(s.id, OpAttachToList)
	}
	sub.Lists = mergeTags(sub.Lists, []string{listID})
	return nil
}

// WriteCustomFields implements core.FieldWriter
func (s *Stub) WriteCustomFields(_ context.Context, recordID string, values map[string]string) error {
	if err := s.enter(OpWriteCustomFields); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.byID(recordID)
	if sub == nil {
		return errors.New(errors.KindProviderRejected, "unknown record").WithProvider(s.id, OpWriteCustomFields)
	}
	for k, v := range values {
		sub.Fields[k] = v
	}
	return nil
}

// AddTags implements core.Tagger
func (s *Stub) AddTags(_ context.Context, recordID string, tags []string) error {
	if err := s.enter(OpAddTags); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.byID(recordID)
	if sub == nil {
		return errors.New(errors.KindProviderRejected, "unknown record").WithProvider(s.id, OpAddTags)
	}
	sub.Tags = mergeTags(sub.Tags, tags)
	return nil
}

func (s *Stub) byID(id string) *Subscriber {
	for _, sub := range s.subscribers {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

func mergeTags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			existing = append(existing, t)
		}
	}
	return existing
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ core.ProviderClient = (*Stub)(nil)
	_ core.FieldWriter    = (*Stub)(nil)
	_ core.Tagger         = (*Stub)(nil)
)
