// Package validate runs the preflight checks that gate every write. All
// functions are pure: they inspect their arguments and return errors, with no
// I/O, so a form can be dry-run checked without touching a provider.
package validate

import (
	"net/mail"
	"sort"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

// Email checks that address is a single bare mailbox
func Email(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New(errors.KindValidation, "email address is required").WithDetail("field", "email")
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address || parsed.Name != "" {
		return errors.New(errors.KindValidation, "email address is malformed").
			WithDetail("field", "email").
			WithDetail("email", address)
	}
	at := strings.LastIndexByte(address, '@')
	if !strings.Contains(address[at+1:], ".") {
		return errors.New(errors.KindValidation, "email domain is not fully qualified").
			WithDetail("field", "email").
			WithDetail("email", address)
	}
	return nil
}

// Connection checks a mapping and target list against a provider's schema
// and lists. An empty schema means no field validation is possible and
// field references are not checked. Errors are ordered by form field name
// with the list error first.
func Connection(mapping core.FieldMapping, schema []core.CustomFieldDescriptor, listID string, knownLists []string) []error {
	var errs []error

	if err := List(listID, knownLists); err != nil {
		errs = append(errs, err)
	}

	counts := countIDs(schema)

	for _, name := range sortedNames(mapping) {
		entry := mapping[name]
		if !entry.SourceWidgetType.Valid() {
			errs = append(errs, errors.Newf(errors.KindValidation, "form field %q has unknown widget type %q", name, entry.SourceWidgetType).
				WithDetail("form_field", name))
			continue
		}
		if len(schema) == 0 {
			continue
		}
		if err := resolve(name, entry.Target, counts); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Fields checks every mapping target against schema, even an empty one.
// Use it when the schema is known to be complete.
func Fields(mapping core.FieldMapping, schema []core.CustomFieldDescriptor) []error {
	counts := countIDs(schema)

	var errs []error
	for _, name := range sortedNames(mapping) {
		if err := resolve(name, mapping[name].Target, counts); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func countIDs(schema []core.CustomFieldDescriptor) map[string]int {
	counts := make(map[string]int, len(schema))
	for _, d := range schema {
		counts[d.ID]++
	}
	return counts
}

// resolve checks that target names exactly one descriptor
func resolve(name, target string, counts map[string]int) error {
	switch counts[target] {
	case 0:
		return unknownTarget(name, target)
	case 1:
		return nil
	default:
		return errors.Newf(errors.KindSchema, "form field %q maps to provider field %q, which the schema lists %d times", name, target, counts[target]).
			WithDetail("form_field", name).
			WithDetail("target", target)
	}
}

func unknownTarget(name, target string) error {
	return errors.Newf(errors.KindSchema, "form field %q maps to unknown provider field %q", name, target).
		WithDetail("form_field", name).
		WithDetail("target", target)
}

func sortedNames(mapping core.FieldMapping) []string {
	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List checks that listID is set and is one of knownLists
func List(listID string, knownLists []string) error {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return errors.New(errors.KindValidation, "target list id is required").WithDetail("field", "target_list_id")
	}
	for _, id := range knownLists {
		if id == listID {
			return nil
		}
	}
	return errors.Newf(errors.KindValidation, "target list %q does not exist", listID).
		WithDetail("field", "target_list_id").
		WithDetail("target_list_id", listID)
}

// TargetIDs extracts the ids of targets
func TargetIDs(targets []core.Target) []string {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	return ids
}

// FirstOfKind returns the first error of kind, or nil
func FirstOfKind(errs []error, kind errors.Kind) error {
	for _, err := range errs {
		if errors.IsKind(err, kind) {
			return err
		}
	}
	return nil
}
