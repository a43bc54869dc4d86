// Package errors provides examples of canonical error handling in formsync.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/formsync/pkg/errors"
)

// Example demonstrates basic error creation.
func Example() {
	err := errors.New(errors.KindValidation, "email address is malformed").
		WithDetail("email", "not-an-email")

	fmt.Println(err.Error())

	// Output:
	// validation_error: email address is malformed
}

// ExampleWrap shows how callers branch on the kind, not the message.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.KindNetwork, "schema fetch failed").
		WithProvider("hubspot", "fetch_field_schema")

	if errors.IsRetryable(err) {
		fmt.Println("read may be retried once")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("cause preserved")
	}

	// Output:
	// read may be retried once
	// cause preserved
}

// ExampleFromStatus demonstrates translating an HTTP failure.
func ExampleFromStatus() {
	err := errors.FromStatus("mailrelay", "upsert_subscriber", 422, []byte(`{"errors":{"email":["is invalid"]}}`))

	fmt.Println(err.Kind)
	fmt.Println(err.Diagnostic)

	// Output:
	// provider_rejected
	// {"errors":{"email":["is invalid"]}}
}

// ExamplePartial demonstrates reporting best-effort failures.
func ExamplePartial() {
	tagErr := errors.New(errors.KindProviderRejected, "tag rejected")
	err := errors.Partial("subscriber saved with incomplete attachments", []error{tagErr})

	fmt.Println(errors.KindOf(err))
	fmt.Println(len(err.Causes))

	// Output:
	// partial_failure
	// 1
}
