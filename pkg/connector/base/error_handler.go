package base

import (
	"github.com/ajitpratap0/formsync/pkg/errors"
)

// Boundary guarantees that err leaving an adapter is a classified *errors.Error
// tagged with the provider and operation. Unclassified errors become internal
// errors since they indicate an adapter bug rather than a provider outcome.
func Boundary(provider, op string, err error) error {
	if err == nil {
		return nil
	}

	var e *errors.Error
	if errors.As(err, &e) {
		if e.Provider == "" {
			e.Provider = provider
		}
		if e.Op == "" {
			e.Op = op
		}
		return e
	}
	return errors.Wrap(err, errors.KindInternal, "unexpected adapter failure").WithProvider(provider, op)
}
