// Package pipeline runs one form submission against one provider.
//
// A run moves through a fixed sequence of states:
//
//	validating -> resolving -> writing_core -> writing_custom_fields -> writing_tags -> done
//
// with failed reachable from any of them. Validation makes only read calls
// (list and schema discovery), so a submission rejected there leaves the
// provider untouched.
//
// Each write step is declared critical or best-effort. A critical failure
// (the subscriber upsert or the list attachment) ends the run as failed. A
// best-effort failure (custom fields or tags written in a separate call) is
// recorded and the run ends as done with Partial set. Nothing already written
// is rolled back.
//
// Adapters that write custom fields, tags or the list in the upsert call
// itself declare so in their Capabilities and the matching separate step is
// skipped.
//
// Example usage:
//
//	p := pipeline.New(cfg, manager, schemas)
//	res, err := p.Run(ctx, pipeline.Submission{
//	    Provider: "hubspot",
//	    Email:    "a@b.com",
//	    ListID:   "42",
//	    Fields:   map[string]core.Value{"newsletter": core.ListValue("on")},
//	    Mapping:  mapping,
//	})
//	if errors.IsKind(err, errors.KindPartialFailure) {
//	    // the subscriber exists, some extras were not written
//	}
package pipeline
