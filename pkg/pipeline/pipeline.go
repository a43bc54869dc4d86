package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/normalize"
	"github.com/ajitpratap0/formsync/pkg/connector/validate"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/logger"
	"github.com/ajitpratap0/formsync/pkg/metrics"
	"github.com/ajitpratap0/formsync/pkg/observability"
	"github.com/ajitpratap0/formsync/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ClientSource resolves the adapter of a connected provider.
// *connection.Manager satisfies it.
type ClientSource interface {
	Client(ctx context.Context, provider string) (core.ProviderClient, error)
}

// State is a pipeline state
type State string

const (
	StateValidating          State = "validating"
	StateResolving           State = "resolving"
	StateWritingCore         State = "writing_core"
	StateWritingCustomFields State = "writing_custom_fields"
	StateWritingTags         State = "writing_tags"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Run outcomes, used as metric labels
const (
	outcomeSucceeded = "succeeded"
	outcomePartial   = "partial"
	outcomeFailed    = "failed"
	outcomeDryRun    = "dry_run"
)

// UpsertResult reports one pipeline run
type UpsertResult struct {
	SubmissionID string
	Provider     string
	State        State
	Succeeded    bool
	RecordID     string
	Created      bool
	// Partial is set when the subscriber was written but a best-effort step failed
	Partial     bool
	Errors      []error
	Diagnostics []normalize.Diagnostic
	// Record is the normalized subscriber as sent, or as it would be sent on a dry run
	Record      *core.SubscriberRecord
	Transitions []State
}

// Err folds the result into a single error: nil on full success, a
// PartialFailure carrying every best-effort error, or the first error of a
// failed run.
func (r *UpsertResult) Err() error {
	switch {
	case r.Succeeded && !r.Partial:
		return nil
	case r.Succeeded:
		return errors.Partial("subscriber written but some best-effort steps failed", r.Errors).
			WithProvider(r.Provider, "upsert")
	case len(r.Errors) > 0:
		return r.Errors[0]
	default:
		return errors.New(errors.KindInternal, "pipeline failed without an error").WithProvider(r.Provider, "upsert")
	}
}

func (r *UpsertResult) enter(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

// Pipeline runs submissions. It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	cfg     *config.Config
	clients ClientSource
	schemas *schema.Cache
	logger  *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a pipeline
func New(cfg *config.Config, clients ClientSource, schemas *schema.Cache, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		cfg:     cfg,
		clients: clients,
		schemas: schemas,
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "pipeline"))
	return p
}

// run carries the state of one submission through the steps
type run struct {
	sub    Submission
	client core.ProviderClient
	caps   core.Capabilities
	res    *UpsertResult
	log    *zap.Logger
	tracer *observability.ProviderTracer

	// useTagger is set when tags go through a separate Tagger call
	useTagger bool
}

// step is one write of the sequence. Critical steps abort the run.
type step struct {
	name     string
	state    State
	critical bool
	applies  func(r *run) bool
	exec     func(ctx context.Context, r *run) error
}

var steps = []step{
	{
		name:     "resolve",
		state:    StateResolving,
		critical: true,
		applies:  func(r *run) bool { return !r.caps.AtomicUpsert },
		exec: func(ctx context.Context, r *run) error {
			id, err := r.client.FindSubscriberByEmail(ctx, r.res.Record.Email)
			if err != nil {
				return err
			}
			r.res.Record.ExistingID = id
			return nil
		},
	},
	{
		name:     "upsert",
		state:    StateWritingCore,
		critical: true,
		applies:  func(*run) bool { return true },
		exec: func(ctx context.Context, r *run) error {
			out, err := r.client.UpsertSubscriber(ctx, r.upsertRecord())
			if err != nil {
				return err
			}
			r.res.RecordID = firstNonEmpty(out.ID, r.res.Record.ExistingID)
			r.res.Created = out.Created
			if r.res.RecordID == "" {
				return errors.New(errors.KindInternal, "provider returned no record id").
					WithProvider(r.client.ID(), "upsert")
			}
			return nil
		},
	},
	{
		name:     "attach_list",
		state:    StateWritingCore,
		critical: true,
		applies:  func(r *run) bool { return !r.caps.ListInUpsert },
		exec: func(ctx context.Context, r *run) error {
			return r.client.AttachToList(ctx, r.res.RecordID, r.res.Record.ListID)
		},
	},
	{
		name:    "custom_fields",
		state:   StateWritingCustomFields,
		applies: func(r *run) bool { return !r.caps.CombinedWrite && len(r.res.Record.CustomFields) > 0 },
		exec: func(ctx context.Context, r *run) error {
			fw, ok := r.client.(core.FieldWriter)
			if !ok {
				return errors.New(errors.KindInternal, "adapter cannot write custom fields").
					WithProvider(r.client.ID(), "write_custom_fields")
			}
			return fw.WriteCustomFields(ctx, r.res.RecordID, r.res.Record.CustomFields)
		},
	},
	{
		name:    "tags",
		state:   StateWritingTags,
		applies: func(r *run) bool { return r.useTagger && len(r.res.Record.Tags) > 0 },
		exec: func(ctx context.Context, r *run) error {
			return r.client.(core.Tagger).AddTags(ctx, r.res.RecordID, r.res.Record.Tags)
		},
	},
}

// upsertRecord strips what the adapter does not write in the upsert call
func (r *run) upsertRecord() *core.SubscriberRecord {
	rec := *r.res.Record
	if !r.caps.CombinedWrite {
		rec.CustomFields = nil
	}
	if !r.caps.Tags {
		rec.Tags = nil
	}
	return &rec
}

// Run validates, normalizes and writes a submission. The result is never
// nil. The error is nil on full success, a PartialFailure when only
// best-effort steps failed, and the aborting error otherwise.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (*UpsertResult, error) {
	r, ctx, span := p.begin(ctx, sub, "pipeline.run")

	if err := p.prepare(ctx, r); err != nil {
		p.fail(r, err)
		return p.finish(r, span, outcomeFailed)
	}

	var bestEffort []error
	for _, s := range steps {
		if !s.applies(r) {
			continue
		}
		if r.res.State != s.state {
			r.res.enter(s.state)
		}

		timer := metrics.NewTimer()
		err := r.tracer.Trace(ctx, "pipeline."+s.name, func(ctx context.Context) error {
			return s.exec(ctx, r)
		})
		metrics.PipelineStepDuration.WithLabelValues(r.sub.Provider, s.name).Observe(timer.Stop().Seconds())
		if err == nil {
			continue
		}

		if s.critical {
			r.log.Warn("critical step failed", zap.String("step", s.name), zap.Error(err))
			p.fail(r, err)
			return p.finish(r, span, outcomeFailed)
		}
		r.log.Warn("best-effort step failed", zap.String("step", s.name), zap.Error(err))
		bestEffort = append(bestEffort, err)
	}

	r.res.enter(StateDone)
	r.res.Succeeded = true
	r.res.Partial = len(bestEffort) > 0
	r.res.Errors = bestEffort
	if r.res.Partial {
		return p.finish(r, span, outcomePartial)
	}
	return p.finish(r, span, outcomeSucceeded)
}

// DryRun runs the validation gate and normalization without writing.
// Result.Record holds what Run would send.
func (p *Pipeline) DryRun(ctx context.Context, sub Submission) (*UpsertResult, error) {
	r, ctx, span := p.begin(ctx, sub, "pipeline.dry_run")
	if err := p.prepare(ctx, r); err != nil {
		p.fail(r, err)
		return p.finish(r, span, outcomeFailed)
	}
	r.res.enter(StateDone)
	r.res.Succeeded = true
	return p.finish(r, span, outcomeDryRun)
}

func (p *Pipeline) begin(ctx context.Context, sub Submission, spanName string) (*run, context.Context, *observability.Span) {
	sub.ensureID()
	sub.Provider = strings.TrimSpace(sub.Provider)

	ctx = context.WithValue(ctx, logger.SubmissionIDKey, sub.ID)
	ctx = context.WithValue(ctx, logger.ProviderKey, sub.Provider)

	tracer := observability.NewProviderTracer(sub.Provider)
	ctx, span := tracer.StartSpan(ctx, spanName, attribute.String("submission_id", sub.ID))

	r := &run{
		sub:    sub,
		log:    logger.FromContext(ctx, p.logger),
		tracer: tracer,
		res: &UpsertResult{
			SubmissionID: sub.ID,
			Provider:     sub.Provider,
		},
	}
	r.res.enter(StateValidating)
	return r, ctx, span
}

func (p *Pipeline) fail(r *run, err error) {
	r.res.Succeeded = false
	if len(r.res.Errors) == 0 {
		r.res.Errors = []error{err}
	}
	r.res.enter(StateFailed)
}

func (p *Pipeline) finish(r *run, span *observability.Span, outcome string) (*UpsertResult, error) {
	metrics.PipelineRuns.WithLabelValues(r.sub.Provider, outcome).Inc()
	err := r.res.Err()
	span.SetAttribute("outcome", outcome)
	span.End(err)

	r.log.Info("submission processed",
		zap.String("outcome", outcome),
		zap.String("record_id", r.res.RecordID),
		zap.Bool("created", r.res.Created),
		zap.Int("errors", len(r.res.Errors)),
		zap.Int("diagnostics", len(r.res.Diagnostics)))
	return r.res, err
}

// prepare is the validation gate. It only reads from the provider and
// builds the normalized record.
func (p *Pipeline) prepare(ctx context.Context, r *run) error {
	timer := metrics.NewTimer()
	defer func() {
		metrics.PipelineStepDuration.WithLabelValues(r.sub.Provider, "validate").Observe(timer.Stop().Seconds())
	}()

	if r.sub.Provider == "" {
		return errors.New(errors.KindValidation, "provider is required").WithDetail("field", "provider")
	}
	if err := validate.Email(r.sub.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.sub.ListID) == "" {
		return validate.List(r.sub.ListID, nil)
	}

	client, err := p.clients.Client(ctx, r.sub.Provider)
	if err != nil {
		return err
	}
	r.client = client
	r.caps = client.Capabilities()

	targets, err := client.ListTargets(ctx)
	if err != nil {
		return err
	}
	known := validate.TargetIDs(targets)

	res, errs := p.check(ctx, r, known)
	if len(errs) > 0 {
		r.res.Errors = errs
		return errs[0]
	}

	r.res.Record = p.normalize(r, res)
	return nil
}

// check validates the submission against the provider's lists and schema.
// A field missing from a schema that was not fetched during this run gets
// one forced refresh before it is reported.
func (p *Pipeline) check(ctx context.Context, r *run, known []string) (schema.Result, []error) {
	provider := r.sub.Provider
	res := p.schemas.GetOrFetch(ctx, provider, r.client.FetchFieldSchema, p.schemas.TTL())

	errs := p.validateAgainst(r, res, known)
	if validate.FirstOfKind(errs, errors.KindSchema) != nil && res.Source != schema.SourceFetch && res.Available() {
		r.log.Info("mapping references unknown fields, refreshing schema")
		res = p.schemas.Refresh(ctx, provider, r.client.FetchFieldSchema)
		errs = p.validateAgainst(r, res, known)
	}
	return res, errs
}

func (p *Pipeline) validateAgainst(r *run, res schema.Result, known []string) []error {
	if !res.Available() {
		if p.cfg.SchemaCache.Strict && len(r.sub.Mapping) > 0 {
			errs := validate.Connection(r.sub.Mapping, nil, r.sub.ListID, known)
			return append(errs, schemaUnavailable(r.sub.Provider, res.FetchErr))
		}
		return validate.Connection(r.sub.Mapping, nil, r.sub.ListID, known)
	}

	errs := validate.Connection(r.sub.Mapping, res.Fields(), r.sub.ListID, known)
	if len(res.Fields()) == 0 {
		// A fetched empty schema is complete: nothing can be referenced
		errs = append(errs, validate.Fields(r.sub.Mapping, nil)...)
	}
	return errs
}

// normalize builds the subscriber record from a validated submission
func (p *Pipeline) normalize(r *run, res schema.Result) *core.SubscriberRecord {
	settings := p.cfg.Provider(r.sub.Provider)
	n := normalize.New(normalize.EncodingFor(r.caps, settings))

	rec := &core.SubscriberRecord{
		Email:        strings.TrimSpace(r.sub.Email),
		DisplayName:  strings.TrimSpace(r.sub.Name),
		Phone:        strings.TrimSpace(r.sub.Phone),
		ListID:       strings.TrimSpace(r.sub.ListID),
		CustomFields: map[string]string{},
	}

	if !res.Available() {
		r.addDiagnostic(normalize.Diagnostic{Field: "*", Message: "provider schema unavailable; field references not checked and values written as text"})
	}

	names := make([]string, 0, len(r.sub.Mapping))
	for name := range r.sub.Mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := r.sub.Mapping[name]
		target := core.TypeText
		if res.Available() {
			if d, ok := res.Lookup(entry.Target); ok {
				target = d.Type
			}
		}

		raw := r.sub.Fields[name]
		if raw.Empty() && target != core.TypeBoolean {
			continue
		}

		value, diags := n.Normalize(name, raw, entry.SourceWidgetType, target)
		for _, d := range diags {
			r.addDiagnostic(d)
		}
		rec.CustomFields[entry.Target] = value
	}

	for _, tag := range r.sub.Tags {
		rec.AddTag(tag)
	}
	p.routeTags(r, rec, settings, n.Encoding())

	return rec
}

// routeTags decides how tags reach the provider: in the upsert call, through
// a Tagger, in a configured fallback field, or not at all.
func (p *Pipeline) routeTags(r *run, rec *core.SubscriberRecord, settings config.ProviderSettings, enc normalize.Encoding) {
	if len(rec.Tags) == 0 || r.caps.Tags {
		return
	}
	if _, ok := r.client.(core.Tagger); ok {
		r.useTagger = true
		return
	}
	if field := strings.TrimSpace(settings.TagFallbackField); field != "" {
		rec.CustomFields[field] = strings.Join(rec.Tags, enc.Separator)
		r.addDiagnostic(normalize.Diagnostic{Field: field, Message: "provider has no tag support; tags stored in fallback field"})
		return
	}
	r.addDiagnostic(normalize.Diagnostic{Field: "tags", Message: "provider has no tag support; tags dropped"})
}

func (r *run) addDiagnostic(d normalize.Diagnostic) {
	r.res.Diagnostics = append(r.res.Diagnostics, d)
	r.log.Warn("value diagnostic", zap.String("field", d.Field), zap.String("message", d.Message))
}

// EnsureFields creates each requested field the provider does not already
// have, matching existing fields by label. It returns the descriptors for all
// requests, created or found, and invalidates the cached schema when anything
// was created.
func (p *Pipeline) EnsureFields(ctx context.Context, provider string, reqs []core.FieldRequest) ([]core.CustomFieldDescriptor, error) {
	ctx = context.WithValue(ctx, logger.ProviderKey, provider)
	log := logger.FromContext(ctx, p.logger)

	client, err := p.clients.Client(ctx, provider)
	if err != nil {
		return nil, err
	}
	if !client.Capabilities().FieldCreation {
		return nil, errors.Newf(errors.KindValidation, "provider %s does not support creating custom fields", provider).
			WithProvider(provider, "create_field")
	}

	res := p.schemas.Refresh(ctx, provider, client.FetchFieldSchema)
	if !res.Available() {
		return nil, schemaUnavailable(provider, res.FetchErr)
	}
	byLabel := make(map[string]core.CustomFieldDescriptor, len(res.Fields()))
	for _, d := range res.Fields() {
		byLabel[strings.ToLower(strings.TrimSpace(d.Label))] = d
	}

	out := make([]core.CustomFieldDescriptor, 0, len(reqs))
	created := 0
	defer func() {
		if created == 0 {
			return
		}
		if err := p.schemas.Invalidate(context.WithoutCancel(ctx), provider); err != nil {
			log.Warn("failed to invalidate schema", zap.Error(err))
		}
	}()

	for _, req := range reqs {
		label := strings.TrimSpace(req.Label)
		if label == "" {
			return out, errors.New(errors.KindValidation, "field label is required").WithDetail("field", "label")
		}
		if req.Type == "" {
			req.Type = core.TypeText
		}
		if !req.Type.Valid() {
			return out, errors.Newf(errors.KindValidation, "unknown field type %q", req.Type).WithDetail("label", label)
		}
		if d, ok := byLabel[strings.ToLower(label)]; ok {
			out = append(out, d)
			continue
		}

		timer := metrics.NewTimer()
		d, err := client.CreateField(ctx, req)
		metrics.PipelineStepDuration.WithLabelValues(provider, "create_field").Observe(timer.Stop().Seconds())
		if err != nil {
			return out, err
		}
		created++
		byLabel[strings.ToLower(label)] = d
		out = append(out, d)
		log.Info("custom field created", zap.String("field_id", d.ID), zap.String("label", label))
	}
	return out, nil
}

func schemaUnavailable(provider string, cause error) error {
	if cause == nil {
		return errors.New(errors.KindSchema, "provider schema unavailable").WithProvider(provider, "fetch_field_schema")
	}
	return errors.Wrap(cause, errors.KindSchema, "provider schema unavailable").WithProvider(provider, "fetch_field_schema")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
