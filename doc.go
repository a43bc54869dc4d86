// Package formsync connects form submissions to email service providers.
//
// A submission (raw form values plus a mapping from form fields to provider
// fields) is validated against the provider's lists and custom field schema,
// normalized into the encoding that provider expects, and upserted as a
// subscriber. Every provider sits behind the same ProviderClient contract,
// so the pipeline never branches on vendor.
//
// # Key Packages
//
//	pkg/connector/core       - Data model and the ProviderClient contract
//	pkg/connector/providers  - HubSpot, MailRelay, SendFox, iContact, Drip, Zoho, Keap
//	pkg/connector/normalize  - Value encoding per canonical field type
//	pkg/connector/validate   - Side-effect free preflight checks
//	pkg/pipeline             - The subscriber upsert state machine
//	pkg/connection           - Connect, disconnect and status of providers
//	pkg/credentials          - Credential persistence with declared cascades
//	pkg/schema               - TTL cache of provider field schemas
//	pkg/storage              - Keyed blob store: memory, redis, mongo, mysql
//	pkg/clients              - HTTP, XML-RPC and OAuth2 transport
//	pkg/errors               - Canonical error kinds and translation
//
// # Quick Start
//
//	cfg := config.Default()
//	kv := storage.NewMemoryStore()
//	reg := registry.GetRegistry()
//	schemas := schema.New(cfg.SchemaCache, schema.WithStore(kv))
//	creds := credentials.NewStore(kv, reg, cfg.Credentials, nil)
//	manager := connection.NewManager(cfg, reg, creds, schemas)
//
//	if err := manager.Connect(ctx, "hubspot", core.Credentials{"key": token}); err != nil {
//	    return err
//	}
//
//	p := pipeline.New(cfg, manager, schemas)
//	res, err := p.Run(ctx, submission)
//
// The formsync command wraps the same wiring for operators.
package formsync
