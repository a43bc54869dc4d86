// Package connector groups the provider connector layer.
//
// # Architecture Overview
//
//   - core: the closed data model (canonical field types, widget types,
//     descriptors, mappings, subscriber records) and the ProviderClient
//     contract every adapter implements.
//
//   - base: the Adapter embedded by REST adapters. It builds URLs, sends
//     JSON, retries idempotent reads once on a network error and converts
//     anything that escapes an adapter into a canonical error.
//
//   - registry: a factory registry. Adapters register from init with the
//     credential keys they require, so a binary supports exactly the
//     providers it imports.
//
//   - fieldtype: static per-provider tables between native and canonical
//     field types. Both directions are total and fall back to text.
//
//   - normalize: encodes raw form values for the target field's canonical
//     type using the provider's separator, boolean literals and date layouts.
//
//   - validate: pure preflight checks over a mapping, a schema and the
//     provider's lists.
//
//   - providers: one package per vendor.
//
//   - providertest: an in-memory, call-counting ProviderClient.
//
// # Capabilities
//
// Adapters differ in how many calls a subscriber write takes. Each declares
// its Capabilities: whether the upsert resolves existence itself, whether it
// carries custom fields, tags and the list, and whether fields can be
// created. The pipeline reads these and only issues the separate calls an
// adapter needs.
//
// # Errors
//
// No vendor error type crosses the ProviderClient interface. HTTP statuses,
// XML-RPC faults, error envelopes returned with HTTP 200 and undecodable
// bodies are all translated by pkg/errors into one of the canonical kinds.
package connector
