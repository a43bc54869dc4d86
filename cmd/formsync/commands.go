package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/ajitpratap0/formsync/pkg/pipeline"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "formsync v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newProvidersCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers and their connection status",
		Args:  cobra.NoArgs,
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			statuses, err := a.manager.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				desc, _ := registry.GetRegistry().Get(s.ID)
				state := "not connected"
				if s.Connected {
					state = "connected"
				}
				fmt.Fprintf(out, "  %-10s %-28s %-14s keys: %s\n", s.ID, s.Name, state, strings.Join(desc.RequiredKeys, ", "))
			}
			return nil
		}),
	}
}

func newConnectCmd(v *viper.Viper) *cobra.Command {
	var fromEnv bool
	cmd := &cobra.Command{
		Use:   "connect <provider> [key=value ...]",
		Short: "Test credentials and store them",
		Long: `Test credentials against the provider and store them only if the test passes.

Credentials are given as key=value arguments. With --from-env each required
key is read from FORMSYNC_CREDS_<PROVIDER>_<KEY> instead (a .env file works).

Example:
  formsync connect hubspot key=pat-na1-...
  formsync connect mailrelay --from-env`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			provider := args[0]
			creds, err := parseCredentials(args[1:])
			if err != nil {
				return err
			}
			if fromEnv {
				if err := credentialsFromEnv(v, provider, creds); err != nil {
					return err
				}
			}
			if err := a.manager.Connect(ctx, provider, creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s connected\n", provider)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fromEnv, "from-env", false, "Read credentials from FORMSYNC_CREDS_<PROVIDER>_<KEY>")
	return cmd
}

func newDisconnectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Clear stored credentials, including providers sharing the account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			cleared, err := a.manager.Disconnect(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "disconnected: %s\n", strings.Join(cleared, ", "))
			return nil
		}),
	}
}

func newTargetsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "targets <provider>",
		Short: "List the lists, groups or campaigns subscribers can join",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			client, err := a.manager.Client(ctx, args[0])
			if err != nil {
				return err
			}
			targets, err := client.ListTargets(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), targets)
		}),
	}
}

func newSchemaCmd(v *viper.Viper) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "schema <provider>",
		Short: "Show the provider's custom field schema",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			res, err := a.manager.Schema(ctx, args[0], refresh)
			if err != nil {
				return err
			}
			if !res.Available() {
				if res.FetchErr == nil {
					return errors.New(errors.KindSchema, "provider schema unavailable")
				}
				return errors.Wrap(res.FetchErr, errors.KindSchema, "provider schema unavailable")
			}
			if res.FetchErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: serving stale schema from %s: %v\n",
					res.Snapshot.FetchedAt.Format("2006-01-02 15:04:05"), res.FetchErr)
			}
			return writeJSON(cmd.OutOrStdout(), res.Fields())
		}),
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache and fetch the schema")
	return cmd
}

func newEnsureFieldsCmd(v *viper.Viper) *cobra.Command {
	var fieldType string
	cmd := &cobra.Command{
		Use:   "ensure-fields <provider> <label> [label ...]",
		Short: "Create custom fields the provider does not have yet",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			reqs := make([]core.FieldRequest, 0, len(args)-1)
			for _, label := range args[1:] {
				reqs = append(reqs, core.FieldRequest{Label: label, Type: core.CanonicalType(fieldType)})
			}
			fields, err := a.pipeline.EnsureFields(ctx, args[0], reqs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), fields)
		}),
	}
	cmd.Flags().StringVar(&fieldType, "type", string(core.TypeText), "Canonical type of the new fields")
	return cmd
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <submission.json>",
		Short: "Dry-run a submission: validate and normalize without writing",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			sub, err := readSubmission(args[0])
			if err != nil {
				return err
			}
			res, runErr := a.pipeline.DryRun(ctx, sub)
			if err := writeJSON(cmd.OutOrStdout(), report(res)); err != nil {
				return err
			}
			return runErr
		}),
	}
}

func newSubmitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <submission.json>",
		Short: "Upsert a subscriber from a submission document",
		Long: `Upsert a subscriber from a submission document. Use "-" to read stdin.

Example submission:
  {
    "provider": "drip",
    "email": "a@b.com",
    "target_list_id": "42",
    "fields": {"checkbox_newsletter": ["on"]},
    "mapping": {"checkbox_newsletter": {"target": "subscribed_bool", "source_widget_type": "checkbox-group"}},
    "tags": ["website"]
  }`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(v, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			sub, err := readSubmission(args[0])
			if err != nil {
				return err
			}
			res, runErr := a.pipeline.Run(ctx, sub)
			if err := writeJSON(cmd.OutOrStdout(), report(res)); err != nil {
				return err
			}
			return runErr
		}),
	}
}

// resultReport is the printable form of an UpsertResult
type resultReport struct {
	SubmissionID string                 `json:"submission_id"`
	Provider     string                 `json:"provider"`
	State        pipeline.State         `json:"state"`
	Succeeded    bool                   `json:"succeeded"`
	Partial      bool                   `json:"partial"`
	RecordID     string                 `json:"record_id,omitempty"`
	Created      bool                   `json:"created"`
	Errors       []errorReport          `json:"errors,omitempty"`
	Diagnostics  []string               `json:"diagnostics,omitempty"`
	Record       *core.SubscriberRecord `json:"record,omitempty"`
}

type errorReport struct {
	Kind    errors.Kind `json:"kind"`
	Message string      `json:"message"`
}

func report(res *pipeline.UpsertResult) resultReport {
	r := resultReport{
		SubmissionID: res.SubmissionID,
		Provider:     res.Provider,
		State:        res.State,
		Succeeded:    res.Succeeded,
		Partial:      res.Partial,
		RecordID:     res.RecordID,
		Created:      res.Created,
		Record:       res.Record,
	}
	for _, err := range res.Errors {
		r.Errors = append(r.Errors, errorReport{Kind: errors.KindOf(err), Message: err.Error()})
	}
	for _, d := range res.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, d.String())
	}
	return r
}

func readSubmission(path string) (pipeline.Submission, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	}
	if err != nil {
		return pipeline.Submission{}, fmt.Errorf("failed to read submission: %w", err)
	}
	return pipeline.ParseSubmission(data)
}

func parseCredentials(args []string) (core.Credentials, error) {
	creds := core.Credentials{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, errors.Newf(errors.KindValidation, "credential %q is not key=value", arg)
		}
		creds[strings.TrimSpace(key)] = value
	}
	return creds, nil
}

// credentialsFromEnv fills the provider's keys from FORMSYNC_CREDS_<PROVIDER>_<KEY>
func credentialsFromEnv(v *viper.Viper, provider string, creds core.Credentials) error {
	desc, err := registry.GetRegistry().Get(provider)
	if err != nil {
		return err
	}
	keys := append(append([]string(nil), desc.RequiredKeys...), desc.OptionalKeys...)
	for _, key := range keys {
		if creds.Get(key) != "" {
			continue
		}
		if value := v.GetString("creds." + provider + "." + key); value != "" {
			creds[key] = value
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
