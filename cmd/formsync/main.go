package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connection"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/credentials"
	"github.com/ajitpratap0/formsync/pkg/logger"
	"github.com/ajitpratap0/formsync/pkg/observability"
	"github.com/ajitpratap0/formsync/pkg/pipeline"
	"github.com/ajitpratap0/formsync/pkg/schema"
	"github.com/ajitpratap0/formsync/pkg/storage"

	// Import all provider adapters to register them
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/drip"
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/hubspot"
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/icontact"
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/keap"
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/mailrelay"
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/sendfox"
	_ "github.com/ajitpratap0/formsync/pkg/connector/providers/zoho"
)

var version = "0.1.0"

// envPrefix namespaces every environment override, e.g. FORMSYNC_LOG_LEVEL
const envPrefix = "FORMSYNC"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "formsync",
		Short: "formsync - form submissions to email marketing providers",
		Long: `formsync connects form submissions to email service providers.
It manages provider connections, discovers custom field schemas and
upserts subscribers with their custom fields, tags and list membership.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to YAML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("storage-backend", "", "Credential and schema store (memory, redis, mongo, mysql)")
	flags.Bool("tracing", false, "Export spans to stdout")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("storage.backend", flags.Lookup("storage-backend"))
	_ = v.BindPFlag("tracing.enabled", flags.Lookup("tracing"))

	root.AddCommand(
		newVersionCmd(),
		newProvidersCmd(v),
		newConnectCmd(v),
		newDisconnectCmd(v),
		newTargetsCmd(v),
		newSchemaCmd(v),
		newEnsureFieldsCmd(v),
		newValidateCmd(v),
		newSubmitCmd(v),
	)
	return root
}

// loadConfig reads the YAML file, if any, and applies FORMSYNC_* and flag
// overrides on top.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if s := v.GetString("log.level"); s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("log.encoding"); s != "" {
		cfg.Log.Encoding = s
	}
	if s := v.GetString("storage.backend"); s != "" {
		cfg.Storage.Backend = s
	}
	if s := v.GetString("storage.redis.addr"); s != "" {
		cfg.Storage.Redis.Addr = s
	}
	if s := v.GetString("storage.redis.password"); s != "" {
		cfg.Storage.Redis.Password = s
	}
	if s := v.GetString("storage.mongo.uri"); s != "" {
		cfg.Storage.Mongo.URI = s
	}
	if s := v.GetString("storage.mysql.dsn"); s != "" {
		cfg.Storage.MySQL.DSN = s
	}
	if d := v.GetDuration("schema_cache.ttl"); d > 0 {
		cfg.SchemaCache.TTL = d
	}
	if v.IsSet("schema_cache.strict") {
		cfg.SchemaCache.Strict = v.GetBool("schema_cache.strict")
	}
	if d := v.GetDuration("http.request_timeout"); d > 0 {
		cfg.HTTP.RequestTimeout = d
	}
	if v.GetBool("tracing.enabled") {
		cfg.Tracing.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app is the wired object graph behind every command
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	kv       storage.Store
	manager  *connection.Manager
	pipeline *pipeline.Pipeline
	tracing  *observability.Provider
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Set(log)

	tp, err := observability.Init(ctx, cfg.Tracing, observability.WithWriter(os.Stderr), observability.WithVersion(version))
	if err != nil {
		return nil, err
	}

	kv, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	reg := registry.GetRegistry()
	creds := credentials.NewStore(kv, reg, cfg.Credentials, log)
	schemas := schema.New(cfg.SchemaCache, schema.WithStore(kv), schema.WithLogger(log))
	manager := connection.NewManager(cfg, reg, creds, schemas, connection.WithLogger(log))

	return &app{
		cfg:      cfg,
		log:      log,
		kv:       kv,
		manager:  manager,
		pipeline: pipeline.New(cfg, manager, schemas, pipeline.WithLogger(log)),
		tracing:  tp,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.log.Warn("failed to flush spans", zap.Error(err))
	}
	if err := a.kv.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

// withApp builds the app for one command invocation and tears it down after
func withApp(v *viper.Viper, fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, v)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))
		return fn(ctx, a, cmd, args)
	}
}
