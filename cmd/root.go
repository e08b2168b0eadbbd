package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nicholas-fedor/versiontower/internal/actions"
	"github.com/nicholas-fedor/versiontower/internal/api"
	"github.com/nicholas-fedor/versiontower/internal/flags"
	"github.com/nicholas-fedor/versiontower/internal/logging"
	"github.com/nicholas-fedor/versiontower/internal/meta"
	"github.com/nicholas-fedor/versiontower/internal/scheduling"
	"github.com/nicholas-fedor/versiontower/pkg/api/versions"
	"github.com/nicholas-fedor/versiontower/pkg/container"
	"github.com/nicholas-fedor/versiontower/pkg/filters"
	"github.com/nicholas-fedor/versiontower/pkg/metrics"
	"github.com/nicholas-fedor/versiontower/pkg/notifications"
	"github.com/nicholas-fedor/versiontower/pkg/registry"
	"github.com/nicholas-fedor/versiontower/pkg/registry/auth"
	"github.com/nicholas-fedor/versiontower/pkg/registry/cache"
	"github.com/nicholas-fedor/versiontower/pkg/registry/manifest"
	"github.com/nicholas-fedor/versiontower/pkg/registry/ratelimit"
	"github.com/nicholas-fedor/versiontower/pkg/registry/tags"
	"github.com/nicholas-fedor/versiontower/pkg/types"
	"github.com/nicholas-fedor/versiontower/pkg/version"
)

// Errors for command setup.
var (
	errReadFlag        = errors.New("failed to read flag")
	errInvalidAPIHost  = errors.New("invalid http-api-host: must be empty or a valid IP address")
	errNegativeTimeout = errors.New("request timeout must not be negative")
)

// client lists the images of the monitored containers.
var client *container.Client

// resolver computes version information for listed images.
var resolver *version.Resolver

// tokens holds the registry tokens memoised within a check cycle.
var tokens *auth.Client

// notifier sends check reports to the configured services, or is nil.
var notifier types.Notifier

// scheduleSpec is the cron specification for periodic checks.
var scheduleSpec string

// disableContainers lists container names excluded from checks.
var disableContainers []string

var rootCmd = NewRootCommand()

// RunConfig holds the settings runMain operates on.
type RunConfig struct {
	Command           *cobra.Command
	Names             []string
	Filter            types.Filter
	FilterDesc        string
	RunOnce           bool
	CheckOnStart      bool
	EnableMetricsAPI  bool
	EnableVersionsAPI bool
	EnableCheckAPI    bool
	APIToken          string
	APIHost           string
	APIPort           string
}

// NewRootCommand creates the root command. Positional arguments name the
// containers to check.
func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versiontower",
		Short: "Reports which running Docker images have newer releases",
		Long: "\nversiontower labels the images of running Docker containers with descriptive versions" +
			"\nand reports those with a newer release in the registry.",
		Run:    run,
		PreRun: preRun,
		Args:   cobra.ArbitraryArgs,
	}
}

func init() {
	flags.SetDefaults()
	flags.RegisterDockerFlags(rootCmd)
	flags.RegisterSystemFlags(rootCmd)
	flags.RegisterRegistryFlags(rootCmd)
	flags.RegisterAPIFlags(rootCmd)
	flags.RegisterNotificationFlags(rootCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("Failed to execute root command")
	}
}

// preRun normalizes flags, configures logging and builds the Docker client,
// the resolver and the notifier.
func preRun(cmd *cobra.Command, _ []string) {
	flagsSet := cmd.PersistentFlags()

	if err := flags.ProcessFlagAliases(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Invalid flag combination")
	}

	if err := flags.SetupLogging(flagsSet); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logging")
	}

	scheduleSpec, _ = flagsSet.GetString("schedule")
	logrus.WithField("schedule", scheduleSpec).Debug("Retrieved cron schedule specification from flags")

	flags.GetSecretsFromFiles(cmd)

	disableContainers, _ = flagsSet.GetStringSlice("disable-containers")

	if err := flags.EnvConfig(cmd); err != nil {
		logrus.WithError(err).Fatal("Failed to configure Docker environment")
	}

	includeStopped, _ := flagsSet.GetBool("include-stopped")
	includeRestarting, _ := flagsSet.GetBool("include-restarting")

	var err error

	client, err = container.NewClient(container.ClientOptions{
		IncludeStopped:    includeStopped,
		IncludeRestarting: includeRestarting,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create Docker client")
	}

	resolver, tokens, err = NewResolver(flagsSet, afero.NewOsFs(), metrics.Default())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure version resolution")
	}

	notifier = notifications.NewNotifier(cmd)
	if notifier != nil {
		notifier.AddLogHook()
	}
}

// NewResolver wires the registry pipeline described by the registry flags:
// a rate-limited HTTP client shared by the token client, the manifest fetcher
// and the tag lister, with a manifest cache on fsys when --cache-dir is set.
// The token client is returned so callers can reset it between cycles.
func NewResolver(
	flagsSet *pflag.FlagSet,
	fsys afero.Fs,
	observer types.RegistryObserver,
) (*version.Resolver, *auth.Client, error) {
	config, err := flags.ResolverConfig(flagsSet)
	if err != nil {
		return nil, nil, err
	}

	settings := map[string]*string{
		"registry-url": new(string),
		"auth-url":     new(string),
		"auth-service": new(string),
		"tags-url":     new(string),
		"cache-dir":    new(string),
	}

	for name, value := range settings {
		if *value, err = flagsSet.GetString(name); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", errReadFlag, name, err)
		}
	}

	timeout, err := flagsSet.GetDuration("request-timeout")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: request-timeout: %w", errReadFlag, err)
	}

	if timeout < 0 {
		return nil, nil, fmt.Errorf("%w: %s", errNegativeTimeout, timeout)
	}

	rps, err := flagsSet.GetFloat64("registry-rps")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: registry-rps: %w", errReadFlag, err)
	}

	burst, err := flagsSet.GetInt("registry-burst")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: registry-burst: %w", errReadFlag, err)
	}

	httpClient := registry.NewHTTPClient(ratelimit.New(rps, burst))

	// Any repository on the registry identifies its credentials.
	creds, err := registry.Credentials(config.RegistryDomain + "/library")
	if err != nil {
		logrus.WithError(err).Debug("No registry credentials, requesting anonymous tokens")
	}

	tokenClient := auth.NewClient(auth.Options{
		Realm:       *settings["auth-url"],
		Service:     *settings["auth-service"],
		Credentials: creds,
		HTTPClient:  httpClient,
		Timeout:     timeout,
		UserAgent:   meta.UserAgent,
		Observer:    observer,
	})

	var store cache.Store
	if dir := *settings["cache-dir"]; dir != "" {
		store = cache.NewFileStore(fsys, dir)
		logrus.WithField("dir", dir).Debug("Caching manifests on disk")
	}

	fetcher := manifest.NewFetcher(tokenClient, cache.New(store, observer), manifest.Options{
		RegistryURL: *settings["registry-url"],
		HTTPClient:  httpClient,
		Timeout:     timeout,
		UserAgent:   meta.UserAgent,
		Observer:    observer,
	})

	lister := tags.NewLister(tags.Options{
		HubURL:     *settings["tags-url"],
		HTTPClient: httpClient,
		Timeout:    timeout,
		UserAgent:  meta.UserAgent,
		Observer:   observer,
	})

	return version.NewResolver(fetcher, lister, config), tokenClient, nil
}

// run builds the container filter and API settings, then hands over to runMain.
func run(c *cobra.Command, names []string) {
	flagsSet := c.PersistentFlags()

	monitored, _ := flagsSet.GetStringSlice("containers")
	names = append(monitored, names...)

	filter, filterDesc := filters.BuildFilter(names, disableContainers)

	runOnce, _ := flagsSet.GetBool("run-once")
	checkOnStart, _ := flagsSet.GetBool("check-on-start")
	enableMetricsAPI, _ := flagsSet.GetBool("http-api-metrics")
	enableVersionsAPI, _ := flagsSet.GetBool("http-api-versions")
	enableCheckAPI, _ := flagsSet.GetBool("http-api-check")
	apiToken, _ := flagsSet.GetString("http-api-token")
	apiHost, _ := flagsSet.GetString("http-api-host")
	apiPort, _ := flagsSet.GetString("http-api-port")

	if err := validateAPIHost(apiHost); err != nil {
		logrus.WithError(err).WithField("host", apiHost).Fatal("Invalid HTTP API host")
	}

	if apiPort == "" {
		apiPort = "8080"
	}

	cfg := RunConfig{
		Command:           c,
		Names:             names,
		Filter:            filter,
		FilterDesc:        filterDesc,
		RunOnce:           runOnce,
		CheckOnStart:      checkOnStart,
		EnableMetricsAPI:  enableMetricsAPI,
		EnableVersionsAPI: enableVersionsAPI,
		EnableCheckAPI:    enableCheckAPI,
		APIToken:          apiToken,
		APIHost:           apiHost,
		APIPort:           apiPort,
	}

	if exitCode := runMain(cfg); exitCode != 0 {
		logrus.WithField("exit_code", exitCode).Debug("Exiting with non-zero status")
		os.Exit(exitCode)
	}
}

// validateAPIHost accepts an empty host or an IP address.
func validateAPIHost(host string) error {
	if host != "" && net.ParseIP(host) == nil {
		return fmt.Errorf("%w: %q", errInvalidAPIHost, host)
	}

	return nil
}

// runMain runs a single check, or starts the API and the scheduler and blocks
// until shutdown. It returns the process exit code.
func runMain(cfg RunConfig) int {
	logrus.WithField("names", cfg.Names).Debug("Processing specified containers")

	versionsHandler := versions.New()

	var memo actions.CycleMemo
	if tokens != nil {
		memo = tokens
	}

	check := func(ctx context.Context) *metrics.Metric {
		return actions.RunChecksWithNotifications(ctx, actions.CheckParams{
			Inspector: client,
			Resolver:  resolver,
			Memo:      memo,
			Notifier:  notifier,
			Sink:      versionsHandler,
			Filter:    cfg.Filter,
			Names:     cfg.Names,
		})
	}

	if cfg.RunOnce {
		if cfg.CheckOnStart {
			logrus.Warn("--check-on-start is ignored when --run-once is specified")
		}

		logging.WriteStartupMessage(cfg.Command, time.Time{}, cfg.FilterDesc, notifier, meta.Version)

		metric := check(context.Background())
		metrics.Default().RegisterScan(metric)

		if notifier != nil {
			notifier.Close()
		}

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checkLock := scheduling.NewLock()

	if cfg.EnableMetricsAPI || cfg.EnableVersionsAPI || cfg.EnableCheckAPI {
		if _, err := api.SetupAndStartAPI(ctx, api.Config{
			Host:           cfg.APIHost,
			Port:           cfg.APIPort,
			Token:          cfg.APIToken,
			EnableMetrics:  cfg.EnableMetricsAPI,
			EnableVersions: cfg.EnableVersionsAPI,
			EnableCheck:    cfg.EnableCheckAPI,
			Lock:           checkLock,
			Check:          check,
			Versions:       versionsHandler,
		}); err != nil {
			return 1
		}
	}

	err := scheduling.RunChecksOnSchedule(ctx, scheduling.Params{
		ScheduleSpec: scheduleSpec,
		CheckOnStart: cfg.CheckOnStart,
		Lock:         checkLock,
		Notifier:     notifier,
		StartupMessage: func(nextRun time.Time) {
			logging.WriteStartupMessage(cfg.Command, nextRun, cfg.FilterDesc, notifier, meta.Version)
		},
		Check: check,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to run scheduled checks")

		return 1
	}

	return 0
}
