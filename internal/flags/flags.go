package flags

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nicholas-fedor/versiontower/pkg/registry"
	"github.com/nicholas-fedor/versiontower/pkg/registry/auth"
	"github.com/nicholas-fedor/versiontower/pkg/registry/manifest"
	"github.com/nicholas-fedor/versiontower/pkg/registry/tags"
	"github.com/nicholas-fedor/versiontower/pkg/version"
)

// DockerAPIMinVersion specifies the minimum Docker API version required by versiontower.
const DockerAPIMinVersion string = "1.44"

// defaultPollIntervalSeconds defines the default check interval in seconds (24 hours).
const defaultPollIntervalSeconds = 86400

// Registry access defaults.
const (
	defaultRegistryRPS   = 5.0
	defaultRegistryBurst = 5
)

var (
	// errInvalidLogFormat indicates an invalid log format was specified.
	errInvalidLogFormat = errors.New("invalid log format specified")
	// errInvalidLogLevel indicates an invalid log level was specified.
	errInvalidLogLevel = errors.New("invalid log level specified")
	// errSetEnvFailed indicates a failure to set an environment variable.
	errSetEnvFailed = errors.New("failed to set environment variable")
	// errOpenFileFailed indicates a failure to open a file for reading secrets.
	errOpenFileFailed = errors.New("failed to open secret file")
	// errCloseFileFailed indicates a failure to close a file after reading secrets.
	errCloseFileFailed = errors.New("failed to close secret file")
	// errReplaceSliceFailed indicates a failure to replace a slice value in a flag.
	errReplaceSliceFailed = errors.New("failed to replace slice value in flag")
	// errReadFileFailed indicates a failure to read a file's contents.
	errReadFileFailed = errors.New("failed to read secret file")
	// errSetFlagFailed indicates a failure to read or set a flag's value.
	errSetFlagFailed = errors.New("failed to set flag value")
	// errInvalidFlagName indicates an invalid flag name was provided.
	errInvalidFlagName = errors.New("invalid flag name provided")
	// errNotSliceValue indicates a flag does not support slice values.
	errNotSliceValue = errors.New("flag does not support slice values")
	// errScheduleConflict indicates both a schedule and an interval were given.
	errScheduleConflict = errors.New("only schedule or interval can be defined, not both")
	// errUnknownPorcelain indicates an unsupported porcelain version.
	errUnknownPorcelain = errors.New("unknown porcelain version")
)

// RegisterDockerFlags adds flags used directly by the Docker API client to the root command.
func RegisterDockerFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.StringP("host", "H", envString("DOCKER_HOST"), "daemon socket to connect to")
	flags.BoolP("tlsverify", "v", envBool("DOCKER_TLS_VERIFY"), "use TLS and verify the remote")
	flags.StringP(
		"api-version",
		"a",
		envString("DOCKER_API_VERSION"),
		"api version to use by docker client",
	)
}

// RegisterSystemFlags adds flags that control scheduling, container selection and logging.
func RegisterSystemFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.IntP(
		"interval",
		"i",
		envInt("VERSIONTOWER_POLL_INTERVAL"),
		"Check interval (in seconds)")

	flags.StringP(
		"schedule",
		"s",
		envString("VERSIONTOWER_SCHEDULE"),
		"The cron expression which defines when to check versions")

	flags.BoolP(
		"run-once",
		"R",
		envBool("VERSIONTOWER_RUN_ONCE"),
		"Run a single check and exit")

	flags.Bool(
		"check-on-start",
		envBool("VERSIONTOWER_CHECK_ON_START"),
		"Run a check immediately on startup, then continue with scheduled checks")

	flags.StringSliceP(
		"containers",
		"c",
		envList("VERSIONTOWER_CONTAINERS"),
		"Only check containers with these names (exact or regular expression)")

	flags.StringSliceP(
		"disable-containers",
		"x",
		envList("VERSIONTOWER_DISABLE_CONTAINERS"),
		"Comma-separated list of containers to exclude from checks")

	flags.BoolP(
		"include-stopped",
		"S",
		envBool("VERSIONTOWER_INCLUDE_STOPPED"),
		"Will also include created and exited containers")

	flags.Bool(
		"include-restarting",
		envBool("VERSIONTOWER_INCLUDE_RESTARTING"),
		"Will also include restarting containers")

	flags.Bool(
		"no-startup-message",
		envBool("VERSIONTOWER_NO_STARTUP_MESSAGE"),
		"Prevents versiontower from sending a startup message")

	flags.StringP(
		"porcelain",
		"P",
		envString("VERSIONTOWER_PORCELAIN"),
		`Write session results to stdout using a stable versioned format. Supported values: "v1"`)

	flags.String(
		"log-format",
		envString("VERSIONTOWER_LOG_FORMAT"),
		"Sets what logging format to use for console output. Possible values: Auto, LogFmt, Pretty, JSON")

	flags.StringP(
		"log-level",
		"l",
		envString("VERSIONTOWER_LOG_LEVEL"),
		"The maximum log level that will be written to STDERR. Possible values: panic, fatal, error, warn, info, debug or trace")

	flags.BoolP(
		"debug",
		"d",
		envBool("VERSIONTOWER_DEBUG"),
		"Enable debug mode with verbose logging")

	flags.Bool(
		"trace",
		envBool("VERSIONTOWER_TRACE"),
		"Enable trace mode with very verbose logging - caution, exposes credentials")

	flags.Bool(
		"no-color",
		viper.IsSet("NO_COLOR"),
		"Disable ANSI color escape codes in log output")
}

// RegisterRegistryFlags adds flags for registry access, the manifest cache and version resolution.
func RegisterRegistryFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.String(
		"registry-url",
		envString("VERSIONTOWER_REGISTRY_URL"),
		"Base URL of the registry manifest API")

	flags.String(
		"auth-url",
		envString("VERSIONTOWER_AUTH_URL"),
		"Token endpoint of the registry")

	flags.String(
		"auth-service",
		envString("VERSIONTOWER_AUTH_SERVICE"),
		"Service name requested from the token endpoint")

	flags.String(
		"tags-url",
		envString("VERSIONTOWER_TAGS_URL"),
		"Base URL of the Docker Hub tag listing API")

	flags.String(
		"cache-dir",
		envString("VERSIONTOWER_CACHE_DIR"),
		"Directory for the durable manifest cache. Manifests are only cached in memory when empty")

	flags.Int(
		"fetch-limit",
		envInt("VERSIONTOWER_FETCH_LIMIT"),
		"Maximum number of tags inspected when searching for a newer descriptive tag")

	flags.Int(
		"current-fetch-limit",
		envInt("VERSIONTOWER_CURRENT_FETCH_LIMIT"),
		"Maximum number of tags inspected when labelling an up-to-date image. Defaults to --fetch-limit")

	flags.StringSlice(
		"floating-tags",
		envList("VERSIONTOWER_FLOATING_TAGS"),
		"Tags that move between releases and never label a version")

	flags.Duration(
		"request-timeout",
		envDuration("VERSIONTOWER_REQUEST_TIMEOUT"),
		"Timeout for each registry request")

	flags.Int(
		"max-concurrent",
		envInt("VERSIONTOWER_MAX_CONCURRENT"),
		"Maximum number of images resolved at the same time")

	flags.Float64(
		"registry-rps",
		envFloat("VERSIONTOWER_REGISTRY_RPS"),
		"Requests per second allowed against each registry host")

	flags.Int(
		"registry-burst",
		envInt("VERSIONTOWER_REGISTRY_BURST"),
		"Request burst allowed against each registry host")
}

// RegisterAPIFlags adds flags for the HTTP API.
func RegisterAPIFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.Bool(
		"http-api-metrics",
		envBool("VERSIONTOWER_HTTP_API_METRICS"),
		"Runs versiontower with the Prometheus metrics API enabled")

	flags.Bool(
		"http-api-versions",
		envBool("VERSIONTOWER_HTTP_API_VERSIONS"),
		"Serves the last check's version information over HTTP")

	flags.Bool(
		"http-api-check",
		envBool("VERSIONTOWER_HTTP_API_CHECK"),
		"Allows checks to be triggered over HTTP")

	flags.String(
		"http-api-token",
		envString("VERSIONTOWER_HTTP_API_TOKEN"),
		"Sets an authentication token to HTTP API requests.")

	flags.String(
		"http-api-host",
		envString("VERSIONTOWER_HTTP_API_HOST"),
		"Host to bind the HTTP API to (default: all interfaces)")

	flags.String(
		"http-api-port",
		envString("VERSIONTOWER_HTTP_API_PORT"),
		"Port for the HTTP API server")
}

// RegisterNotificationFlags adds flags for configuring notifications to the root command.
func RegisterNotificationFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringArray(
		"notification-url",
		envStringSlice("VERSIONTOWER_NOTIFICATION_URL"),
		"The shoutrrr URL to send notifications to")

	flags.String(
		"notifications-level",
		envString("VERSIONTOWER_NOTIFICATIONS_LEVEL"),
		"The log level used for sending notifications. Possible values: panic, fatal, error, warn, info or debug")

	flags.Int(
		"notifications-delay",
		envInt("VERSIONTOWER_NOTIFICATIONS_DELAY"),
		"Delay before sending notifications, expressed in seconds")

	flags.String(
		"notifications-hostname",
		envString("VERSIONTOWER_NOTIFICATIONS_HOSTNAME"),
		"Custom hostname for notification titles")

	flags.String(
		"notification-template",
		envString("VERSIONTOWER_NOTIFICATION_TEMPLATE"),
		"The shoutrrr text/template for the messages, or the name of a built-in template")

	flags.Bool(
		"notification-report",
		envBool("VERSIONTOWER_NOTIFICATION_REPORT"),
		"Use the session report as the notification template data")

	flags.String(
		"notification-title-tag",
		envString("VERSIONTOWER_NOTIFICATION_TITLE_TAG"),
		"Title prefix tag for notifications")

	flags.Bool(
		"notification-skip-title",
		envBool("VERSIONTOWER_NOTIFICATION_SKIP_TITLE"),
		"Do not pass the title param to notifications")

	flags.Bool(
		"notification-log-stdout",
		envBool("VERSIONTOWER_NOTIFICATION_LOG_STDOUT"),
		"Write notification logs to stdout instead of logging (to stderr)")
}

// envString retrieves a string value from an environment variable via Viper.
func envString(key string) string {
	viper.MustBindEnv(key)

	return viper.GetString(key)
}

// envStringSlice retrieves a whitespace-separated string slice from an
// environment variable via Viper.
func envStringSlice(key string) []string {
	viper.MustBindEnv(key)

	return viper.GetStringSlice(key)
}

// envList retrieves a comma-separated list from an environment variable via
// Viper. Entries are trimmed and empty entries dropped.
func envList(key string) []string {
	viper.MustBindEnv(key)

	raw, ok := viper.Get(key).(string)
	if !ok {
		return viper.GetStringSlice(key)
	}

	var list []string

	for entry := range strings.SplitSeq(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			list = append(list, entry)
		}
	}

	return list
}

// envInt retrieves an integer value from an environment variable via Viper.
func envInt(key string) int {
	viper.MustBindEnv(key)

	return viper.GetInt(key)
}

// envFloat retrieves a float value from an environment variable via Viper.
func envFloat(key string) float64 {
	viper.MustBindEnv(key)

	return viper.GetFloat64(key)
}

// envBool retrieves a boolean value from an environment variable via Viper.
func envBool(key string) bool {
	viper.MustBindEnv(key)

	return viper.GetBool(key)
}

// envDuration retrieves a duration value from an environment variable via Viper.
func envDuration(key string) time.Duration {
	viper.MustBindEnv(key)

	return viper.GetDuration(key)
}

// SetDefaults configures default values for environment variables.
func SetDefaults() {
	viper.AutomaticEnv()
	viper.SetDefault("DOCKER_HOST", "unix:///var/run/docker.sock")
	viper.SetDefault("DOCKER_API_VERSION", DockerAPIMinVersion)
	viper.SetDefault("VERSIONTOWER_POLL_INTERVAL", defaultPollIntervalSeconds)
	viper.SetDefault("VERSIONTOWER_REGISTRY_URL", manifest.DefaultRegistryURL)
	viper.SetDefault("VERSIONTOWER_AUTH_URL", auth.DefaultRealm)
	viper.SetDefault("VERSIONTOWER_AUTH_SERVICE", auth.DefaultService)
	viper.SetDefault("VERSIONTOWER_TAGS_URL", tags.DefaultHubURL)
	viper.SetDefault("VERSIONTOWER_FETCH_LIMIT", version.DefaultFetchLimit)
	viper.SetDefault("VERSIONTOWER_FLOATING_TAGS", version.DefaultFloatingAliases)
	viper.SetDefault("VERSIONTOWER_REQUEST_TIMEOUT", registry.DefaultRequestTimeout)
	viper.SetDefault("VERSIONTOWER_MAX_CONCURRENT", version.DefaultMaxConcurrent)
	viper.SetDefault("VERSIONTOWER_REGISTRY_RPS", defaultRegistryRPS)
	viper.SetDefault("VERSIONTOWER_REGISTRY_BURST", defaultRegistryBurst)
	viper.SetDefault("VERSIONTOWER_HTTP_API_PORT", "8080")
	viper.SetDefault("VERSIONTOWER_NOTIFICATIONS_LEVEL", "info")
	viper.SetDefault("VERSIONTOWER_NOTIFICATION_REPORT", true)
	viper.SetDefault("VERSIONTOWER_LOG_LEVEL", "info")
	viper.SetDefault("VERSIONTOWER_LOG_FORMAT", "auto")
}

// EnvConfig sets environment variables based on Docker-related flags.
func EnvConfig(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()

	host, err := flags.GetString("host")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	tls, err := flags.GetBool("tlsverify")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	version, err := flags.GetString("api-version")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err = setEnvOptStr("DOCKER_HOST", host); err != nil {
		return err
	}

	if err = setEnvOptBool("DOCKER_TLS_VERIFY", tls); err != nil {
		return err
	}

	return setEnvOptStr("DOCKER_API_VERSION", version)
}

// ResolverConfig builds the version resolution settings from the registry flags.
func ResolverConfig(flags *pflag.FlagSet) (version.Config, error) {
	config := version.DefaultConfig()

	var err error

	if config.FetchLimit, err = flags.GetInt("fetch-limit"); err != nil {
		return config, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if config.CurrentFetchLimit, err = flags.GetInt("current-fetch-limit"); err != nil {
		return config, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if config.FloatingAliases, err = flags.GetStringSlice("floating-tags"); err != nil {
		return config, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if config.MaxConcurrent, err = flags.GetInt("max-concurrent"); err != nil {
		return config, fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	return config, nil
}

// setEnvOptStr sets an environment variable unless opt is empty or already set.
func setEnvOptStr(env string, opt string) error {
	if opt == "" || opt == os.Getenv(env) {
		return nil
	}

	if err := os.Setenv(env, opt); err != nil {
		return fmt.Errorf("%w: %s: %w", errSetEnvFailed, env, err)
	}

	return nil
}

// setEnvOptBool sets an environment variable to "1" if the boolean is true.
func setEnvOptBool(env string, opt bool) error {
	if opt {
		return setEnvOptStr(env, "1")
	}

	return nil
}

// GetSecretsFromFiles replaces secret flag values with file contents when they name a file.
func GetSecretsFromFiles(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	secrets := []string{
		"notification-url",
		"http-api-token",
	}
	for _, secret := range secrets {
		if err := getSecretFromFile(flags, secret); err != nil {
			logrus.WithError(err).WithField("flag", secret).Fatal("Failed to read secret from file")
		}
	}
}

// getSecretFromFile updates a flag's value with file contents if it references a file.
// Slice flags get one value per non-empty line.
func getSecretFromFile(flags *pflag.FlagSet, secret string) error {
	flag := flags.Lookup(secret)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, secret)
	}

	if sliceValue, ok := flag.Value.(pflag.SliceValue); ok {
		oldValues := sliceValue.GetSlice()
		values := make([]string, 0, len(oldValues))

		for _, value := range oldValues {
			if value == "" || !isFilePath(value) {
				values = append(values, value)

				continue
			}

			file, err := os.Open(value)
			if err != nil {
				return fmt.Errorf("%w: %w", errOpenFileFailed, err)
			}

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					values = append(values, line)
				}
			}

			if err := file.Close(); err != nil {
				return fmt.Errorf("%w: %w", errCloseFileFailed, err)
			}
		}

		if err := sliceValue.Replace(values); err != nil {
			return fmt.Errorf("%w: %w", errReplaceSliceFailed, err)
		}

		return nil
	}

	value := flag.Value.String()
	if value != "" && isFilePath(value) {
		content, err := os.ReadFile(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errReadFileFailed, err)
		}

		if err := flags.Set(secret, strings.TrimSpace(string(content))); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// isFilePath reports whether path names an existing file. Values with a
// scheme, such as URLs, are never paths.
func isFilePath(path string) bool {
	firstColon := strings.IndexRune(path, ':')
	if firstColon != 1 && firstColon != -1 {
		return false
	}

	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}

// ProcessFlagAliases synchronizes flag values based on helper flags.
//
// Porcelain output maps to a stdout logger notification with the summary
// template, an interval becomes an "@every" schedule, and --debug/--trace
// raise the log level.
func ProcessFlagAliases(flags *pflag.FlagSet) error {
	porcelain, err := flags.GetString("porcelain")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if porcelain != "" {
		if porcelain != "v1" {
			return fmt.Errorf("%w: %q", errUnknownPorcelain, porcelain)
		}

		if err = appendFlagValue(flags, "notification-url", "logger://"); err != nil {
			return err
		}

		setFlagIfDefault(flags, "notification-log-stdout", "true")
		setFlagIfDefault(flags, "notification-report", "true")
		setFlagIfDefault(flags, "notification-template", "porcelain."+porcelain+".summary-no-log")
	}

	scheduleChanged := flags.Changed("schedule")
	intervalChanged := flags.Changed("interval")

	if val, _ := flags.GetString("schedule"); val != "" {
		scheduleChanged = true
	}

	if val, _ := flags.GetInt("interval"); val != defaultPollIntervalSeconds {
		intervalChanged = true
	}

	if intervalChanged && scheduleChanged {
		return errScheduleConflict
	}

	if intervalChanged || !scheduleChanged {
		interval, _ := flags.GetInt("interval")
		if err := flags.Set("schedule", fmt.Sprintf("@every %ds", interval)); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if flagIsEnabled(flags, "debug") {
		if err := flags.Set("log-level", "debug"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if flagIsEnabled(flags, "trace") {
		if err := flags.Set("log-level", "trace"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// SetupLogging configures the global logger based on log-related flags.
func SetupLogging(flags *pflag.FlagSet) error {
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err := configureLogFormat(logFormat, noColor); err != nil {
		return err
	}

	rawLogLevel, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	logLevel, err := logrus.ParseLevel(rawLogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	logrus.SetLevel(logLevel)

	return nil
}

// configureLogFormat sets the logrus formatter for the given format.
func configureLogFormat(logFormat string, noColor bool) error {
	switch strings.ToLower(logFormat) {
	case "auto":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:             noColor,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logfmt":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case "pretty":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			FullTimestamp: false,
		})
	default:
		return fmt.Errorf("%w: %s", errInvalidLogFormat, logFormat)
	}

	return nil
}

// flagIsEnabled reports whether a boolean flag is set. Undefined flags count as unset.
func flagIsEnabled(flags *pflag.FlagSet, name string) bool {
	value, err := flags.GetBool(name)
	if err != nil {
		logrus.WithField("flag", name).Debug("Flag is not defined")

		return false
	}

	return value
}

// appendFlagValue appends values to a slice-type flag.
func appendFlagValue(flags *pflag.FlagSet, name string, values ...string) error {
	flag := flags.Lookup(name)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, name)
	}

	flagValues, ok := flag.Value.(pflag.SliceValue)
	if !ok {
		return fmt.Errorf("%w: %q", errNotSliceValue, name)
	}

	for _, value := range values {
		if err := flagValues.Append(value); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// setFlagIfDefault sets a flag's value if it hasn't been explicitly changed.
func setFlagIfDefault(flags *pflag.FlagSet, name string, value string) {
	if flags.Changed(name) {
		return
	}

	if err := flags.Set(name, value); err != nil {
		logrus.WithError(err).WithField("flag", name).Error("Failed to set flag")
	}
}
