// Package flags manages command-line flags and environment variables for versiontower.
// It configures the Docker connection, the check schedule, registry access,
// the HTTP API, and notifications via Cobra and Viper.
//
// Every flag can also be set through an environment variable, VERSIONTOWER_*
// for versiontower's own settings and DOCKER_* for the Docker client.
//
// Key components:
//   - RegisterDockerFlags: Adds Docker API client flags.
//   - RegisterSystemFlags: Adds scheduling, selection and logging flags.
//   - RegisterRegistryFlags: Adds registry, cache and resolution flags.
//   - RegisterAPIFlags: Adds HTTP API flags.
//   - RegisterNotificationFlags: Adds notification settings.
//   - SetupLogging: Configures logrus based on flags.
//
// Usage example:
//
//	cmd := &cobra.Command{}
//	flags.SetDefaults()
//	flags.RegisterSystemFlags(cmd)
//	err := flags.SetupLogging(cmd.PersistentFlags())
//	if err != nil {
//	    logrus.WithError(err).Fatal("Logging setup failed")
//	}
package flags
