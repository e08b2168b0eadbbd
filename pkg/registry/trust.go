package registry

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	dockerCliConfig "github.com/docker/cli/cli/config"
	dockerConfigConfigfile "github.com/docker/cli/cli/config/configfile"
	dockerConfigCredentials "github.com/docker/cli/cli/config/credentials"
	dockerConfigTypes "github.com/docker/cli/cli/config/types"

	"github.com/nicholas-fedor/versiontower/pkg/registry/helpers"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Errors for registry credential lookups.
var (
	// errUnsetRegAuthVars indicates registry auth environment variables (REPO_USER, REPO_PASS) are not set.
	errUnsetRegAuthVars = errors.New(
		"registry auth environment variables (REPO_USER, REPO_PASS) not set",
	)
	// errFailedGetRegistryAddress indicates a failure to extract the registry address from an image reference.
	errFailedGetRegistryAddress = errors.New("failed to get registry address")
	// errFailedLoadDockerConfig indicates a failure to load the Docker configuration file.
	errFailedLoadDockerConfig = errors.New("failed to load Docker config")
)

// Credentials looks up basic credentials for the registry hosting imageRef,
// first in the environment and then in the Docker config file.
//
// It returns nil without error when no credentials are configured, in which
// case the token exchange is anonymous.
func Credentials(imageRef string) (*types.RegistryCredentials, error) {
	fields := logrus.Fields{
		"image_ref": imageRef,
	}

	logrus.WithFields(fields).Debug("Looking up registry credentials")

	creds, err := EnvCredentials()
	if err == nil {
		return creds, nil
	}

	logrus.WithError(err).
		WithFields(fields).
		Debug("Environment credentials not available, trying config file")

	return ConfigCredentials(imageRef)
}

// EnvCredentials reads the REPO_USER and REPO_PASS environment variables.
func EnvCredentials() (*types.RegistryCredentials, error) {
	username := os.Getenv("REPO_USER")
	password := os.Getenv("REPO_PASS")

	if username == "" || password == "" {
		return nil, errUnsetRegAuthVars
	}

	logrus.WithField("username", username).Debug("Loaded registry credentials from environment")

	return &types.RegistryCredentials{Username: username, Password: password}, nil
}

// ConfigCredentials reads credentials for the registry hosting imageRef from
// the Docker config in $DOCKER_CONFIG, or "/" when unset.
func ConfigCredentials(imageRef string) (*types.RegistryCredentials, error) {
	fields := logrus.Fields{
		"image_ref": imageRef,
	}

	server, err := helpers.GetRegistryAddress(imageRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedGetRegistryAddress, err)
	}

	configDir := os.Getenv("DOCKER_CONFIG")
	if configDir == "" {
		configDir = "/"
	}

	configFile, err := dockerCliConfig.Load(configDir)
	if err != nil {
		logrus.WithError(err).
			WithFields(fields).
			WithField("config_dir", configDir).
			Debug("Failed to load Docker config")

		return nil, fmt.Errorf("%w: %w", errFailedLoadDockerConfig, err)
	}

	auth, _ := CredentialsStore(*configFile).Get(server)
	if auth == (dockerConfigTypes.AuthConfig{}) || auth.Username == "" {
		logrus.WithFields(fields).WithFields(logrus.Fields{
			"server":      server,
			"config_file": configFile.Filename,
		}).Debug("No credentials found in config")

		return nil, nil //nolint:nilnil
	}

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"username":    auth.Username,
		"server":      server,
		"config_file": configFile.Filename,
	}).Debug("Loaded registry credentials from config")

	password := auth.Password
	if password == "" {
		password = auth.IdentityToken
	}

	return &types.RegistryCredentials{Username: auth.Username, Password: password}, nil
}

// CredentialsStore returns a new credentials store based on the settings provided in the configuration file.
// It determines whether to use a native or file-based store depending on the config.
func CredentialsStore(configFile dockerConfigConfigfile.ConfigFile) dockerConfigCredentials.Store {
	if configFile.CredentialsStore != "" {
		return dockerConfigCredentials.NewNativeStore(&configFile, configFile.CredentialsStore)
	}

	return dockerConfigCredentials.NewFileStore(&configFile)
}
