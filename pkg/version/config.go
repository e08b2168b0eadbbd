package version

import (
	"slices"
	"strings"

	"github.com/nicholas-fedor/versiontower/pkg/registry/helpers"
)

// Resolution defaults.
const (
	DefaultFetchLimit    = 100
	DefaultMaxConcurrent = 4
)

// DefaultFloatingAliases are tags that name a moving target rather than a version.
var DefaultFloatingAliases = []string{"latest", "stable"}

// Config controls how versions are resolved.
type Config struct {
	// FetchLimit bounds how many tags one alternate-tag search may enumerate.
	FetchLimit int
	// CurrentFetchLimit overrides FetchLimit for the search run while the image
	// is up to date. Zero uses FetchLimit.
	CurrentFetchLimit int
	// FloatingAliases are never used as descriptive labels.
	FloatingAliases []string
	// RegistryDomain is the only registry domain resolved against, "docker.io" when empty.
	RegistryDomain string
	// MaxConcurrent bounds concurrent resolutions in ResolveAll.
	MaxConcurrent int
	// Overrides replace non-zero settings for individual repositories, keyed by
	// familiar repository name such as "acme/app".
	Overrides map[string]Config
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		FetchLimit:      DefaultFetchLimit,
		FloatingAliases: slices.Clone(DefaultFloatingAliases),
		RegistryDomain:  helpers.DefaultRegistryDomain,
		MaxConcurrent:   DefaultMaxConcurrent,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.FetchLimit <= 0 {
		c.FetchLimit = defaults.FetchLimit
	}

	if c.FloatingAliases == nil {
		c.FloatingAliases = defaults.FloatingAliases
	}

	if c.RegistryDomain == "" {
		c.RegistryDomain = defaults.RegistryDomain
	}

	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaults.MaxConcurrent
	}

	return c
}

// For returns the effective configuration for repository.
func (c Config) For(repository string) Config {
	base := c.withDefaults()

	override, ok := c.Overrides[repository]
	if !ok {
		return base
	}

	if override.FetchLimit > 0 {
		base.FetchLimit = override.FetchLimit
	}

	if override.CurrentFetchLimit > 0 {
		base.CurrentFetchLimit = override.CurrentFetchLimit
	}

	if override.FloatingAliases != nil {
		base.FloatingAliases = override.FloatingAliases
	}

	return base
}

// currentLimit is the bound for the search run while up to date.
func (c Config) currentLimit() int {
	if c.CurrentFetchLimit > 0 {
		return c.CurrentFetchLimit
	}

	return c.FetchLimit
}

// IsFloating reports whether tag names a moving target: one of the configured
// aliases, or a tag made up only of superfluous keywords such as "latest-amd64".
func (c Config) IsFloating(tag string) bool {
	for _, alias := range c.FloatingAliases {
		if strings.EqualFold(tag, alias) {
			return true
		}
	}

	return TrimSuperfluous(tag) == ""
}
