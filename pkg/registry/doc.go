// Package registry provides the pieces versiontower uses to talk to container registries.
//
// Key components:
//   - auth: Exchanges a repository name for a pull-scope bearer token.
//   - cache: Two-tier manifest cache invalidated by the tag's last-updated date.
//   - manifest: Fetches and validates schema 2 manifests, cache first.
//   - tags: Lazily pages a repository's tags newest-first.
//   - ratelimit: Per-host request throttling with back-off on HTTP 429.
//   - helpers: Repository path and digest utilities.
//
// This package itself looks up registry credentials (environment or Docker
// config) and builds the shared HTTP client.
//
// Usage example:
//
//	creds, err := registry.Credentials("docker.io/acme/app")
//	if err != nil {
//	    logrus.WithError(err).Debug("No registry credentials")
//	}
//	client := registry.NewHTTPClient(ratelimit.New(5, 5))
package registry
