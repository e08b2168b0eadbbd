// Package types defines core interfaces and structs for versiontower.
// It provides abstractions for running images, registry manifests, tag listings,
// resolved version information, session reporting and notifications.
//
// Key components:
//   - LocalImageRef: An image a container is currently running.
//   - Manifest: A validated schema 2 manifest for a repository tag.
//   - TagInfo / TagListPage: One page of a registry tag listing.
//   - TagIterator: A single-pass, newest-first sequence of tags.
//   - VersionInfo: The current and latest version labels for one image.
//   - Report / ImageReport: Results of one check cycle.
//   - Notifier: Interface for notification services.
//   - Filter: Function type for image filtering.
//   - RegistryCredentials: Struct for registry authentication.
//
// Usage example:
//
//	images, _ := inspector.ListImages(ctx)
//	info, err := resolver.Resolve(ctx, images[0])
//	fmt.Println(info.CurrentVersion, info.LatestVersion)
//
// The package integrates with the container, registry, version, session and
// notifications packages.
package types
