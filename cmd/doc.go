// Package cmd contains the command-line interface for versiontower.
//
// The root command builds the registry pipeline from flags, then runs version
// checks once, on a cron schedule, or on demand through the HTTP API.
//
// Usage examples:
//   - Check all running containers once and exit:
//     versiontower --run-once
//   - Check nginx and redis daily with the versions API enabled:
//     versiontower --schedule "@daily" --http-api-versions --http-api-token secret nginx redis
package cmd
