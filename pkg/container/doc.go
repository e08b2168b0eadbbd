// Package container discovers the images of containers running on a Docker host.
//
// Key components:
//   - Client: Lists containers through the Docker Engine API and describes each
//     one's image as a types.LocalImageRef.
//   - ImageRef: Converts a container inspection into a types.LocalImageRef.
//
// Usage example:
//
//	cli, err := container.NewClient(container.ClientOptions{IncludeStopped: false})
//	if err != nil {
//	    logrus.WithError(err).Fatal("Failed to connect to Docker")
//	}
//	images, _ := cli.ListImages(ctx)
package container
