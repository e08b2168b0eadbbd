package container

import "errors"

// Errors for container discovery.
var (
	// errCreateClient indicates the Docker client could not be created.
	errCreateClient = errors.New("failed to create Docker client")
	// errListContainersFailed indicates a failure to list containers from the Docker host.
	errListContainersFailed = errors.New("failed to list containers")
	// errInspectContainerFailed indicates a failure to inspect a container's details.
	errInspectContainerFailed = errors.New("failed to inspect container")
	// errIncompleteInspection indicates an inspection without config or state.
	errIncompleteInspection = errors.New("container inspection is incomplete")
	// errParseImageReference indicates the container's image reference could not be parsed.
	errParseImageReference = errors.New("failed to parse image reference")
)
