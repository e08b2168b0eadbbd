package filters

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// NoFilter allows all images through.
func NoFilter(types.LocalImageRef) bool {
	return true
}

// matchesName reports whether name selects the container, either exactly or
// as a regular expression covering the whole container name.
func matchesName(name, containerName string) bool {
	containerName = strings.TrimPrefix(containerName, "/")
	if name == containerName || strings.TrimPrefix(name, "/") == containerName {
		return true
	}

	re, err := regexp.Compile(name)
	if err != nil {
		return false
	}

	indices := re.FindStringIndex(containerName)

	return indices != nil && indices[0] == 0 && indices[1] == len(containerName)
}

// FilterByNames selects containers matching specified names.
//
// Parameters:
//   - names: List of names or regex patterns to match.
//   - baseFilter: Base filter to chain.
//
// Returns:
//   - types.Filter: Filter function combining name check with base filter.
func FilterByNames(names []string, baseFilter types.Filter) types.Filter {
	if len(names) == 0 {
		return baseFilter
	}

	return func(image types.LocalImageRef) bool {
		for _, name := range names {
			if matchesName(name, image.Name) {
				logrus.WithFields(logrus.Fields{
					"container": image.Name,
					"pattern":   name,
				}).Debug("Matched container by name")

				return baseFilter(image)
			}
		}

		return false
	}
}

// FilterByDisableNames excludes containers matching specified names.
//
// Parameters:
//   - disableNames: Names to exclude.
//   - baseFilter: Base filter to chain.
//
// Returns:
//   - types.Filter: Filter function excluding names and applying base filter.
func FilterByDisableNames(disableNames []string, baseFilter types.Filter) types.Filter {
	if len(disableNames) == 0 {
		return baseFilter
	}

	return func(image types.LocalImageRef) bool {
		for _, name := range disableNames {
			if matchesName(name, image.Name) {
				logrus.WithField("container", image.Name).Debug("Container excluded by name")

				return false
			}
		}

		return baseFilter(image)
	}
}

// MissingNames returns the exact names that matched none of images.
// Regex patterns are never reported.
func MissingNames(names []string, images []types.LocalImageRef) []string {
	var missing []string

	for _, name := range names {
		if regexp.QuoteMeta(name) != name {
			continue
		}

		found := false

		for _, image := range images {
			if matchesName(name, image.Name) {
				found = true

				break
			}
		}

		if !found {
			missing = append(missing, name)
		}
	}

	return missing
}

// BuildFilter constructs a composite filter for containers.
//
// Parameters:
//   - names: Names to include.
//   - disableNames: Names to exclude.
//
// Returns:
//   - types.Filter: Combined filter function.
//   - string: Description of the filter.
func BuildFilter(names []string, disableNames []string) (types.Filter, string) {
	filter := FilterByNames(names, NoFilter)
	filter = FilterByDisableNames(disableNames, filter)

	parts := []string{}
	if len(names) > 0 {
		parts = append(parts, `which name matches "`+strings.Join(names, `" or "`)+`"`)
	}

	if len(disableNames) > 0 {
		parts = append(parts, `not named one of "`+strings.Join(disableNames, `" or "`)+`"`)
	}

	if len(parts) == 0 {
		return filter, "Checking all containers"
	}

	return filter, "Only checking containers " + strings.Join(parts, ", ")
}
