package version

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Result is the outcome of resolving one image.
type Result struct {
	Image types.LocalImageRef
	Info  types.VersionInfo
	Err   error
}

// ResolveAll resolves images concurrently, at most MaxConcurrent at a time, and
// waits for all of them. Results are in the order of images; a failure only
// affects its own result.
func (r *Resolver) ResolveAll(ctx context.Context, images []types.LocalImageRef) []Result {
	limit := int64(r.config.withDefaults().MaxConcurrent)
	sem := semaphore.NewWeighted(limit)
	results := make([]Result, len(images))

	var wg sync.WaitGroup

	for i, image := range images {
		results[i].Image = image

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = fmt.Errorf("failed to schedule version check: %w", err)

			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer sem.Release(1)

			results[i].Info, results[i].Err = r.Resolve(ctx, image)
		}()
	}

	wg.Wait()

	logrus.WithField("images", len(images)).Debug("Resolved image versions")

	return results
}
