// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

package aurora

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/woozymasta/pathrules"
)

// ExtractOptions configures capsule extraction to a directory.
type ExtractOptions struct {
	// OnResourceDone is called after one resource is fully written to disk.
	OnResourceDone func(fr FileResource, written int64, outputPath string)
	// Include defines ordered path rules selecting which resources are
	// extracted, matched against the "name.ext" filename. Empty means all.
	Include []pathrules.Rule
	// MatcherOptions control include rule matching.
	MatcherOptions pathrules.MatcherOptions
	// MaxWorkers is the number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}

	if opts.MatcherOptions == (pathrules.MatcherOptions{}) {
		opts.MatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}
}

// Extract writes selected resources to dstDir as flat "name.ext" files.
// Extraction is parallelized by MaxWorkers; on failure it returns the first
// encountered error.
func (c *Capsule) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if c == nil {
		return ErrNilCapsule
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	if err := c.ensureLoaded(false); err != nil {
		return err
	}

	selected, err := selectExtractResources(c.resources, opts.Include, opts.MatcherOptions)
	if err != nil {
		return err
	}

	if len(selected) == 0 {
		return nil
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	taskCh := make(chan FileResource, len(selected))
	errCh := make(chan error, len(selected))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < opts.MaxWorkers; w++ {
		wg.Go(func() {
			for task := range taskCh {
				err := extractOneResource(ctx, dstRootAbs, task, opts.OnResourceDone)
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		})
	}

	for _, task := range selected {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		case taskCh <- task:
		}
	}

	close(taskCh)
	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

// selectExtractResources applies include rules to the capsule directory.
func selectExtractResources(
	resources []FileResource,
	rules []pathrules.Rule,
	matcherOpts pathrules.MatcherOptions,
) ([]FileResource, error) {
	if len(rules) == 0 {
		out := make([]FileResource, len(resources))
		copy(out, resources)
		return out, nil
	}

	matcher, err := pathrules.NewMatcher(rules, matcherOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExtractRules, err)
	}

	out := make([]FileResource, 0, len(resources))
	for _, fr := range resources {
		if matcher.Included(fr.Filename(), false) {
			out = append(out, fr)
		}
	}

	return out, nil
}

// extractOneResource writes one resource payload to the destination root.
func extractOneResource(
	ctx context.Context,
	dstRootAbs string,
	fr FileResource,
	onResourceDone func(fr FileResource, written int64, outputPath string),
) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := fr.Data()
	if err != nil {
		return err
	}

	outPath := filepath.Join(dstRootAbs, fr.Filename())
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", fr.Filename(), err)
	}

	if onResourceDone != nil {
		onResourceDone(fr, int64(len(data)), outPath)
	}

	return nil
}
