package gen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"
)

// Metrics reports the output of a Generate run.
type Metrics struct {
	FilesGenerated int
	TotalBytes     int64
}

// Generate renders, formats and writes the wrapper files to the target
// directory, in parallel.
func (g *Generator) Generate(ctx context.Context) (*Metrics, error) {
	files, err := g.Files()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(g.cfg.Target, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	var (
		mu      sync.Mutex
		metrics Metrics
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for _, name := range names {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			n, err := g.writeFile(name, files[name])
			if err != nil {
				return err
			}
			mu.Lock()
			metrics.FilesGenerated++
			metrics.TotalBytes += int64(n)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// Source returns the formatted source of a rendered file.
func Source(name string, f *jen.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return imports.Process(name, buf.Bytes(), nil)
}

func (g *Generator) writeFile(name string, f *jen.File) (int, error) {
	path := filepath.Join(g.cfg.Target, name)
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return 0, fmt.Errorf("render %s: %w", name, err)
	}
	formatted, err := imports.Process(path, buf.Bytes(), nil)
	if err != nil {
		debugPath := path + ".error"
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return 0, fmt.Errorf("format %s: %w (unformatted written to %s)", name, err, debugPath)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return len(formatted), nil
}
