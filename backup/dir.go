package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/tabula/model"
)

// ManifestName is the base name of the manifest file of a backup directory.
const ManifestName = "manifest"

// Manifest describes a backup directory.
type Manifest struct {
	ID      string    `json:"id" yaml:"id" msgpack:"id"`
	Created time.Time `json:"created" yaml:"created" msgpack:"created"`
	Dialect string    `json:"dialect" yaml:"dialect" msgpack:"dialect"`
	Format  Format    `json:"format" yaml:"format" msgpack:"format"`
	Files   []File    `json:"files" yaml:"files" msgpack:"files"`
}

// File is the dump of one entity type.
type File struct {
	Entity string `json:"entity" yaml:"entity" msgpack:"entity"`
	Name   string `json:"name" yaml:"name" msgpack:"name"`
	Count  int    `json:"count" yaml:"count" msgpack:"count"`
}

// WriteDir dumps every registered entity type to its own file in dir and
// writes the manifest last.
func WriteDir(ctx context.Context, c *model.Client, dir string, format Format) (*Manifest, error) {
	descs, err := c.Registry().Descriptors()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	m := &Manifest{
		ID:      uuid.NewString(),
		Created: time.Now().UTC().Truncate(time.Second),
		Dialect: c.Conn().Dialect(),
		Format:  format,
	}
	dumps := make([][]Record, len(descs))
	for i, d := range descs {
		if dumps[i], err = Dump(ctx, c, d.Name); err != nil {
			return nil, fmt.Errorf("backup: dumping %s: %w", d.Name, err)
		}
		m.Files = append(m.Files, File{Entity: d.Name, Name: d.Table + format.Ext(), Count: len(dumps[i])})
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range m.Files {
		g.Go(func() error {
			return writeFile(filepath.Join(dir, f.Name), format, dumps[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(dir, ManifestName+format.Ext()), format, m); err != nil {
		return nil, err
	}
	c.Logger().InfoContext(ctx, "backup written", "dir", dir, "id", m.ID, "entities", len(m.Files))
	return m, nil
}

func writeFile(path string, format Format, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	if err := format.Encode(f, v); err != nil {
		return fmt.Errorf("backup: encoding %s: %w", path, err)
	}
	return nil
}

func readFile(path string, format Format, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := format.Decode(f, v); err != nil {
		return fmt.Errorf("backup: decoding %s: %w", path, err)
	}
	return nil
}

// ReadManifest returns the manifest of a backup directory, whatever its
// format.
func ReadManifest(dir string) (*Manifest, error) {
	for _, format := range Formats {
		path := filepath.Join(dir, ManifestName+format.Ext())
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		m := &Manifest{}
		if err := readFile(path, format, m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("backup: no manifest in %s", dir)
}

// ReadDir restores the backup directory written by WriteDir.
func ReadDir(ctx context.Context, c *model.Client, dir string) (*Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	dumps := make([][]Record, len(m.Files))
	g, _ := errgroup.WithContext(ctx)
	for i, f := range m.Files {
		g.Go(func() error {
			return readFile(filepath.Join(dir, f.Name), m.Format, &dumps[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var records []Record
	for _, d := range dumps {
		records = append(records, d...)
	}
	if err := Restore(ctx, c, records); err != nil {
		return nil, err
	}
	c.Logger().InfoContext(ctx, "backup restored", slog.String("dir", dir), slog.String("id", m.ID), slog.Int("records", len(records)))
	return m, nil
}
