// Package search locates candidate survey files, either by trawling a
// URI (local filesystem or object store, via the TileDB VFS abstraction)
// or by walking a datalist that enumerates files explicitly.
//
// Trawl is grounded on the teacher's search/search.go (trawl/FindGsf),
// generalised from a hardcoded "*.gsf" pattern to a caller-supplied one
// and from panic-on-error to returned errors. Datalist parsing is
// grounded on original_source/src/utilities/mbnavlist.cc's use of
// mb_datalist_open/mb_datalist_read: a datalist file lists one entry
// per line as "path format [weight]", where an entry can itself name a
// nested datalist (format code -1) that is expanded recursively.
package search

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// trawl recurses through uri via the TileDB VFS, collecting files whose
// basename matches pattern.
func trawl(vfs *tiledb.VFS, pattern, uri string, items []string) ([]string, error) {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		return items, fmt.Errorf("search: list %s: %w", uri, err)
	}

	for _, file := range files {
		match, err := filepath.Match(pattern, filepath.Base(file))
		if err != nil {
			return items, fmt.Errorf("search: match pattern %q: %w", pattern, err)
		}
		if match {
			items = append(items, file)
		}
	}

	for _, dir := range dirs {
		items, err = trawl(vfs, pattern, dir, items)
		if err != nil {
			return items, err
		}
	}

	return items, nil
}

// Find recursively searches uri for files matching pattern (e.g.
// "*.gsf"), using the TileDB Go bindings so the same call works against
// a local filesystem or an object store such as S3. configURI, if
// non-empty, names a TileDB config file supplying store credentials.
func Find(uri, pattern, configURI string) ([]string, error) {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, fmt.Errorf("search: load config: %w", err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, fmt.Errorf("search: new context: %w", err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("search: new vfs: %w", err)
	}
	defer vfs.Free()

	return trawl(vfs, pattern, uri, make([]string, 0))
}

// Entry is one resolved datalist line: a survey file together with the
// format code and relative weight the datalist assigned it.
type Entry struct {
	Path   string
	Format int
	Weight float64
}

const datalistFormat = -1

// ParseDatalist reads a datalist in mb_datalist_read's line format —
// "path format [weight]" per line, blank lines and lines beginning with
// '#' ignored — expanding any nested datalist (format -1) relative to
// base. It never recurses into itself: a datalist that (directly or
// transitively) references its own path is an error, mirroring the
// guard mb_datalist_open keeps against circular references.
func ParseDatalist(r io.Reader, base string) ([]Entry, error) {
	return parseDatalist(r, base, map[string]bool{})
}

func parseDatalist(r io.Reader, base string, visited map[string]bool) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("search: datalist %s line %d: expected \"path format [weight]\", got %q", base, lineNo, line)
		}

		path := fields[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(base), path)
		}

		format, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("search: datalist %s line %d: bad format code %q: %w", base, lineNo, fields[1], err)
		}

		weight := 1.0
		if len(fields) >= 3 {
			weight, err = strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("search: datalist %s line %d: bad weight %q: %w", base, lineNo, fields[2], err)
			}
		}

		if format != datalistFormat {
			entries = append(entries, Entry{Path: path, Format: format, Weight: weight})
			continue
		}

		if visited[path] {
			return nil, fmt.Errorf("search: datalist %s line %d: circular reference to %s", base, lineNo, path)
		}
		nested, err := openAndParseNested(path, visited)
		if err != nil {
			return nil, err
		}
		entries = append(entries, nested...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("search: datalist %s: %w", base, err)
	}
	return entries, nil
}

// nestedOpener is overridden in tests to avoid touching the real
// filesystem; production code always goes through openFile.
var nestedOpener func(string) (io.ReadCloser, error) = openFile

func openAndParseNested(path string, visited map[string]bool) ([]Entry, error) {
	f, err := nestedOpener(path)
	if err != nil {
		return nil, fmt.Errorf("search: open nested datalist %s: %w", path, err)
	}
	defer f.Close()

	nextVisited := make(map[string]bool, len(visited)+1)
	for k, v := range visited {
		nextVisited[k] = v
	}
	nextVisited[path] = true

	return parseDatalist(f, path, nextVisited)
}
