package search

import (
	"io"
	"strings"
	"testing"
)

type closableReader struct {
	io.Reader
}

func (closableReader) Close() error { return nil }

// installFakeFilesystem swaps nestedOpener for a lookup against the
// given in-memory contents, restoring the original via t.Cleanup.
func installFakeFilesystem(t *testing.T, files map[string]string) {
	t.Helper()
	orig := nestedOpener
	nestedOpener = func(path string) (io.ReadCloser, error) {
		contents, ok := files[path]
		if !ok {
			return nil, os_ErrNotExist(path)
		}
		return closableReader{strings.NewReader(contents)}, nil
	}
	t.Cleanup(func() { nestedOpener = orig })
}

func os_ErrNotExist(path string) error {
	return &notFoundError{path: path}
}

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return "no such file: " + e.path }

func TestParseDatalistFlatFile(t *testing.T) {
	input := "survey1.gsf 121 1.0\n# a comment\n\nsurvey2.gsf 121\n"
	entries, err := ParseDatalist(strings.NewReader(input), "/data/datalist.mb-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "/data/survey1.gsf" || entries[0].Format != 121 || entries[0].Weight != 1.0 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Weight != 1.0 {
		t.Errorf("expected default weight 1.0, got %v", entries[1].Weight)
	}
}

func TestParseDatalistRejectsMalformedLine(t *testing.T) {
	_, err := ParseDatalist(strings.NewReader("onlyonefield\n"), "/data/datalist.mb-1")
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestParseDatalistRejectsBadFormatCode(t *testing.T) {
	_, err := ParseDatalist(strings.NewReader("survey1.gsf notanumber\n"), "/data/datalist.mb-1")
	if err == nil {
		t.Fatal("expected error for non-numeric format code")
	}
}

func TestParseDatalistExpandsNestedDatalist(t *testing.T) {
	installFakeFilesystem(t, map[string]string{
		"/data/sub/datalist.mb-1": "survey3.gsf 121\n",
	})

	input := "survey1.gsf 121\nsub/datalist.mb-1 -1\n"
	entries, err := ParseDatalist(strings.NewReader(input), "/data/datalist.mb-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (1 direct + 1 nested), got %d", len(entries))
	}
	if entries[1].Path != "/data/sub/survey3.gsf" {
		t.Errorf("expected nested entry resolved relative to its own datalist, got %s", entries[1].Path)
	}
}

func TestParseDatalistDetectsCircularReference(t *testing.T) {
	installFakeFilesystem(t, map[string]string{
		"/data/a.mb-1": "b.mb-1 -1\n",
		"/data/b.mb-1": "a.mb-1 -1\n",
	})

	_, err := ParseDatalist(strings.NewReader("a.mb-1 -1\n"), "/data/top.mb-1")
	if err == nil {
		t.Fatal("expected circular reference error")
	}
}
