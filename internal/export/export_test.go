package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	uri := filepath.Join(t.TempDir(), "report.json")
	data := map[string]int{"beams": 256}

	n, err := WriteJSON(uri, "", data)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("expected non-zero bytes written")
	}

	body, err := os.ReadFile(uri)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["beams"] != 256 {
		t.Errorf("expected beams=256, got %v", got)
	}
}

func TestDumpsAndIndentDumps(t *testing.T) {
	data := map[string]int{"a": 1}

	compact, err := Dumps(data)
	if err != nil {
		t.Fatal(err)
	}
	if compact != `{"a":1}` {
		t.Errorf("unexpected compact dump: %s", compact)
	}

	indented, err := IndentDumps(data)
	if err != nil {
		t.Fatal(err)
	}
	if indented == compact {
		t.Error("expected indented dump to differ from compact dump")
	}
}
