// Package export writes JSON artifacts (QA reports, project summaries)
// to a local path or an object store, via the TileDB VFS abstraction so
// the same call works against either without a separate code path.
//
// Grounded on the teacher's root json.go (WriteJson/JsonDumps/
// JsonIndentDumps), generalised from panic-on-error to returned errors
// and folded into this module's mberrors wrapping convention.
package export

import (
	"encoding/json"
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
)

// WriteJSON marshals data as indented JSON and writes it to uri (local
// path or object-store URI) via the TileDB VFS. configURI, if
// non-empty, names a TileDB config file supplying store credentials.
func WriteJSON(uri, configURI string, data any) (int, error) {
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
		return 0, errors.Join(mberrors.ErrIO, err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return 0, errors.Join(mberrors.ErrIO, err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return 0, errors.Join(mberrors.ErrIO, err)
	}
	defer vfs.Free()

	stream, err := vfs.Open(uri, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return 0, errors.Join(mberrors.ErrIO, err)
	}
	defer stream.Close()

	body, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}

	n, err := stream.Write(body)
	if err != nil {
		return 0, errors.Join(mberrors.ErrIO, err)
	}
	return n, nil
}

// Dumps marshals data to a compact JSON string.
func Dumps(data any) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// IndentDumps marshals data to a four-space-indented JSON string.
func IndentDumps(data any) (string, error) {
	body, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}
