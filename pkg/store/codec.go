package store

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// Encode serializes a snapshot into a gzip-compressed JSON blob. The schema
// version is stamped from this build, not taken from the snapshot.
func Encode(snapshot *Snapshot) ([]byte, error) {
	stamped := *snapshot
	stamped.SchemaVersion = SchemaVersion

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(&stamped); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses an export blob. Blobs that are not gzip, not JSON, or carry
// a different schema version are rejected with ErrSchemaMismatch; the caller
// keeps its current state.
func Decode(blob []byte) (*Snapshot, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: not a gzip blob", ErrSchemaMismatch)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt blob", ErrSchemaMismatch)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: not a snapshot envelope", ErrSchemaMismatch)
	}
	if snapshot.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: blob version %d, expected %d",
			ErrSchemaMismatch, snapshot.SchemaVersion, SchemaVersion)
	}
	return &snapshot, nil
}
