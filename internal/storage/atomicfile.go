// Package storage holds small on-disk persistence helpers shared by the
// Admin Identity Store (C2) and Session Registry (C4): atomic
// write-to-temp-then-rename, and the retry-once-with-backoff policy §7
// requires for persistence errors.
package storage

import (
	"encoding/json"
	"os"

	"github.com/cenkalti/backoff/v4"
)

// AtomicWriteJSON serializes v and writes it to path via a temp file plus
// rename, so readers never observe a torn file.
func AtomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteWithRetry retries a failed write once with exponential back-off and
// returns the second failure to the caller. It does not mark or track the
// affected record as quarantined; callers only log and return the error.
func WriteWithRetry(path string, v any) error {
	op := func() error { return AtomicWriteJSON(path, v) }
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	return backoff.Retry(op, b)
}

// ReadJSON reads and unmarshals path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
