// Package jsonfile persists state documents as JSON files with atomic
// replacement. Files in the coordination directory are shared with other
// processes, so every write goes through a temp file + rename and every read
// tolerates a file disappearing mid-read.
package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Load reads a JSON document into dst. A missing or empty file leaves dst
// untouched and returns false. A corrupt file is re-read once (another process
// may have been mid-rename); if it is still unreadable the error is logged
// loudly and the caller starts empty rather than failing.
func Load(path string, dst any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		// Retry once: a cooperating process may have replaced the file
		// between our read and now.
		data, rerr := os.ReadFile(path)
		if rerr == nil && len(data) > 0 {
			if uerr := json.Unmarshal(data, dst); uerr == nil {
				return true, nil
			}
		}
		log.Error().Err(err).Str("path", path).Msg("state file is corrupt, starting empty")
		return false, nil
	}

	return true, nil
}

// Save writes v as indented JSON to path atomically (temp file in the same
// directory, then rename). Parent directories are created as needed.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}
