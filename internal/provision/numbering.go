// Package provision implements the batch provisioning and team-drive sharing
// workflows: sequential numbered account/key creation with directory-scan
// resumability, and idempotent permission grants for every key in a prefix
// folder. Everything here runs single-threaded and fails fast; recovery is
// structural: a rerun resumes after the highest existing key file.
package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// DirPerms is used when creating key directories.
const DirPerms = 0o700

// keyFileExt is the extension of numbered key files.
const keyFileExt = ".json"

// ResolveStart determines the next unused sequence number for a key
// directory. An absent directory is created and base is returned. Otherwise
// the highest numeric key filename plus one is returned, or base when no
// valid key filenames exist. Non-numeric or malformed filenames are ignored.
// Gaps from prior partial failures are never backfilled, only appended after.
func ResolveStart(dir string, base int) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
			return 0, fmt.Errorf("provision: creating key directory %s: %w", dir, mkErr)
		}

		return base, nil
	}

	if err != nil {
		return 0, fmt.Errorf("provision: reading key directory %s: %w", dir, err)
	}

	next := base

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		seq, ok := sequenceFromName(entry.Name())
		if !ok {
			continue
		}

		if seq+1 > next {
			next = seq + 1
		}
	}

	return next, nil
}

// sequenceFromName parses the numeric stem of a key filename. Only names of
// the exact form "<digits>.json" qualify; anything else is not a key file.
func sequenceFromName(name string) (int, bool) {
	stem, found := strings.CutSuffix(name, keyFileExt)
	if !found || stem == "" {
		return 0, false
	}

	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	seq, err := strconv.Atoi(stem)
	if err != nil {
		return 0, false
	}

	return seq, true
}
