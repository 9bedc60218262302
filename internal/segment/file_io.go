package segment

import (
	"fmt"
	"os"
	"path/filepath"
)

// segPath and idxPath produce the fixed-width, zero-padded filenames spec §6
// requires so lexical sort equals numeric sort.
func segPath(dir string, baseOffset uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.seg", baseOffset))
}

func idxPath(dir string, baseOffset uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.idx", baseOffset))
}

// RemoveFiles deletes the .seg and .idx files for one segment, used by
// retention (spec's "destroyed only by retention policy").
func RemoveFiles(dir string, baseOffset uint64) error {
	if err := os.Remove(segPath(dir, baseOffset)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove segment file: %w", err)
	}
	if err := os.Remove(idxPath(dir, baseOffset)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove index file: %w", err)
	}
	return nil
}

func checkpointPath(dir string) string {
	return filepath.Join(dir, "checkpoint.meta")
}

// WriteCheckpoint overwrites checkpoint.meta with the most recently sealed
// segment's base offset and final next-offset. Advisory only: a missing or
// stale checkpoint never affects recovery, which always rebuilds state by
// scanning the segment files themselves.
func WriteCheckpoint(dir string, sealedBaseOffset, nextOffset uint64) error {
	line := fmt.Sprintf("%d %d\n", sealedBaseOffset, nextOffset)
	tmp := checkpointPath(dir) + ".tmp"
	if err := os.WriteFile(tmp, []byte(line), 0644); err != nil {
		return fmt.Errorf("write checkpoint tmp file: %w", err)
	}
	return os.Rename(tmp, checkpointPath(dir))
}

// ReadCheckpoint parses checkpoint.meta if present, for a faster startup log
// line only; callers must never rely on it for correctness.
func ReadCheckpoint(dir string) (sealedBaseOffset, nextOffset uint64, ok bool) {
	data, err := os.ReadFile(checkpointPath(dir))
	if err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(string(data), "%d %d", &sealedBaseOffset, &nextOffset); err != nil {
		return 0, 0, false
	}
	return sealedBaseOffset, nextOffset, true
}
