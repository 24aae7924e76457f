package io

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/renameio"
)

// WriteFileAtomic streams write into a temporary file next to fileName and renames it
// into place once everything is flushed and synced. On failure fileName is untouched
// and the temporary file is removed.
func WriteFileAtomic(fileName string, write func(w io.Writer) error) error {
	tmp, err := renameio.TempFile(filepath.Dir(fileName), fileName)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", fileName, err)
	}
	defer tmp.Cleanup()

	buffered := bufio.NewWriter(tmp)
	if err := write(buffered); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("error writing %s: %w", fileName, err)
	}
	if err := tmp.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("error moving %s into place: %w", fileName, err)
	}
	return nil
}
