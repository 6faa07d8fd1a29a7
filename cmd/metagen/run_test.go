package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectMediaFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "c.webp", "notes.txt", "clip.mp4", "photo.JPEG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	files, err := collectMediaFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"a.png", "b.jpg", "c.webp", "photo.JPEG"}, names)
}

func TestCollectMediaFiles_MissingDir(t *testing.T) {
	_, err := collectMediaFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
