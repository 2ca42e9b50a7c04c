package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalStorage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		baseDir   string
		wantError bool
	}{
		{name: "existing directory", baseDir: t.TempDir()},
		{name: "creates missing directory", baseDir: filepath.Join(t.TempDir(), "evidence")},
		{name: "empty", baseDir: "", wantError: true},
		{name: "dot", baseDir: ".", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewLocalStorage(tt.baseDir)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.DirExists(t, s.baseDir)
		})
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := "runs/abc/0123/console.log"
	require.NoError(t, s.Upload(ctx, key, "text/plain", strings.NewReader("[error] boom\n")))

	rc, err := s.Download(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "[error] boom\n", string(data))

	link, err := s.GetURL(ctx, key)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(link))
	assert.Equal(t, filepath.Join(s.baseDir, "runs", "abc", "0123", "console.log"), link)
}

func TestLocalStorageMissingFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Download(ctx, "nope.png")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = s.GetURL(ctx, "nope.png")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "runs/1/screenshot.png", want: "runs/1/screenshot.png"},
		{in: "runs//1/./a.log", want: "runs/1/a.log"},
		{in: `runs\1\a.log`, want: "runs/1/a.log"},
		{in: "", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "../outside", wantErr: true},
		{in: "runs/../../outside", wantErr: true},
	}

	for _, tt := range tests {
		got, err := cleanKey(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPath, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = New(context.Background(), Config{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Type: "local"})
	assert.Error(t, err)
}
