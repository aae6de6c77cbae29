package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSource_NewLister(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr bool
		errMsg  string
	}{
		{
			name: "file URI",
			uri:  "file:///tmp/song_data",
		},
		{
			name:    "empty file path",
			uri:     "file://",
			wantErr: true,
			errMsg:  "file:// URI path cannot be empty",
		},
		{
			name:    "unknown scheme",
			uri:     "https://example.com/data",
			wantErr: true,
			errMsg:  "source URI must start with file:// or s3://",
		},
		{
			name:    "bare path",
			uri:     "/tmp/song_data",
			wantErr: true,
			errMsg:  "source URI must start with file:// or s3://",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLister(context.Background(), tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSource_DirLister_ListsNestedJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "A/B/C/TRAAAAA.json", "{}")
	writeFile(t, dir, "A/B/D/TRBBBBB.json", "{}")
	writeFile(t, dir, "A/README.txt", "not data")

	lister := &dirLister{root: dir}
	keys, err := lister.List(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Contains(t, keys[0], "TRAAAAA.json")
	require.Contains(t, keys[1], "TRBBBBB.json")
}

func TestSource_DirLister_MissingRoot(t *testing.T) {
	lister := &dirLister{root: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := lister.List(context.Background())
	require.Error(t, err)
}

func TestSource_DirLister_Open(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "events.json", `{"page":"Home"}`)

	lister := &dirLister{root: dir}
	body, err := lister.Open(context.Background(), path)
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 16)
	n, _ := body.Read(buf)
	require.Equal(t, `{"page":"Home"}`, string(buf[:n]))
}
