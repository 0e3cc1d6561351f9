package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/zhouzirui/z-interview/backend/internal/config"
)

// fakeDrive answers the handful of Drive v3 calls the uploader makes.
type fakeDrive struct {
	mu          sync.Mutex
	uploads     []string
	folders     int
	lookups     int
	permissions int
	existing    string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		f.lookups++
		files := []map[string]string{}
		if f.existing != "" {
			files = append(files, map[string]string{"id": f.existing})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/permissions"):
		f.permissions++
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "perm"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/files"):
		if r.URL.Query().Get("uploadType") != "" {
			f.uploads = append(f.uploads, string(body))
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":          "file-1",
				"webViewLink": "https://drive.example/file-1",
			})
			return
		}
		f.folders++
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "folder-1"})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func newTestDrive(t *testing.T, cfg config.StorageConfig, fake *fakeDrive) *Drive {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewDrive(cfg,
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alice.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDriveUploadReturnsLink(t *testing.T) {
	fake := &fakeDrive{}
	d := newTestDrive(t, config.StorageConfig{FolderID: "configured"}, fake)

	link, err := d.Upload(context.Background(), writeTemp(t, "Session ID: abc"), "alice_transcript.txt")
	require.NoError(t, err)

	assert.Equal(t, "https://drive.example/file-1", link)
	require.Len(t, fake.uploads, 1)
	assert.Contains(t, fake.uploads[0], "alice_transcript.txt")
	assert.Contains(t, fake.uploads[0], "configured")
	assert.Zero(t, fake.lookups)
	assert.Zero(t, fake.permissions)
}

func TestDriveCreatesFolderOnce(t *testing.T) {
	fake := &fakeDrive{}
	d := newTestDrive(t, config.StorageConfig{FolderName: "interviews"}, fake)
	path := writeTemp(t, "x")

	_, err := d.Upload(context.Background(), path, "a.txt")
	require.NoError(t, err)
	_, err = d.Upload(context.Background(), path, "b.txt")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.lookups)
	assert.Equal(t, 1, fake.folders)
	assert.Len(t, fake.uploads, 2)
}

func TestDriveReusesExistingFolder(t *testing.T) {
	fake := &fakeDrive{existing: "folder-9"}
	d := newTestDrive(t, config.StorageConfig{FolderName: "interviews"}, fake)

	_, err := d.Upload(context.Background(), writeTemp(t, "x"), "a.txt")
	require.NoError(t, err)

	assert.Zero(t, fake.folders)
	require.Len(t, fake.uploads, 1)
	assert.Contains(t, fake.uploads[0], "folder-9")
}

func TestDriveSharesPublicly(t *testing.T) {
	fake := &fakeDrive{}
	d := newTestDrive(t, config.StorageConfig{FolderID: "f", SharePublic: true}, fake)

	_, err := d.Upload(context.Background(), writeTemp(t, "x"), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.permissions)
}

func TestDriveWithoutCredentialsFails(t *testing.T) {
	d := NewDrive(config.StorageConfig{})

	link, err := d.Upload(context.Background(), writeTemp(t, "x"), "a.txt")
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Empty(t, link)

	// 初始化错误被缓存，不会重复加载凭证。
	_, err = d.Upload(context.Background(), writeTemp(t, "x"), "a.txt")
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestDriveMissingCredentialsFile(t *testing.T) {
	d := NewDrive(config.StorageConfig{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")})

	_, err := d.Upload(context.Background(), writeTemp(t, "x"), "a.txt")
	require.Error(t, err)
}

func TestDriveMissingLocalFile(t *testing.T) {
	d := newTestDrive(t, config.StorageConfig{FolderID: "f"}, &fakeDrive{})

	_, err := d.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), "a.txt")
	require.Error(t, err)
}

func TestNopUploader(t *testing.T) {
	link, err := Nop{}.Upload(context.Background(), "whatever", "x")
	require.NoError(t, err)
	assert.Empty(t, link)
}
