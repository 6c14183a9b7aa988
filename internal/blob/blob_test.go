package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
)

func TestAllowedFile(t *testing.T) {
	for name, want := range map[string]bool{
		"brief.pdf":      true,
		"PHOTO.JPG":      true,
		"clip.final.mp4": true,
		"notes.txt":      true,
		"script.docx":    true,
		"archive.zip":    false,
		"noextension":    false,
		"trailingdot.":   false,
		"run.exe":        false,
	} {
		assert.Equal(t, want, AllowedFile(name), name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "My_Brief.pdf", SanitizeFilename("My Brief.pdf"))
	assert.Equal(t, "etc_passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "a_b.txt", SanitizeFilename(`a\b.txt`))
	assert.Equal(t, "caf.png", SanitizeFilename("café.png"))
	assert.Equal(t, "", SanitizeFilename("..."))
}

func TestDestinationPath(t *testing.T) {
	assert.Equal(t, "uploads/general/a.pdf", DestinationPath("", "", "", "a.pdf"))
	assert.Equal(t, "uploads/p1/a.pdf", DestinationPath("p1", "", "", "a.pdf"))
	assert.Equal(t, "uploads/p1/s1/e1/a.pdf", DestinationPath("p1", "s1", "e1", "a.pdf"))
	assert.Equal(t, "uploads/p1/e1/a.pdf", DestinationPath("p1", "", "e1", "a.pdf"))
	assert.Equal(t, "uploads/p1/a.pdf", DestinationPath("../p1", "", "", "a.pdf"))
}

type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	ctypes  map[string]string
	acl     string
}

func newFakeGCS(t *testing.T) (*fakeGCS, *httptest.Server) {
	f := &fakeGCS{objects: map[string][]byte{}, ctypes: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/b/studio-media/o"):
			f.insert(t, w, r)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/studio-media"):
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "studio-media"})
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGCS) insert(t *testing.T, w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(mediaType, "multipart/"), mediaType)

	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	require.NoError(t, err)
	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	require.NoError(t, json.NewDecoder(metaPart).Decode(&meta))

	mediaPart, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(mediaPart)
	require.NoError(t, err)

	f.mu.Lock()
	f.objects[meta.Name] = body
	f.ctypes[meta.Name] = mediaPart.Header.Get("Content-Type")
	f.acl = r.URL.Query().Get("predefinedAcl")
	f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":        meta.Name,
		"bucket":      "studio-media",
		"contentType": meta.ContentType,
		"size":        strconv.Itoa(len(body)),
	})
}

func newTestStore(t *testing.T, srv *httptest.Server, public bool) *GCSStore {
	t.Helper()
	s, err := NewGCSStore(context.Background(), Config{
		Bucket:     "studio-media",
		Endpoint:   srv.URL + "/storage/v1/",
		PublicRead: public,
	}, zaptest.NewLogger(t), option.WithoutAuthentication())
	require.NoError(t, err)
	return s
}

func TestUploadStoresObjectAndHashes(t *testing.T) {
	fake, srv := newFakeGCS(t)
	store := newTestStore(t, srv, true)

	content := "Midway research notes"
	obj, err := store.Upload(context.Background(), "uploads/p1/s1/e1/notes.txt", strings.NewReader(content), "text/plain")
	require.NoError(t, err)

	sum := md5.Sum([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), obj.Hash)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, "uploads/p1/s1/e1/notes.txt", obj.Path)
	assert.Equal(t, "https://storage.googleapis.com/studio-media/uploads/p1/s1/e1/notes.txt", obj.URL)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, content, string(fake.objects["uploads/p1/s1/e1/notes.txt"]))
	assert.Equal(t, "text/plain", fake.ctypes["uploads/p1/s1/e1/notes.txt"])
	assert.Equal(t, "publicRead", fake.acl)
}

func TestUploadDefaultsContentType(t *testing.T) {
	fake, srv := newFakeGCS(t)
	store := newTestStore(t, srv, false)

	obj, err := store.Upload(context.Background(), "uploads/general/blob.pdf", strings.NewReader("%PDF"), "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", obj.ContentType)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.acl)
}

func TestPublicURLEscapesSegments(t *testing.T) {
	_, srv := newFakeGCS(t)
	store := newTestStore(t, srv, false)
	assert.Equal(t, "https://storage.googleapis.com/studio-media/uploads/general/a%20b.pdf",
		store.PublicURL("uploads/general/a b.pdf"))
}

func TestCheck(t *testing.T) {
	_, srv := newFakeGCS(t)
	store := newTestStore(t, srv, false)
	assert.NoError(t, store.Check(context.Background()))

	missing, err := NewGCSStore(context.Background(), Config{Bucket: "nope", Endpoint: srv.URL + "/storage/v1/"},
		zaptest.NewLogger(t), option.WithoutAuthentication())
	require.NoError(t, err)
	assert.ErrorIs(t, missing.Check(context.Background()), ErrBucketMissing)
}

func TestNewGCSStoreRequiresBucket(t *testing.T) {
	_, err := NewGCSStore(context.Background(), Config{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrMissingBucket)
}
