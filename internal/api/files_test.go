package api

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"owned":[{"_id":"f1","originalName":"notes.txt","size":42,"createdAt":"2026-03-01T10:00:00Z","owner":{"_id":"u1","email":"me@x.test"}}],
			"shared":[{"_id":"f2","originalName":"plan.pdf","size":1024,"createdAt":"2026-03-02T10:00:00Z","owner":{"_id":"u2","email":"other@x.test"}}]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	listing, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Owned, 1)
	require.Len(t, listing.Shared, 1)

	owned := listing.Owned[0]
	assert.Equal(t, "f1", owned.ID)
	assert.Equal(t, "notes.txt", owned.OriginalName)
	assert.Equal(t, int64(42), owned.SizeBytes)
	assert.Equal(t, "u1", owned.OwnerID)
	assert.Equal(t, "me@x.test", owned.OwnerEmail)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), owned.CreatedAt)

	assert.Equal(t, "f2", listing.Shared[0].ID)
	assert.Equal(t, "u2", listing.Shared[0].OwnerID)
}

func TestListFiles_MalformedTimestampYieldsZeroTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"owned":[{"_id":"f1","originalName":"a","size":1,"createdAt":"not-a-date"}],"shared":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	listing, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Owned, 1)
	assert.True(t, listing.Owned[0].CreatedAt.IsZero())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/f1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	var buf bytes.Buffer

	n, err := client.Download(context.Background(), "f1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.Equal(t, "file content here", buf.String())
}

func TestDownload_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"no access"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	var buf bytes.Buffer

	_, err := client.Download(context.Background(), "f1", &buf)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, buf.Len())
}

func TestUpload(t *testing.T) {
	var (
		gotName    string
		gotContent []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/files/upload", r.URL.Path)

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mediaType)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		gotName = header.Filename
		gotContent, err = io.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	content := "hello upload"
	err := client.Upload(context.Background(), "report.txt", strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	assert.Equal(t, "report.txt", gotName)
	assert.Equal(t, content, string(gotContent))
}

func TestUpload_NormalizesName(t *testing.T) {
	var gotName string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotName = header.Filename
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	// NFD "café" (combining acute accent) should be sent in NFC.
	nfd := "café.txt"
	nfc := "café.txt"

	err := client.Upload(context.Background(), nfd, strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, nfc, gotName)
}

func TestUpload_RejectsOversizeWithoutNetworkCall(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.Upload(context.Background(), "big.bin", strings.NewReader(""), MaxUploadBytes+1)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, calls)
}

func TestDelete(t *testing.T) {
	var gotMethod, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.Delete(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/files/f1", gotPath)
}

func TestAdminListFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/files", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"_id":"f9","originalName":"x","size":5,"createdAt":"2026-01-01T00:00:00Z","owner":{"_id":"u9","email":"u9@x.test"}}]`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	records, err := client.AdminListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "f9", records[0].ID)
	assert.Equal(t, "u9@x.test", records[0].OwnerEmail)
}

func TestAdminDelete_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	err := client.AdminDelete(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrForbidden)
}
