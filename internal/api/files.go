package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"golang.org/x/text/unicode/norm"
)

// MaxUploadBytes is the client-side upload cap. The server enforces the
// same limit; checking here avoids shipping a body that will be rejected.
const MaxUploadBytes = 100 * 1024 * 1024

// ErrFileTooLarge is returned by Upload before any network traffic when
// the file exceeds MaxUploadBytes.
var ErrFileTooLarge = fmt.Errorf("api: file exceeds %d byte upload limit", MaxUploadBytes)

// ListFiles fetches the caller's file listing: owned files and files
// shared with the caller, in server-assigned order.
func (c *Client) ListFiles(ctx context.Context) (*FileListing, error) {
	c.logger.Debug("listing files")

	var resp listFilesResponse
	if err := c.getJSON(ctx, "/files", &resp); err != nil {
		return nil, err
	}

	listing := &FileListing{
		Owned:  make([]FileRecord, 0, len(resp.Owned)),
		Shared: make([]FileRecord, 0, len(resp.Shared)),
	}

	for i := range resp.Owned {
		listing.Owned = append(listing.Owned, resp.Owned[i].toFileRecord(c.logger))
	}

	for i := range resp.Shared {
		listing.Shared = append(listing.Shared, resp.Shared[i].toFileRecord(c.logger))
	}

	c.logger.Debug("listed files",
		slog.Int("owned", len(listing.Owned)),
		slog.Int("shared", len(listing.Shared)),
	)

	return listing, nil
}

// Download streams the file's content into w. Returns the number of bytes
// written.
func (c *Client) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	c.logger.Info("downloading file", slog.String("file_id", fileID))

	resp, err := c.Do(ctx, http.MethodGet, "/files/"+fileID, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("api: downloading file %s: %w", fileID, err)
	}

	return n, nil
}

// Upload sends a file as multipart/form-data under the "file" form field.
// The name is NFC-normalized before transmission so the server sees one
// canonical spelling regardless of the local filesystem's encoding. size
// must be the exact content length; uploads over MaxUploadBytes are
// refused without any network traffic.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	if size > MaxUploadBytes {
		return ErrFileTooLarge
	}

	name = norm.NFC.String(name)

	c.logger.Info("uploading file",
		slog.String("name", name),
		slog.Int64("size", size),
	)

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("api: creating multipart body: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("api: reading upload content: %w", err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("api: finalizing multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/files/upload", buf.Bytes(), mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("upload complete", slog.String("name", name))

	return nil
}

// Delete removes an owned file. Non-owners get ErrForbidden.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	c.logger.Info("deleting file", slog.String("file_id", fileID))

	return c.delete(ctx, "/files/"+fileID)
}

// AdminListFiles enumerates every file on the server. Requires an admin
// session; everyone else gets ErrForbidden.
func (c *Client) AdminListFiles(ctx context.Context) ([]FileRecord, error) {
	c.logger.Debug("listing all files (admin)")

	var resp []fileResponse
	if err := c.getJSON(ctx, "/admin/files", &resp); err != nil {
		return nil, err
	}

	records := make([]FileRecord, 0, len(resp))
	for i := range resp {
		records = append(records, resp[i].toFileRecord(c.logger))
	}

	return records, nil
}

// AdminDelete removes any file regardless of owner. Requires an admin
// session.
func (c *Client) AdminDelete(ctx context.Context, fileID string) error {
	c.logger.Info("deleting file (admin)", slog.String("file_id", fileID))

	return c.delete(ctx, "/admin/files/"+fileID)
}
