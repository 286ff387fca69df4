package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mymmrac/telego"

	"github.com/synchearts/relay/internal/config"
)

const (
	downloadMaxRetries = 3
	maxPhotoBytes      = 10 << 20
	profilePhotoWidth  = 640
)

// archiveProfilePhoto downloads an operator-uploaded agent photo and stores
// a normalized JPEG copy for the selection web app to serve. Failures only
// lose the local copy; the Telegram file id on the bus still works.
func (c *Channel) archiveProfilePhoto(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	src, err := c.downloadMedia(ctx, fileID, maxPhotoBytes)
	if err != nil {
		slog.Warn("profile photo download failed", "file_id", fileID, "error", err)
		return
	}
	defer os.Remove(src)

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		slog.Warn("profile photo decode failed", "file_id", fileID, "error", err)
		return
	}
	img = imaging.Resize(img, profilePhotoWidth, 0, imaging.Lanczos)

	dir := config.ExpandHome("~/.relay/media")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("media dir create failed", "dir", dir, "error", err)
		return
	}
	dst := filepath.Join(dir, fileID+".jpg")
	if err := imaging.Save(img, dst, imaging.JPEGQuality(85)); err != nil {
		slog.Warn("profile photo save failed", "path", dst, "error", err)
		return
	}
	slog.Info("profile photo archived", "path", dst)
}

// downloadMedia downloads a file from Telegram by file_id with retries.
// Returns the local temp file path; the caller removes it.
func (c *Channel) downloadMedia(ctx context.Context, fileID string, maxBytes int64) (string, error) {
	var file *telego.File
	var err error

	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("get file info after %d attempts: %w", downloadMaxRetries, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxBytes {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.config.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	ext := filepath.Ext(file.FilePath)
	if ext == "" {
		ext = ".bin"
	}
	tmp, err := os.CreateTemp("", "relay-media-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := tmp.ReadFrom(resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return tmp.Name(), nil
}
