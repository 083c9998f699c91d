package scrape

import (
	"context"
	"fmt"

	"github.com/blockedby/tgcrawler/internal/api"
	"github.com/blockedby/tgcrawler/internal/logger"
)

// uploadChunkSize is the backend chunk size for media uploads.
const uploadChunkSize = 512 * 1024

// Uploader pushes downloaded media to the backend in chunks. Chunks already
// stored from an interrupted earlier attempt are skipped, so re-running an
// upload after a crash resumes instead of restarting.
type Uploader struct {
	api *api.Client
	log *logger.Logger
}

func NewUploader(client *api.Client) *Uploader {
	return &Uploader{api: client, log: logger.With("uploader")}
}

// Upload stores data under filename on the media record typ/id and returns
// the path the backend will serve it from.
func (u *Uploader) Upload(ctx context.Context, typ, id, filename string, data []byte) (string, error) {
	total := (len(data) + uploadChunkSize - 1) / uploadChunkSize
	if total == 0 {
		total = 1
	}
	for n := 0; n < total; n++ {
		start := n * uploadChunkSize
		end := start + uploadChunkSize
		if end > len(data) {
			end = len(data)
		}

		exists, err := u.api.ChunkExists(ctx, typ, id, filename, n, uploadChunkSize)
		if err != nil {
			return "", fmt.Errorf("probe chunk %d: %w", n, err)
		}
		if exists {
			continue
		}
		if err := u.api.UploadChunk(ctx, typ, id, filename, n, total, int64(len(data)), data[start:end]); err != nil {
			return "", fmt.Errorf("upload chunk %d of %d: %w", n, total, err)
		}
	}

	u.log.Debug().Str("file", filename).Int("chunks", total).Msg("scrape: media uploaded")
	return filename, nil
}
