package tier

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/blob"
	"github.com/gftdcojp/logvault/internal/types"
)

// SegmentOpener resolves segments across the local segments directory and
// object storage: local wins, demoted segments stream from the blob store.
type SegmentOpener struct {
	Ctx   context.Context
	Store *blob.Store
}

var _ archive.SegmentOpener = (*SegmentOpener)(nil)

func (o *SegmentOpener) OpenSegment(archivePath string, id types.SegmentID) (io.ReadCloser, error) {
	rc, err := (archive.LocalSegmentOpener{}).OpenSegment(archivePath, id)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, os.ErrNotExist) || o.Store == nil {
		return nil, err
	}
	ctx := o.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return o.Store.OpenSegment(ctx, filepath.Base(archivePath), id)
}
