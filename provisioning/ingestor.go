package provisioning

import (
	"context"

	"github.com/mmdatafocus/lacase_backend/formsdk"
)

// Ingestor hands a local document to the forms platform.
type Ingestor struct {
	backend formsdk.Backend
}

func NewIngestor(backend formsdk.Backend) *Ingestor {
	return &Ingestor{backend: backend}
}

// Ingest returns the platform's reference for the uploaded file. The file
// content is not inspected here.
func (i *Ingestor) Ingest(ctx context.Context, localPath string) (string, error) {
	ref, err := i.backend.UploadDocument(ctx, localPath)
	if err != nil {
		return "", &IngestError{Kind: IngestUploadFailed, Path: localPath, Err: err}
	}
	return ref, nil
}
