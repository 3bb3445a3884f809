package provisioning

import (
	"context"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/mmdatafocus/lacase_backend/utils"
)

// Archiver keeps a copy of every fetched document. Archive failures never fail a route.
type Archiver interface {
	Archive(ctx context.Context, localPath, objectName string) error
}

type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{client: client, bucket: bucket, prefix: "la"}
}

func (a *GCSArchiver) Archive(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return utils.UploadFileToGCS(ctx, a.client, a.bucket, path.Join(a.prefix, strings.TrimLeft(objectName, "/")), f)
}
