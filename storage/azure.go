package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/teilomillet/researchgpt/rag"
)

// AzureStore reads and writes PDFs in an Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
	logger    rag.Logger
}

// NewAzureStore connects with a storage account connection string and
// ensures the container exists.
func NewAzureStore(ctx context.Context, connectionString, container string) (*AzureStore, error) {
	if connectionString == "" {
		return nil, errors.New("azure connection string is required")
	}
	if container == "" {
		return nil, errors.New("azure container name is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	s := &AzureStore{
		client:    client,
		container: container,
		logger:    rag.GlobalLogger,
	}
	if err := s.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AzureStore) ensureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to ensure container %s: %w", s.container, err)
	}
	s.logger.Info("created container", "container", s.container)
	return nil
}

// Upload puts a local file into the container under its base name.
func (s *AzureStore) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	if _, err := s.client.UploadFile(ctx, s.container, name, f, nil); err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	s.logger.Info("uploaded blob", "container", s.container, "blob", name)
	return nil
}

// Download fetches a blob into dir and returns the local path. An empty
// dir downloads into a temporary directory.
func (s *AzureStore) Download(ctx context.Context, blobName, dir string) (string, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "researchgpt-azure-")
		if err != nil {
			return "", fmt.Errorf("failed to create temp directory: %w", err)
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, filepath.Base(blobName))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := s.client.DownloadFile(ctx, s.container, blobName, f, nil); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to download %s: %w", blobName, err)
	}
	s.logger.Debug("downloaded blob", "blob", blobName, "path", path)
	return path, nil
}

// List returns the names of all PDF blobs in the container.
func (s *AzureStore) List(ctx context.Context) ([]string, error) {
	var names []string
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if strings.EqualFold(filepath.Ext(*item.Name), ".pdf") {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

// Delete removes a blob from the container.
func (s *AzureStore) Delete(ctx context.Context, blobName string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, blobName, nil); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", blobName, err)
	}
	s.logger.Info("deleted blob", "container", s.container, "blob", blobName)
	return nil
}
