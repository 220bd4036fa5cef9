package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// ErrAssetNotFound is returned when a stored document no longer exists.
var ErrAssetNotFound = errors.New("cloudinary asset not found")

// Service stores submission documents as raw Cloudinary assets. The public id
// returned by Upload is the file id persisted on submissions.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New builds a client that always delivers over https.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	var missing []string
	for name, value := range map[string]string{
		"cloud name": cfg.CloudName,
		"api key":    cfg.APIKey,
		"api secret": cfg.APISecret,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("cloudinary: missing %s", strings.Join(missing, ", "))
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload sends the document to Cloudinary and returns its public id.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     buildPublicID(name),
		ResourceType: string(api.File),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("file uploaded to cloudinary")

	return result.PublicID, nil
}

// Remove destroys a stored document. Missing assets are not an error.
func (s *Service) Remove(ctx context.Context, fileID string) error {
	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     fileID,
		ResourceType: string(api.File),
	})
	if err != nil {
		return fmt.Errorf("failed to remove asset %s: %w", fileID, err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to remove asset %s: %s", fileID, result.Error.Message)
	}

	s.logger.Info().Str("public_id", fileID).Str("result", result.Result).Msg("file removed from cloudinary")
	return nil
}

// ResolveFile returns the delivery URL and metadata of a stored document.
func (s *Service) ResolveFile(ctx context.Context, fileID string) (string, map[string]interface{}, error) {
	asset, err := s.client.Admin.Asset(ctx, admin.AssetParams{
		AssetType: api.File,
		PublicID:  fileID,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve asset %s: %w", fileID, err)
	}
	if asset.Error.Message != "" {
		if strings.Contains(strings.ToLower(asset.Error.Message), "not found") {
			return "", nil, fmt.Errorf("%w: %s", ErrAssetNotFound, fileID)
		}
		return "", nil, fmt.Errorf("failed to resolve asset %s: %s", fileID, asset.Error.Message)
	}

	metadata := map[string]interface{}{
		"bytes":         asset.Bytes,
		"format":        asset.Format,
		"resource_type": asset.ResourceType,
		"created_at":    asset.CreatedAt,
	}
	return asset.SecureURL, metadata, nil
}

// buildPublicID slugs the file name and keeps the lowercased extension,
// since raw assets are served by public id.
func buildPublicID(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext)

	var slug strings.Builder
	dash := false
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			slug.WriteRune(r)
			dash = false
			continue
		}
		if !dash && slug.Len() > 0 {
			slug.WriteByte('-')
			dash = true
		}
	}

	stem := strings.TrimSuffix(slug.String(), "-")
	if stem == "" {
		stem = "document"
	}
	return stem + "-" + uuid.NewString()[:8] + strings.ToLower(ext)
}
