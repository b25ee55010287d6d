package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"cutline/internal/adapters/storage/gdrive"
	"cutline/internal/adapters/storage/localfs"
	"cutline/internal/adapters/storage/s3"
	"cutline/internal/config"
)

// NewProvider builds the configured provider. It returns (nil, nil) when no
// provider is configured.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil

	case "localfs":
		if err := os.MkdirAll(cfg.LocalRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		return localfs.New(cfg.LocalRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg.GDrive)

	case "s3":
		return s3.New(s3.Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg config.GDriveConfig) (Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("gdrive requires GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN")
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := conf.Client(context.Background(), tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, cfg.FolderID), nil
}
