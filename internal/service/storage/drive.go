package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/zhouzirui/z-interview/backend/internal/config"
)

const folderMimeType = "application/vnd.google-apps.folder"

// ErrNoCredentials is returned when neither a credentials file nor inline JSON is configured.
var ErrNoCredentials = errors.New("storage: no service account credentials configured")

// Drive uploads files to a Google Drive folder using a service account.
//
// Credentials are read and the API client is built on the first upload; the
// destination folder is resolved once and cached.
type Drive struct {
	cfg  config.StorageConfig
	opts []option.ClientOption

	initOnce sync.Once
	svc      *drive.Service
	initErr  error

	folderMu sync.Mutex
	folderID string
}

// NewDrive creates a Drive uploader. Extra client options are appended after
// the credential options, which lets tests point the client at a fake endpoint.
func NewDrive(cfg config.StorageConfig, opts ...option.ClientOption) *Drive {
	return &Drive{cfg: cfg, opts: opts, folderID: cfg.FolderID}
}

// Upload implements Uploader.
func (d *Drive) Upload(ctx context.Context, localPath, remoteName string) (string, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return "", err
	}

	folderID, err := d.folder(ctx, svc)
	if err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("storage: open %q: %w", localPath, err)
	}
	defer f.Close()

	if remoteName == "" {
		remoteName = filepath.Base(localPath)
	}

	meta := &drive.File{Name: remoteName}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}

	created, err := svc.Files.Create(meta).
		Media(f, googleapi.ContentType("text/plain")).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("storage: upload %q: %w", remoteName, err)
	}

	if d.cfg.SharePublic {
		perm := &drive.Permission{Type: "anyone", Role: "reader"}
		if _, err := svc.Permissions.Create(created.Id, perm).Context(ctx).Do(); err != nil {
			// 文件已上传，公开分享失败只影响链接的可见范围。
			log.Warn().Str("component", "storage").Err(err).Str("file", created.Id).Msg("failed to set public sharing")
		}
	}

	log.Debug().Str("component", "storage").Str("file", created.Id).Str("name", remoteName).Msg("uploaded")
	return created.WebViewLink, nil
}

func (d *Drive) service(ctx context.Context) (*drive.Service, error) {
	d.initOnce.Do(func() {
		opts, err := d.credentialOptions()
		if err != nil {
			d.initErr = err
			return
		}
		opts = append(opts, d.opts...)

		// 凭证只加载一次，使用不受单次请求取消影响的上下文。
		svc, err := drive.NewService(context.WithoutCancel(ctx), opts...)
		if err != nil {
			d.initErr = fmt.Errorf("storage: create drive service: %w", err)
			return
		}
		d.svc = svc
	})
	return d.svc, d.initErr
}

func (d *Drive) credentialOptions() ([]option.ClientOption, error) {
	scopes := option.WithScopes(drive.DriveFileScope)
	switch {
	case d.cfg.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(d.cfg.CredentialsJSON)), scopes}, nil
	case d.cfg.CredentialsFile != "":
		raw, err := os.ReadFile(d.cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("storage: read credentials: %w", err)
		}
		return []option.ClientOption{option.WithCredentialsJSON(raw), scopes}, nil
	case len(d.opts) > 0:
		// 调用方自行提供了认证方式（例如测试中的 WithoutAuthentication）。
		return nil, nil
	default:
		return nil, ErrNoCredentials
	}
}

// folder returns the configured folder id, or finds or creates a folder named
// cfg.FolderName. An empty result means the drive root.
func (d *Drive) folder(ctx context.Context, svc *drive.Service) (string, error) {
	d.folderMu.Lock()
	defer d.folderMu.Unlock()

	if d.folderID != "" || d.cfg.FolderName == "" {
		return d.folderID, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(d.cfg.FolderName, "'", `\'`), folderMimeType)
	list, err := svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("storage: look up folder %q: %w", d.cfg.FolderName, err)
	}
	if len(list.Files) > 0 {
		d.folderID = list.Files[0].Id
		return d.folderID, nil
	}

	created, err := svc.Files.Create(&drive.File{
		Name:     d.cfg.FolderName,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("storage: create folder %q: %w", d.cfg.FolderName, err)
	}

	log.Info().Str("component", "storage").Str("folder", created.Id).Str("name", d.cfg.FolderName).Msg("created drive folder")
	d.folderID = created.Id
	return d.folderID, nil
}

var _ Uploader = (*Drive)(nil)
