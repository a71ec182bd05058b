package share

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
)

const folderMIMEType = "application/vnd.google-apps.folder"

// Uploader places export files into a named Drive folder.
type Uploader struct {
	service    *drive.Service
	folderName string
	logger     *slog.Logger

	mu       sync.Mutex
	folderID string
}

// NewFromConfig builds an Uploader from the share config. It returns nil when
// Drive sharing is disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Uploader, error) {
	if cfg == nil || !cfg.Share.GDriveEnabled {
		return nil, nil
	}
	client, err := oauthClient(ctx, cfg.Share.CredentialsFile, cfg.Share.TokenFile)
	if err != nil {
		return nil, err
	}
	return NewUploader(ctx, client, cfg.Share.FolderName, logger)
}

// NewUploader creates an Uploader that talks to Drive through client.
// Extra options are passed to the Drive service.
func NewUploader(ctx context.Context, client *http.Client, folderName string, logger *slog.Logger, opts ...option.ClientOption) (*Uploader, error) {
	folderName = strings.TrimSpace(folderName)
	if folderName == "" {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "share", "init", "drive folder name is required", nil)
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Uploader{
		service:    srv,
		folderName: folderName,
		logger:     logging.NewComponentLogger(logger, "share"),
	}, nil
}

func oauthClient(ctx context.Context, credentialsFile, tokenFile string) (*http.Client, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "share", "read credentials", credentialsFile, err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "share", "parse credentials", credentialsFile, err)
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "share", "read token", "authorise Drive access and save the token to "+tokenFile, err)
	}
	return oauthCfg.Client(ctx, tok), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no credentials", path)
	}
	return tok, nil
}

// Upload copies the file at path into the share folder and returns its view
// URL.
func (u *Uploader) Upload(ctx context.Context, path, mimeType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", mediaerr.Wrap(mediaerr.ErrValidation, "share", "open export", "", err)
	}
	defer f.Close()

	folderID, err := u.ensureFolder(ctx)
	if err != nil {
		return "", err
	}

	meta := &drive.File{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Parents:  []string{folderID},
	}
	created, err := u.service.Files.Create(meta).
		Media(f).
		Fields("id, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", mediaerr.Wrap(mediaerr.ErrExternalTool, "share", "upload", filepath.Base(path), err)
	}

	link := created.WebViewLink
	if link == "" {
		link = fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id)
	}
	u.logger.Info("export uploaded to drive",
		logging.String("file", filepath.Base(path)),
		logging.String("drive_id", created.Id),
	)
	return link, nil
}

func (u *Uploader) ensureFolder(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.folderID != "" {
		return u.folderID, nil
	}

	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(u.folderName), folderMIMEType)
	list, err := u.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", mediaerr.Wrap(mediaerr.ErrExternalTool, "share", "find folder", u.folderName, err)
	}
	if len(list.Files) > 0 {
		u.folderID = list.Files[0].Id
		return u.folderID, nil
	}

	folder := &drive.File{Name: u.folderName, MimeType: folderMIMEType}
	created, err := u.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", mediaerr.Wrap(mediaerr.ErrExternalTool, "share", "create folder", u.folderName, err)
	}
	u.folderID = created.Id
	return u.folderID, nil
}

func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}
