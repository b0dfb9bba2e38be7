package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
)

const folderMimeType = "application/vnd.google-apps.folder"

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// GDriveDialer stores backups under the GDRIVE_FOLDER_ID folder. Directory
// paths are resolved by name one level at a time.
type GDriveDialer struct {
	cfg    config.GDriveConfig
	logger Logger

	// clientOptions is replaced in tests.
	clientOptions func(ctx context.Context) ([]option.ClientOption, error)
}

func NewGDrive(_ config.RemoteConfig, cfg config.GDriveConfig, logger Logger) *GDriveDialer {
	d := &GDriveDialer{cfg: cfg, logger: logger}
	d.clientOptions = d.credentials
	return d
}

func (d *GDriveDialer) credentials(ctx context.Context) ([]option.ClientOption, error) {
	if d.cfg.CredentialsFile != "" {
		return []option.ClientOption{
			option.WithCredentialsFile(d.cfg.CredentialsFile),
			option.WithScopes(drive.DriveFileScope),
		}, nil
	}

	b, err := os.ReadFile(d.cfg.ClientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: d.cfg.RefreshToken})
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

func (d *GDriveDialer) Connect(ctx context.Context) (domain.Session, error) {
	opts, err := d.clientOptions(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "drive credentials", "", err)
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "drive service", "", err)
	}

	d.logger.Debugf("Checking access to drive folder %s", d.cfg.FolderID)
	root, err := service.Files.Get(d.cfg.FolderID).
		Fields("id, mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "get folder "+d.cfg.FolderID, "", err)
	}
	if root.MimeType != folderMimeType {
		return nil, domain.Wrap(domain.ErrConnection, "get folder "+d.cfg.FolderID, "",
			fmt.Errorf("not a folder: %s", root.MimeType))
	}

	return &gdriveSession{service: service, rootID: root.Id}, nil
}

type gdriveSession struct {
	service *drive.Service
	rootID  string
}

func (g *gdriveSession) children(ctx context.Context, query string, fn func(*drive.File)) error {
	return g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, mimeType)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				fn(f)
			}
			return nil
		})
}

func (g *gdriveSession) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", queryEscaper.Replace(g.rootID))

	var entries []domain.RemoteEntry
	err := g.children(ctx, query, func(f *drive.File) {
		kind := domain.EntryFile
		if f.MimeType == folderMimeType {
			kind = domain.EntryDir
		}
		entries = append(entries, domain.RemoteEntry{Name: f.Name, Kind: kind})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return entries, nil
}

// folders returns the ids of every folder called name directly under parent.
// Drive permits duplicate names.
func (g *gdriveSession) folders(ctx context.Context, parent, name string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		queryEscaper.Replace(parent), queryEscaper.Replace(name), folderMimeType)

	var ids []string
	err := g.children(ctx, query, func(f *drive.File) {
		ids = append(ids, f.Id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find folder %s: %w", name, err)
	}
	return ids, nil
}

// resolve walks p from the root folder. With create set, missing folders
// are created; otherwise a missing component is an error.
func (g *gdriveSession) resolve(ctx context.Context, p string, create bool) (string, error) {
	current := g.rootID
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" || part == "." {
			continue
		}
		ids, err := g.folders(ctx, current, part)
		if err != nil {
			return "", err
		}
		if len(ids) > 0 {
			current = ids[0]
			continue
		}
		if !create {
			return "", fmt.Errorf("folder not found: %s", p)
		}
		created, err := g.service.Files.Create(&drive.File{
			Name:     part,
			MimeType: folderMimeType,
			Parents:  []string{current},
		}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder %s: %w", part, err)
		}
		current = created.Id
	}
	return current, nil
}

func (g *gdriveSession) EnsureDir(ctx context.Context, p string) error {
	_, err := g.resolve(ctx, p, true)
	return err
}

func (g *gdriveSession) RemoveDirRecursive(ctx context.Context, p string) error {
	parent, err := g.resolve(ctx, path.Dir(strings.Trim(p, "/")), false)
	if err != nil {
		return err
	}
	ids, err := g.folders(ctx, parent, path.Base(p))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("folder not found: %s", p)
	}

	for _, id := range ids {
		if err := g.service.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", p, err)
		}
	}
	return nil
}

func (g *gdriveSession) Upload(ctx context.Context, localPath, remotePath string) error {
	parent, err := g.resolve(ctx, path.Dir(strings.Trim(remotePath, "/")), false)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = g.service.Files.Create(&drive.File{
		Name:    path.Base(remotePath),
		Parents: []string{parent},
	}).Media(file).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

func (g *gdriveSession) Close() error {
	return nil
}
