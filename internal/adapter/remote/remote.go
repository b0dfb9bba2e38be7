// Package remote implements domain.Dialer for the supported backup targets.
package remote

import (
	"fmt"
	"path"
	"strings"

	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// New returns the dialer for cfg.Remote.Protocol. ftpTrace receives the
// FTP control channel when LOGGING_FTP is set and may be nil.
func New(cfg *config.Config, logger Logger, ftpTrace FTPTrace) (domain.Dialer, error) {
	switch cfg.Remote.Protocol {
	case "ftp":
		return NewFTP(cfg.Remote, logger, ftpTrace), nil
	case "s3":
		return NewS3(cfg.Remote, cfg.S3, logger), nil
	case "gdrive":
		return NewGDrive(cfg.Remote, cfg.GDrive, logger), nil
	case "local":
		return NewLocal(cfg.Remote), nil
	default:
		return nil, fmt.Errorf("unsupported remote protocol: %s", cfg.Remote.Protocol)
	}
}

// joinRoot places a session-relative path under the remote root.
func joinRoot(root, p string) string {
	return path.Join("/", root, p)
}

// keyPrefix turns a remote root into an object key prefix ("" or "a/b/").
func keyPrefix(root string) string {
	trimmed := strings.Trim(root, "/")
	if trimmed == "" {
		return ""
	}
	return trimmed + "/"
}
