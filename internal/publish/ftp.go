package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jlaffaye/ftp"

	"fwblock/internal/support"
)

// FTPTarget describes where the export file is uploaded.
type FTPTarget struct {
	Host       string
	User       string
	Password   string
	RemotePath string
	Timeout    time.Duration
	SOCKS5     string
}

var ErrFTPNotConfigured = errors.New("publish: ftp host not configured")

// UploadFTP stores the local file at target.RemotePath.
func UploadFTP(ctx context.Context, target FTPTarget, localPath string) (err error) {
	if target.Host == "" {
		return ErrFTPNotConfigured
	}

	addr := target.Host
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "21")
	}

	remote := target.RemotePath
	if remote == "" {
		remote = filepath.Base(localPath)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer file.Close()

	dialer, err := support.NewDialer(target.SOCKS5, target.Timeout)
	if err != nil {
		return err
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, address)
		}),
	}
	if target.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(target.Timeout))
	}
	if target.SOCKS5 != "" {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	defer func() {
		if quitErr := conn.Quit(); quitErr != nil && err == nil {
			log.Warn("FTP quit failed", "host", addr, "error", quitErr)
		}
	}()

	if err := conn.Login(target.User, target.Password); err != nil {
		return fmt.Errorf("ftp login %s: %w", addr, err)
	}

	if err := conn.Stor(remote, file); err != nil {
		return fmt.Errorf("ftp store %s: %w", remote, err)
	}

	log.Info("Export uploaded", "host", addr, "remote_path", remote)
	return nil
}
