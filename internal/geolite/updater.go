package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"fwblock/internal/enrich"
	"fwblock/internal/storage"
)

const (
	MaxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	userAgent          = "fwblock-geolite-updater/1.0"
)

var (
	updateGroup       singleflight.Group
	defaultHTTPClient = &http.Client{Timeout: 2 * time.Minute}
)

var (
	// ErrNoAPIKey indicates that the MaxMind license key has not been configured.
	ErrNoAPIKey = errors.New("geolite: license key is not configured")
)

type downloadTarget struct {
	editionID string
	filename  string
}

var downloadTargets = []downloadTarget{
	{editionID: "GeoLite2-ASN", filename: enrich.GeoLiteASNFileName},
	{editionID: "GeoLite2-Country", filename: enrich.GeoLiteCountryFileName},
}

// Updater downloads the GeoLite editions the offline lookup reads.
type Updater struct {
	APIKey  string
	Dir     string
	BaseURL string
	Client  *http.Client
}

// Update downloads every edition into Dir. Concurrent calls for the same
// directory share one download.
func (u *Updater) Update(ctx context.Context) error {
	apiKey := strings.TrimSpace(u.APIKey)
	if apiKey == "" {
		return ErrNoAPIKey
	}

	_, err, _ := updateGroup.Do(u.Dir, func() (interface{}, error) {
		for _, target := range downloadTargets {
			if err := u.downloadEdition(ctx, apiKey, target); err != nil {
				return nil, err
			}
			log.Info("GeoLite edition updated", "edition", target.editionID, "dir", u.Dir)
		}
		return nil, nil
	})
	return err
}

func (u *Updater) downloadEdition(ctx context.Context, apiKey string, target downloadTarget) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.buildDownloadURL(apiKey, target.editionID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := u.Client
	if client == nil {
		client = defaultHTTPClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", target.editionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", target.editionID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", target.editionID, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", target.editionID, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != target.filename {
			continue
		}

		destPath := filepath.Join(u.Dir, target.filename)
		if err := storage.WriteAtomic(destPath, tarReader, 0o644); err != nil {
			return fmt.Errorf("%s: write file: %w", target.editionID, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", target.editionID)
}

func (u *Updater) buildDownloadURL(apiKey, edition string) string {
	base := u.BaseURL
	if base == "" {
		base = MaxMindDownloadURL
	}
	q := url.Values{}
	q.Set("edition_id", edition)
	q.Set("license_key", apiKey)
	q.Set("suffix", "tar.gz")
	return base + "?" + q.Encode()
}
