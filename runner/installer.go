package runner

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/lattice/model"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const runtimePkgDownloadAttempts = 5

// fetchRuntimePackage downloads the entry's runtime installer package
// into the entry's working directory so that before_install can install
// it. It returns the local path of the downloaded artifact, or the empty
// string when the entry resolves a native runtime and declares no
// package URL. Transient download failures are retried with backoff; the
// installation itself is left to the entry's before_install commands.
func fetchRuntimePackage(ctx context.Context, m *model.Matrix, e model.Entry, destDir string) (string, error) {
	pkgURL := m.RuntimePkgURL(e)
	if pkgURL == "" || e.Python != "" {
		return "", nil
	}

	parsed, err := url.Parse(pkgURL)
	if err != nil {
		return "", errors.Wrapf(err, "parsing runtime package URL '%s'", pkgURL)
	}
	name := filepath.Base(parsed.Path)
	if name == "." || name == "/" {
		name = "runtime.pkg"
	}
	dest := filepath.Join(destDir, name)

	client := utility.GetHTTPClient()
	defer utility.PutHTTPClient(client)

	var size int64
	start := time.Now()
	err = utility.Retry(ctx, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkgURL, nil)
		if err != nil {
			return false, errors.Wrap(err, "building download request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return true, errors.Wrap(err, "requesting runtime package")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Server-side problems are worth retrying; anything else
			// means the URL is wrong and will never resolve.
			canRetry := resp.StatusCode >= http.StatusInternalServerError
			return canRetry, errors.Errorf("runtime package request returned HTTP %d", resp.StatusCode)
		}

		f, err := os.Create(dest)
		if err != nil {
			return false, errors.Wrapf(err, "creating '%s'", dest)
		}
		size, err = io.Copy(f, resp.Body)
		if err != nil {
			grip.Warning(message.WrapError(f.Close(), "closing partial download"))
			return true, errors.Wrap(err, "writing runtime package")
		}
		return false, errors.Wrapf(f.Close(), "closing '%s'", dest)
	}, utility.RetryOptions{
		MaxAttempts: runtimePkgDownloadAttempts,
		MinDelay:    time.Second,
	})
	if err != nil {
		return "", errors.Wrapf(err, "downloading runtime package for entry '%s'", e.DisplayName())
	}

	grip.Info(message.Fields{
		"message":     "downloaded runtime package",
		"entry":       e.DisplayName(),
		"url":         pkgURL,
		"path":        dest,
		"size":        humanize.Bytes(uint64(size)),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return dest, nil
}
