// Package download implements leaf's artifact fetch (spec.md §4.3):
// http(s):// and file:// sources, a configurable timeout, retry on
// transient network errors, and a DNS-cached HTTP client so repeated
// fetches against the same remote host don't re-resolve every time.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/dnscache"

	lerr "github.com/leafpkg/leaf/pkg/errors"
)

// DefaultTimeoutSeconds is used when LEAF_TIMEOUT is unset (spec.md §4.3).
const DefaultTimeoutSeconds = 10

// DefaultRetries is the number of extra attempts, after the first one,
// made on transient network errors before giving up (spec.md §4.3: "N=1 by default, more on transient
// network errors" — leaf treats connection-level failures as transient
// and retries them once more than a plain mismatch would).
const DefaultRetries = 1

// resolver caches DNS lookups across downloads so repeated fetches
// against the same remote host skip redundant resolution.
var resolver = &dnscache.Resolver{}

func init() {
	go refreshLoop(resolver)
}

func refreshLoop(r *dnscache.Resolver) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for range t.C {
		r.Refresh(true)
	}
}

func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return d.DialContext(ctx, network, addr)
	}
	ips, err := resolver.LookupHost(ctx, host)
	if err != nil || len(ips) == 0 {
		return d.DialContext(ctx, network, addr)
	}
	var lastErr error
	for _, ip := range ips {
		conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// CachePath builds the download-cache path for an artifact: spec.md
// §4.6's "files/<hashprefix>-<filename>", keyed by the first 8 hex
// characters of the expected hash so two versions sharing a filename
// never collide.
func CachePath(cacheRoot, hashHex, filename string) string {
	prefix := hashHex
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return filepath.Join(cacheRoot, "files", prefix+"-"+filename)
}

// FormatSize renders a byte count for log/progress messages.
func FormatSize(n int64) string {
	return humanize.Bytes(uint64(n))
}

// Timeout reads LEAF_TIMEOUT (seconds), falling back to
// DefaultTimeoutSeconds when unset or malformed.
func Timeout() time.Duration {
	if v := os.Getenv("LEAF_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return DefaultTimeoutSeconds * time.Second
}

func newClient() *http.Client {
	return &http.Client{
		Timeout: Timeout(),
		Transport: &http.Transport{
			DialContext:           dialContext,
			MaxIdleConnsPerHost:   4,
			ResponseHeaderTimeout: Timeout(),
		},
	}
}

// Progress is invoked periodically during a streaming download with the
// number of bytes transferred so far.
type Progress func(transferred int64)

// ToFile downloads src (http://, https:// or file://) to destPath,
// retrying transient failures up to DefaultRetries extra times. A
// partial file from a failed attempt is always removed before retrying
// or returning an error (spec.md §4.3: "a partial file is deleted on
// mismatch and retried").
func ToFile(ctx context.Context, src, destPath string, progress Progress) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= DefaultRetries; attempt++ {
		n, err := attemptDownload(ctx, src, destPath, progress)
		if err == nil {
			return n, nil
		}
		lastErr = err
		os.Remove(destPath)
		if !isTransient(err) {
			break
		}
	}
	return 0, lastErr
}

func attemptDownload(ctx context.Context, src, destPath string, progress Progress) (int64, error) {
	u, err := url.Parse(src)
	if err != nil {
		return 0, lerr.Wrap(lerr.KindInvalidInput, "malformed download URL: "+src, err)
	}

	switch u.Scheme {
	case "file":
		return copyLocalFile(u.Path, destPath, progress)
	case "http", "https":
		return copyRemoteFile(ctx, src, destPath, progress)
	default:
		return 0, lerr.New(lerr.KindInvalidInput, "unsupported download scheme: "+u.Scheme)
	}
}

func copyLocalFile(srcPath, destPath string, progress Progress) (int64, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return 0, lerr.Wrap(lerr.KindIoError, "failed to open source file", err)
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, lerr.Wrap(lerr.KindIoError, "failed to create destination file", err)
	}
	defer out.Close()

	n, err := io.Copy(out, &progressReader{r: in, onProgress: progress})
	if err != nil {
		return 0, lerr.Wrap(lerr.KindIoError, "failed to copy local file", err)
	}
	return n, nil
}

func copyRemoteFile(ctx context.Context, src, destPath string, progress Progress) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, lerr.Wrap(lerr.KindInvalidInput, "failed to build download request", err)
	}

	client := newClient()
	resp, err := client.Do(req)
	if err != nil {
		return 0, retryable{lerr.Wrap(lerr.KindNetworkError, "download request failed", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, lerr.New(lerr.KindNetworkError, fmt.Sprintf("download of %s failed with status %d", src, resp.StatusCode))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, lerr.Wrap(lerr.KindIoError, "failed to create destination file", err)
	}
	defer out.Close()

	n, err := io.Copy(out, &progressReader{r: resp.Body, onProgress: progress})
	if err != nil {
		return 0, retryable{lerr.Wrap(lerr.KindNetworkError, "download stream interrupted after "+humanize.Bytes(uint64(n)), err)}
	}
	return n, nil
}

// retryable marks an error as a transient, connection-level failure
// worth retrying. A non-2xx HTTP response is a deterministic server
// answer, not transient, and is not wrapped as retryable.
type retryable struct{ error }

func (r retryable) Unwrap() error { return r.error }

func isTransient(err error) bool {
	var r retryable
	return errors.As(err, &r)
}

// progressReader wraps an io.Reader, invoking onProgress with the
// running byte count as data is read.
type progressReader struct {
	r          io.Reader
	onProgress Progress
	total      int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.total += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.total)
		}
	}
	return n, err
}
