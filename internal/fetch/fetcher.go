// Package fetch downloads release artifacts into an isolated staging
// directory and verifies them before they are allowed anywhere near the
// install location.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedisct1/go-minisign"

	"github.com/beeper-automations/installer/internal/manifest"
	"github.com/beeper-automations/installer/internal/platform"
	"github.com/beeper-automations/installer/internal/release"
)

const defaultDownloadBase = "https://github.com"

// Artifact is a downloaded, verified binary sitting in the staging
// directory. It exists only until it is copied into the install directory;
// any failure discards the whole staging area.
type Artifact struct {
	Name       string // final file name, e.g. auto-beeper-service
	Kind       string // manifest artifact kind
	URL        string
	StagedPath string
}

// Staging is the result of a successful multi-artifact download. Discard is
// safe to call at any time, including after the artifacts were copied out.
type Staging struct {
	Dir       string
	Artifacts []Artifact
}

// Discard removes the staging directory and everything in it.
func (s *Staging) Discard() {
	if s != nil && s.Dir != "" {
		_ = os.RemoveAll(s.Dir)
	}
}

// DownloadError is a failed artifact download; it names the offending URL.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// NotBinaryError means a downloaded payload is textual, typically an HTML
// error page served in place of a missing asset. Rejecting it here prevents
// installing an error document as an executable.
type NotBinaryError struct {
	URL string
}

func (e *NotBinaryError) Error() string {
	return fmt.Sprintf("artifact at %s is not a binary payload", e.URL)
}

// Fetcher downloads artifacts for one release.
type Fetcher struct {
	base          string
	hc            *http.Client
	stagingParent string
	minisignKey   string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithStagingParent places staging directories under dir instead of the
// system temp directory. Used by sandboxed tests.
func WithStagingParent(dir string) Option {
	return func(f *Fetcher) { f.stagingParent = dir }
}

// WithMinisignKey enforces minisign verification of every artifact against
// the given base64-encoded public key. The release must then carry a
// .minisig sidecar per artifact.
func WithMinisignKey(key string) Option {
	return func(f *Fetcher) { f.minisignKey = key }
}

// New returns a Fetcher downloading from the given base URL; an empty base
// selects the default release host.
func New(base string, opts ...Option) *Fetcher {
	if base == "" {
		base = defaultDownloadBase
	}
	f := &Fetcher{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ArtifactURL builds the deterministic download URL for one artifact:
// <base>/<owner>/<repo>/releases/download/<tag>/<name>-<triple>[.exe].
func (f *Fetcher) ArtifactURL(repo manifest.Repo, tag release.Tag, target platform.Target, name string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/%s/%s-%s%s",
		f.base, repo.Owner, repo.Name, tag.Value, name, target.Triple, target.BinSuffix())
}

// Download fetches every artifact in specs into a fresh staging directory.
// Artifacts are verified (binary classification, optional minisign) and made
// executable where the platform requires it. On any failure the staging
// directory is discarded and nothing survives.
func (f *Fetcher) Download(ctx context.Context, repo manifest.Repo, tag release.Tag, target platform.Target, specs []manifest.ArtifactSpec) (*Staging, error) {
	dir, err := os.MkdirTemp(f.stagingParent, "auto-beeper-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	staging := &Staging{Dir: dir}

	for _, spec := range specs {
		art, err := f.downloadOne(ctx, dir, repo, tag, target, spec)
		if err != nil {
			staging.Discard()
			return nil, err
		}
		staging.Artifacts = append(staging.Artifacts, art)
	}
	return staging, nil
}

func (f *Fetcher) downloadOne(ctx context.Context, dir string, repo manifest.Repo, tag release.Tag, target platform.Target, spec manifest.ArtifactSpec) (Artifact, error) {
	url := f.ArtifactURL(repo, tag, target, spec.Name)
	fileName := spec.Name + target.BinSuffix()
	staged := filepath.Join(dir, fileName)

	if err := f.fetchToFile(ctx, url, staged); err != nil {
		return Artifact{}, err
	}

	// #nosec G304 -- staged path is inside our own staging directory
	payload, err := os.ReadFile(staged)
	if err != nil {
		return Artifact{}, fmt.Errorf("read staged artifact: %w", err)
	}
	if !looksLikeBinary(payload) {
		return Artifact{}, &NotBinaryError{URL: url}
	}

	if f.minisignKey != "" {
		if err := f.verifySignature(ctx, url, payload); err != nil {
			return Artifact{}, err
		}
	}

	if target.OS != "windows" {
		// #nosec G302 -- staged service binaries must be executable
		if err := os.Chmod(staged, 0o755); err != nil {
			return Artifact{}, fmt.Errorf("chmod staged artifact: %w", err)
		}
	}

	return Artifact{Name: fileName, Kind: spec.Kind, URL: url, StagedPath: staged}, nil
}

func (f *Fetcher) fetchToFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}

	resp, err := f.hc.Do(req)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	// #nosec G304 -- path is inside our own staging directory
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	return nil
}

// verifySignature downloads the artifact's .minisig sidecar and checks it
// against the pinned key. With a key pinned, a missing sidecar is a failure.
func (f *Fetcher) verifySignature(ctx context.Context, url string, payload []byte) error {
	sigURL := url + ".minisig"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sigURL, nil)
	if err != nil {
		return &DownloadError{URL: sigURL, Err: err}
	}
	resp, err := f.hc.Do(req)
	if err != nil {
		return &DownloadError{URL: sigURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &DownloadError{URL: sigURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	sigBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &DownloadError{URL: sigURL, Err: err}
	}

	pub, err := minisign.NewPublicKey(f.minisignKey)
	if err != nil {
		return fmt.Errorf("parse minisign public key: %w", err)
	}
	sig, err := minisign.DecodeSignature(string(sigBytes))
	if err != nil {
		return fmt.Errorf("parse minisign signature for %s: %w", url, err)
	}
	valid, err := pub.Verify(payload, sig)
	if err != nil {
		return fmt.Errorf("minisign verify %s: %w", url, err)
	}
	if !valid {
		return fmt.Errorf("minisign signature mismatch for %s", url)
	}
	return nil
}

// looksLikeBinary classifies the payload. Release binaries are ELF, Mach-O
// or PE; anything that sniffs as text is an error document.
func looksLikeBinary(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}

	head := payload
	if len(head) > 512 {
		head = head[:512]
	}

	lower := strings.ToLower(strings.TrimSpace(string(head)))
	if strings.HasPrefix(lower, "<html") || strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<?xml") {
		return false
	}

	return !strings.HasPrefix(http.DetectContentType(head), "text/")
}
