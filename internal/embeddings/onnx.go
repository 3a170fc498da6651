package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultONNXRuntimeVersion matches the onnxruntime_go version fastembed-go
// is built against.
const DefaultONNXRuntimeVersion = "1.23.0"

const onnxReleaseBaseURL = "https://github.com/microsoft/onnxruntime/releases/download"

// ErrUnsupportedPlatform indicates the current OS/arch has no ONNX release.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var platformArchives = map[string]map[string]string{
	"linux": {
		"amd64": "linux-x64",
		"arm64": "linux-aarch64",
	},
	"darwin": {
		"amd64": "osx-x86_64",
		"arm64": "osx-arm64",
	},
}

var libraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

// RuntimeInstaller locates or downloads the ONNX runtime shared library
// FastEmbed needs. The library lives in Dir unless ONNX_PATH is set.
type RuntimeInstaller struct {
	Version    string
	Dir        string
	BaseURL    string
	GOOS       string
	GOARCH     string
	HTTPClient *http.Client
}

// NewRuntimeInstaller returns an installer for the current platform that
// manages ~/.config/agentkb/lib.
func NewRuntimeInstaller() *RuntimeInstaller {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &RuntimeInstaller{
		Version:    DefaultONNXRuntimeVersion,
		Dir:        filepath.Join(home, ".config", "agentkb", "lib"),
		BaseURL:    onnxReleaseBaseURL,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		HTTPClient: http.DefaultClient,
	}
}

func (r *RuntimeInstaller) libraryName() string {
	if name, ok := libraryNames[r.GOOS]; ok {
		return name
	}
	return "libonnxruntime.so"
}

func (r *RuntimeInstaller) archive() (string, error) {
	if arch, ok := platformArchives[r.GOOS][r.GOARCH]; ok {
		return arch, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, r.GOOS, r.GOARCH)
}

// LibraryPath returns ONNX_PATH when set, otherwise the managed library if
// it has been installed, otherwise "".
func (r *RuntimeInstaller) LibraryPath() string {
	if envPath := os.Getenv("ONNX_PATH"); envPath != "" {
		return envPath
	}
	managed := filepath.Join(r.Dir, r.libraryName())
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// DownloadURL returns the release tarball URL for the installer's platform.
func (r *RuntimeInstaller) DownloadURL() (string, error) {
	platform, err := r.archive()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/v%s/onnxruntime-%s-%s.tgz", r.BaseURL, r.Version, platform, r.Version), nil
}

// Install downloads the runtime into Dir unless it is already available,
// and returns the library path.
func (r *RuntimeInstaller) Install(ctx context.Context) (string, error) {
	if path := r.LibraryPath(); path != "" {
		return path, nil
	}

	url, err := r.DownloadURL()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Dir, 0700); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading ONNX runtime: status %d", resp.StatusCode)
	}

	platform, _ := r.archive()
	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, r.Version)
	if err := r.extract(resp.Body, prefix); err != nil {
		return "", fmt.Errorf("extracting archive: %w", err)
	}

	path := filepath.Join(r.Dir, r.libraryName())
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("library %s not found after install", r.libraryName())
	}
	return path, nil
}

// extract copies regular files and symlinks below prefix into Dir.
func (r *RuntimeInstaller) extract(src io.Reader, prefix string) error {
	gzr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, prefix) || header.Typeflag == tar.TypeDir {
			continue
		}
		dest := filepath.Join(r.Dir, filepath.Base(name))

		switch header.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(filepath.Base(header.Linkname), dest); err != nil {
				return fmt.Errorf("linking %s: %w", dest, err)
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(dest string, src io.Reader) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("writing file %s: %w", dest, err)
	}
	return out.Close()
}
