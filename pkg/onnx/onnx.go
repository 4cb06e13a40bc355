// Package onnx locates the onnxruntime shared library, downloading the
// official release into ~/.local/lib on first use.
package onnx

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/multierr"
)

var (
	gitURL    = "https://github.com/microsoft/onnxruntime/releases/download/"
	target    = "onnxruntime"
	version   = "1.20.0"
	localPath = os.Getenv("HOME") + `/.local/lib`
)

// LibPath returns the expected path of the shared library for this platform,
// or "" when the platform is unsupported.
func LibPath() string {
	dist, arch, err := determinePlatform()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/%s-%s-%s-%s/lib/lib%s.%s.%s",
		localPath, target, dist, arch, version, target, version, determineExtension(dist))
}

// FetchRuntime downloads and unpacks the runtime unless it is already
// present at LibPath.
func FetchRuntime() error {
	if _, err := os.Stat(LibPath()); err == nil {
		return nil
	}
	if err := downloadRelease(); err != nil {
		return fmt.Errorf("failed to download onnx runtime: %w", err)
	}
	return nil
}

func determinePlatform() (dist, arch string, err error) {
	switch runtime.GOOS {
	case "darwin":
		dist = "osx"
	case "linux":
		dist = "linux"
	default:
		return "", "", fmt.Errorf("OS '%s' is not supported", runtime.GOOS)
	}
	switch runtime.GOARCH {
	case "arm64":
		arch = "arm64"
	case "amd64":
		arch = "x64"
	default:
		return "", "", fmt.Errorf("architecture '%s' is not supported", runtime.GOARCH)
	}
	return dist, arch, nil
}

func determineExtension(dist string) string {
	switch dist {
	case "osx":
		return "dylib"
	case "linux":
		return "so"
	default:
		return ""
	}
}

func downloadRelease() (err error) {
	dist, arch, err := determinePlatform()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(localPath, 0755); err != nil {
		return err
	}
	tgz := filepath.Join(localPath, version+".tgz")
	out, err := os.Create(tgz)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, out.Close(), os.Remove(tgz))
	}()
	url := fmt.Sprintf("%sv%s/%s-%s-%s-%s.tgz", gitURL, version, target, dist, arch, version)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status code %d for %s", resp.StatusCode, url)
	}
	if _, err = io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return unpackArchive(tgz, localPath)
}

func unpackArchive(tgzPath, dst string) (err error) {
	file, err := os.Open(tgzPath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", tgzPath, err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()
	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to read gzip archive: %w", err)
	}
	defer func() {
		err = multierr.Append(err, gzReader.Close())
	}()
	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar archive: %w", err)
		}
		targetPath := filepath.Join(dst, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(targetPath, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		default:
			if err = os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err = writeEntry(targetPath, tarReader); err != nil {
				return err
			}
		}
	}
}

func writeEntry(targetPath string, r io.Reader) (err error) {
	outFile, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, outFile.Close())
	}()
	if _, err = io.Copy(outFile, r); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
