package loader

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"

	"veloj/internal/common/storage"
	"veloj/internal/judge/model"
	appErr "veloj/pkg/errors"
	"veloj/pkg/utils/config"
	"veloj/pkg/utils/logger"
)

const (
	manifestName = "manifest.json"
	packSuffix   = ".tar.zst"
	// maxCaseFileSize bounds a single extracted file.
	maxCaseFileSize = 64 << 20
)

// DatapackConfig controls the object-storage test case backend.
type DatapackConfig struct {
	// CacheDir is where unpacked data packs are kept between jobs.
	CacheDir string          `yaml:"cacheDir"`
	CacheTTL config.Duration `yaml:"cacheTTL"`
}

// packManifest is the index file at the root of every data pack.
type packManifest struct {
	Cases []manifestCase `json:"cases"`
}

type manifestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Sample bool   `json:"sample"`
	Weight int    `json:"weight"`
}

// DatapackLoader fetches <problemKey>.tar.zst archives from object storage,
// unpacks them into a local cache directory and serves cases from there
// until the TTL lapses.
type DatapackLoader struct {
	store    storage.ObjectStore
	cacheDir string
	ttl      time.Duration

	mu      sync.Mutex
	fetched map[string]time.Time
}

// NewDatapackLoader prepares the cache directory.
func NewDatapackLoader(store storage.ObjectStore, cfg DatapackConfig) (*DatapackLoader, error) {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "veloj-datapacks")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create datapack cache dir: %w", err)
	}
	ttl := cfg.CacheTTL.Std()
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DatapackLoader{
		store:    store,
		cacheDir: cacheDir,
		ttl:      ttl,
		fetched:  make(map[string]time.Time),
	}, nil
}

func (l *DatapackLoader) SampleTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	cases, err := l.load(ctx, problemKey)
	if err != nil {
		return nil, err
	}
	samples := make([]model.TestCase, 0, len(cases))
	for _, tc := range cases {
		if tc.Sample {
			samples = append(samples, tc)
		}
	}
	return samples, nil
}

func (l *DatapackLoader) HiddenTestCases(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	return l.load(ctx, problemKey)
}

func (l *DatapackLoader) load(ctx context.Context, problemKey string) ([]model.TestCase, error) {
	if strings.ContainsAny(problemKey, "/\\") || problemKey == "" {
		return nil, appErr.Newf(appErr.InvalidParams, "invalid problem key %q", problemKey)
	}

	dir := filepath.Join(l.cacheDir, problemKey)
	l.mu.Lock()
	fresh := time.Since(l.fetched[problemKey]) < l.ttl
	l.mu.Unlock()

	if !fresh {
		found, err := l.fetchPack(ctx, problemKey, dir)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		l.mu.Lock()
		l.fetched[problemKey] = time.Now()
		l.mu.Unlock()
	}

	return readCases(dir)
}

// fetchPack downloads and unpacks one archive. Returns found=false when the
// object does not exist, which callers treat as "no such problem".
func (l *DatapackLoader) fetchPack(ctx context.Context, problemKey, dir string) (bool, error) {
	obj, err := l.store.GetObject(ctx, problemKey+packSuffix)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, appErr.Wrapf(err, appErr.DataPackUnavailable, "fetch data pack for %s: %v", problemKey, err)
	}
	defer obj.Close()

	// Unpack into a sibling temp dir and rename, so a failed download
	// never leaves a half-written pack behind.
	tmp, err := os.MkdirTemp(l.cacheDir, problemKey+"-*")
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DataPackUnavailable, "create unpack dir: %v", err)
	}
	defer os.RemoveAll(tmp)

	if err := extractArchive(obj, tmp); err != nil {
		// A read error on the object stream also lands here; both mean
		// the pack cannot be served right now.
		if isNotFound(err) {
			return false, nil
		}
		return false, appErr.Wrapf(err, appErr.DataPackCorrupted, "unpack data pack for %s: %v", problemKey, err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, appErr.Wrapf(err, appErr.DataPackUnavailable, "clear stale pack dir: %v", err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return false, appErr.Wrapf(err, appErr.DataPackUnavailable, "install data pack: %v", err)
	}
	logger.Infof(ctx, "unpacked data pack for problem %s", problemKey)
	return true, nil
}

func extractArchive(r io.Reader, dest string) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("open zstd stream: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		name := filepath.Clean(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(dest, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			_, err = io.Copy(f, io.LimitReader(tr, maxCaseFileSize))
			closeErr := f.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

// readCases materializes test cases from an unpacked directory per its
// manifest.
func readCases(dir string) ([]model.TestCase, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.Newf(appErr.DataPackCorrupted, "data pack at %s has no %s", dir, manifestName)
		}
		return nil, appErr.Wrapf(err, appErr.DataPackUnavailable, "read manifest: %v", err)
	}

	var manifest packManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, appErr.Wrapf(err, appErr.DataPackCorrupted, "decode manifest: %v", err)
	}

	cases := make([]model.TestCase, 0, len(manifest.Cases))
	for i, mc := range manifest.Cases {
		input, err := readCaseFile(dir, mc.Input)
		if err != nil {
			return nil, err
		}
		expected, err := readCaseFile(dir, mc.Output)
		if err != nil {
			return nil, err
		}
		weight := mc.Weight
		if weight <= 0 {
			weight = 1
		}
		cases = append(cases, model.TestCase{
			Index:    i + 1,
			Input:    input,
			Expected: expected,
			Sample:   mc.Sample,
			Weight:   weight,
		})
	}
	return cases, nil
}

func readCaseFile(dir, name string) (string, error) {
	clean := filepath.Clean(name)
	if clean == "" || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", appErr.Newf(appErr.DataPackCorrupted, "manifest references invalid path %q", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, clean))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DataPackCorrupted, "read case file %s: %v", clean, err)
	}
	return string(data), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
