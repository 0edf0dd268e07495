// Package resources turns the resource references of a tagger profile into
// local files.
package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"text2phenotype.com/postag/logger"
	"text2phenotype.com/postag/s3client"
	"text2phenotype.com/postag/types"
	"text2phenotype.com/postag/utils"
)

type Resolver interface {
	// Resolve returns the path of a local file holding the resource.
	Resolve(ctx context.Context, resource types.Resource) (string, error)
}

// ObjectDownloader is implemented by *s3client.Client.
type ObjectDownloader interface {
	DownloadFrom(bucket string, key string) ([]byte, error)
}

type Config struct {
	CacheDir string `envconfig:"POSTAG_CACHE_DIR" default:""`
	HubToken string `envconfig:"POSTAG_HF_TOKEN" default:""`
}

// HubCacheDir is where Hugging Face repositories are cached.
func (cfg Config) HubCacheDir() string {
	return filepath.Join(cfg.CacheDir, "hub")
}

// ReadConfig reads the cache directory from the environment, falling back to
// the user cache directory.
func ReadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.CacheDir) == 0 {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.CacheDir = filepath.Join(dir, "postag")
	}
	return cfg, nil
}

// CachingResolver keeps remote and s3 resources in a cache directory and
// reuses them on later calls. Local resources are used in place; hub
// resources are cached by the hub client.
type CachingResolver struct {
	cacheDir   string
	httpClient *http.Client
	objects    ObjectDownloader
	hub        HubDownloader

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Resolver = (*CachingResolver)(nil)

// NewResolver builds a resolver. objects may be nil when no profile uses s3
// resources.
func NewResolver(cacheDir string, objects ObjectDownloader) *CachingResolver {
	return &CachingResolver{
		cacheDir:   cacheDir,
		httpClient: &http.Client{},
		objects:    objects,
		hub:        NewHub(filepath.Join(cacheDir, "hub"), ""),
		locks:      make(map[string]*sync.Mutex),
	}
}

// WithHub replaces the Hugging Face downloader.
func (r *CachingResolver) WithHub(h HubDownloader) *CachingResolver {
	r.hub = h
	return r
}

func (r *CachingResolver) Resolve(ctx context.Context, resource types.Resource) (string, error) {
	switch resource.Kind {
	case types.ResourceLocal, "":
		if _, err := os.Stat(resource.Location); err != nil {
			return "", err
		}
		return resource.Location, nil
	case types.ResourceRemote:
		return r.cached(resource, func(w io.Writer) error {
			return r.fetch(ctx, resource.Location, w)
		})
	case types.ResourceHub:
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if len(resource.Repo) == 0 {
			return "", fmt.Errorf("hub resource %s has no repo", resource.Location)
		}
		resourceLogger := logger.NewLogger("Resources").With().Str("resource", resource.String()).Logger()
		p, err := r.hub.Download(resource.Repo, resource.Location)
		if err != nil {
			resourceLogger.Err(err).Msg("Failed to fetch resource")
			return "", err
		}
		resourceLogger.Debug().Str("path", p).Msg("Resolved hub resource")
		return p, nil
	case types.ResourceS3:
		if r.objects == nil {
			return "", fmt.Errorf("no s3 client configured for %s", resource.Location)
		}
		bucket, key, err := s3client.ParseURI(resource.Location)
		if err != nil {
			return "", err
		}
		return r.cached(resource, func(w io.Writer) error {
			buf, err := r.objects.DownloadFrom(bucket, key)
			if err != nil {
				return err
			}
			_, err = w.Write(buf)
			return err
		})
	default:
		return "", fmt.Errorf("unknown resource kind %q", resource.Kind)
	}
}

// CachePath is where resource is stored once fetched.
func (r *CachingResolver) CachePath(resource types.Resource) string {
	name := strconv.FormatUint(utils.HashString(resource.String()), 16) + "-" + path.Base(resource.Location)
	return filepath.Join(r.cacheDir, name)
}

func (r *CachingResolver) lockFor(target string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[target]
	if !ok {
		l = &sync.Mutex{}
		r.locks[target] = l
	}
	return l
}

func (r *CachingResolver) cached(resource types.Resource, fill func(w io.Writer) error) (string, error) {
	target := r.CachePath(resource)
	l := r.lockFor(target)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	resourceLogger := logger.NewLogger("Resources").With().Str("resource", resource.String()).Logger()
	resourceLogger.Info().Str("path", target).Msg("Fetching resource")

	if err := os.MkdirAll(r.cacheDir, 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(r.cacheDir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		resourceLogger.Err(err).Msg("Failed to fetch resource")
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return target, nil
}

func (r *CachingResolver) fetch(ctx context.Context, location string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", location, resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
