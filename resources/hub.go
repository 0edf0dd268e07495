package resources

import (
	"fmt"

	"github.com/gomlx/go-huggingface/hub"
)

// HubDownloader fetches files of Hugging Face repositories.
type HubDownloader interface {
	// Download returns the path of a local copy of file in repo.
	Download(repo string, file string) (string, error)
}

// Hub downloads with the go-huggingface client, which keeps its own cache
// layout under cacheDir.
type Hub struct {
	cacheDir  string
	authToken string
}

var _ HubDownloader = (*Hub)(nil)

func NewHub(cacheDir string, authToken string) *Hub {
	return &Hub{cacheDir: cacheDir, authToken: authToken}
}

func (h *Hub) repo(id string) *hub.Repo {
	repo := hub.New(id).WithCacheDir(h.cacheDir)
	if len(h.authToken) > 0 {
		repo = repo.WithAuth(h.authToken)
	}
	return repo
}

func (h *Hub) Download(repoID string, file string) (string, error) {
	repo := h.repo(repoID)
	if !repo.HasFile(file) {
		return "", fmt.Errorf("%q not found in %s", file, repoID)
	}
	return repo.DownloadFile(file)
}
