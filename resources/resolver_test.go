package resources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/postag/types"
)

type fakeObjects struct {
	objects map[string][]byte
	calls   int32
}

func (f *fakeObjects) DownloadFrom(bucket string, key string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	buf, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return buf, nil
}

type fakeHub struct {
	files map[string]string
	calls []string
}

func (f *fakeHub) Download(repo string, file string) (string, error) {
	f.calls = append(f.calls, repo+"/"+file)
	p, ok := f.files[repo+"/"+file]
	if !ok {
		return "", errors.New("no such file")
	}
	return p, nil
}

func TestResolveLocal(t *testing.T) {
	file := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(file, []byte("[PAD]"), 0644))
	r := NewResolver(t.TempDir(), nil)

	p, err := r.Resolve(context.Background(), types.Resource{Kind: types.ResourceLocal, Location: file})
	require.NoError(t, err)
	assert.Equal(t, file, p)

	_, err = r.Resolve(context.Background(), types.Resource{Kind: types.ResourceLocal, Location: file + ".missing"})
	assert.Error(t, err)
}

func TestResolveRemote(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/vocab.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("[PAD]\n[UNK]\n"))
	}))
	defer srv.Close()

	r := NewResolver(t.TempDir(), nil)
	resource := types.Resource{Kind: types.ResourceRemote, Location: srv.URL + "/vocab.txt"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.Resolve(context.Background(), resource)
			assert.NoError(t, err)
			assert.Equal(t, r.CachePath(resource), p)
		}()
	}
	wg.Wait()

	buf, err := os.ReadFile(r.CachePath(resource))
	require.NoError(t, err)
	assert.Equal(t, "[PAD]\n[UNK]\n", string(buf))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = r.Resolve(context.Background(), types.Resource{Kind: types.ResourceRemote, Location: srv.URL + "/missing.txt"})
	assert.Error(t, err)
	_, statErr := os.Stat(r.CachePath(types.Resource{Kind: types.ResourceRemote, Location: srv.URL + "/missing.txt"}))
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveS3(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{"models/pos/config.json": []byte(`{"id2label":{"0":"NOUN"}}`)}}
	r := NewResolver(t.TempDir(), objects)
	resource := types.Resource{Kind: types.ResourceS3, Location: "s3://models/pos/config.json"}

	for i := 0; i < 2; i++ {
		p, err := r.Resolve(context.Background(), resource)
		require.NoError(t, err)
		buf, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, `{"id2label":{"0":"NOUN"}}`, string(buf))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&objects.calls))

	_, err := r.Resolve(context.Background(), types.Resource{Kind: types.ResourceS3, Location: "s3://models/missing"})
	assert.Error(t, err)

	_, err = NewResolver(t.TempDir(), nil).Resolve(context.Background(), resource)
	assert.Error(t, err)
}

func TestResolveHub(t *testing.T) {
	hub := &fakeHub{files: map[string]string{"mrm8488/mobilebert-finetuned-pos/vocab.txt": "/cache/hub/vocab.txt"}}
	r := NewResolver(t.TempDir(), nil).WithHub(hub)
	vocab := types.Resource{Kind: types.ResourceHub, Repo: "mrm8488/mobilebert-finetuned-pos", Location: "vocab.txt"}

	p, err := r.Resolve(context.Background(), vocab)
	require.NoError(t, err)
	assert.Equal(t, "/cache/hub/vocab.txt", p)
	assert.Equal(t, []string{"mrm8488/mobilebert-finetuned-pos/vocab.txt"}, hub.calls)

	_, err = r.Resolve(context.Background(), types.Resource{Kind: types.ResourceHub, Repo: "mrm8488/mobilebert-finetuned-pos", Location: "missing.json"})
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), types.Resource{Kind: types.ResourceHub, Location: "vocab.txt"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Resolve(ctx, vocab)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, hub.calls, 2)
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := NewResolver(t.TempDir(), nil).Resolve(context.Background(), types.Resource{Kind: "ftp", Location: "ftp://x"})
	assert.Error(t, err)
}

func TestReadConfig(t *testing.T) {
	t.Setenv("POSTAG_CACHE_DIR", "/tmp/postag-cache")
	t.Setenv("POSTAG_HF_TOKEN", "hf_secret")
	cfg, err := ReadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/postag-cache", cfg.CacheDir)
	assert.Equal(t, "hf_secret", cfg.HubToken)
	assert.Equal(t, filepath.Join("/tmp/postag-cache", "hub"), cfg.HubCacheDir())
}
