package provider

import (
	"context"
	"iter"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/model"
)

type fakeProvider struct {
	baseURL string
	models  []model.ModelInfo
	calls   int
	err     error
}

func (p *fakeProvider) BaseURL() string                  { return p.baseURL }
func (p *fakeProvider) Authenticate(req *http.Request)   { req.Header.Set("Authorization", "Bearer test") }
func (p *fakeProvider) ListModels(ctx context.Context) iter.Seq2[model.ModelInfo, error] {
	p.calls++
	return func(yield func(model.ModelInfo, error) bool) {
		if p.err != nil {
			yield(model.ModelInfo{}, p.err)
			return
		}
		for _, m := range p.models {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func TestCachedModelList_CachesWithinTTL(t *testing.T) {
	p := &fakeProvider{baseURL: "https://api.example.com", models: []model.ModelInfo{{ID: "m1"}}}
	c := NewCachedModelList(time.Minute)

	got, err := c.List(context.Background(), p, false)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = c.List(context.Background(), p, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, p.calls)
}

func TestCachedModelList_ForceRefreshBypassesCache(t *testing.T) {
	p := &fakeProvider{baseURL: "https://api.example.com", models: []model.ModelInfo{{ID: "m1"}}}
	c := NewCachedModelList(time.Minute)

	_, err := c.List(context.Background(), p, false)
	require.NoError(t, err)
	_, err = c.List(context.Background(), p, true)
	require.NoError(t, err)
	require.Equal(t, 2, p.calls)
}

func TestCachedModelList_ExpiresAfterTTL(t *testing.T) {
	p := &fakeProvider{baseURL: "https://api.example.com", models: []model.ModelInfo{{ID: "m1"}}}
	c := NewCachedModelList(time.Millisecond)

	_, err := c.List(context.Background(), p, false)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.List(context.Background(), p, false)
	require.NoError(t, err)
	require.Equal(t, 2, p.calls)
}

func TestCachedModelList_PropagatesListError(t *testing.T) {
	boom := &fakeProvider{baseURL: "https://api.example.com", err: context.Canceled}
	c := NewCachedModelList(time.Minute)

	_, err := c.List(context.Background(), boom, false)
	require.Error(t, err)
}

func TestCachedModelList_Invalidate(t *testing.T) {
	p := &fakeProvider{baseURL: "https://api.example.com", models: []model.ModelInfo{{ID: "m1"}}}
	c := NewCachedModelList(time.Minute)

	_, err := c.List(context.Background(), p, false)
	require.NoError(t, err)
	c.Invalidate(p)
	_, err = c.List(context.Background(), p, false)
	require.NoError(t, err)
	require.Equal(t, 2, p.calls)
}

func TestCacheKey_DistinctByBaseURL(t *testing.T) {
	a := &fakeProvider{baseURL: "https://a.example.com"}
	b := &fakeProvider{baseURL: "https://b.example.com"}
	require.NotEqual(t, cacheKey(a), cacheKey(b))
}
