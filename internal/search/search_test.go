package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
	"github.com/Skotchmaster/pharmacy_shop/pkg/pagination"
)

type fakeES struct {
	mu       sync.Mutex
	requests []string
	bodies   []map[string]any
}

func newFakeES(t *testing.T) (*httptest.Server, *fakeES) {
	t.Helper()
	f := &fakeES{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/":
			_, _ = w.Write([]byte(`{"version":{"number":"9.0.0"}}`))
		case r.URL.Path == "/medicines/_search":
			_, _ = w.Write([]byte(`{"hits":{"total":{"value":13},"hits":[
				{"_id":"m1","_source":{"name":"Napa","genericName":"Paracetamol","price":5,"stock":3}},
				{"_id":"m2","_source":{"name":"Napa Extra","price":7.5,"stock":0}}
			]}}`))
		case r.URL.Path == "/medicines/_doc/gone":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"result":"not_found"}`))
		default:
			_, _ = w.Write([]byte(`{"result":"ok"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, f
}

func newIndex(t *testing.T) (*Index, *fakeES) {
	t.Helper()
	srv, f := newFakeES(t)
	es, err := NewClient(context.Background(), Config{URL: srv.URL}, logging.Discard())
	require.NoError(t, err)
	return New(es, "medicines"), f
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	ix, f := newIndex(t)
	res, err := ix.Search(context.Background(), " napa ", pagination.New(2, 5))
	require.NoError(t, err)

	assert.Equal(t, int64(13), res.Total)
	assert.Equal(t, 3, res.Pages)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "m1", res.Items[0].ID)
	assert.Equal(t, "Paracetamol", res.Items[0].GenericName)

	f.mu.Lock()
	defer f.mu.Unlock()
	last := f.bodies[len(f.bodies)-1]
	assert.EqualValues(t, 5, last["from"])
	assert.EqualValues(t, 5, last["size"])
	mm := last["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "napa", mm["query"])
}

func TestIndex_SearchRejects(t *testing.T) {
	t.Parallel()

	ix, _ := newIndex(t)
	_, err := ix.Search(context.Background(), "   ", pagination.New(1, 10))
	assert.ErrorIs(t, err, ErrEmptyQuery)

	var disabled *Index
	assert.False(t, disabled.Enabled())
	_, err = disabled.Search(context.Background(), "napa", pagination.New(1, 10))
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, disabled.Put(context.Background(), backend.Medicine{ID: "m1"}))
	assert.NoError(t, New(nil, "x").Remove(context.Background(), "m1"))
}

func TestIndex_PutAndRemove(t *testing.T) {
	t.Parallel()

	ix, f := newIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.Put(ctx, backend.Medicine{ID: "m9", Name: "Seclo", Price: 6}))
	require.NoError(t, ix.Remove(ctx, "m9"))
	require.NoError(t, ix.Remove(ctx, "gone"))
	assert.Error(t, ix.Put(ctx, backend.Medicine{Name: "no id"}))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Contains(t, f.requests, "PUT /medicines/_doc/m9")
	assert.Contains(t, f.requests, "DELETE /medicines/_doc/m9")
	for _, b := range f.bodies {
		_, hasID := b["_id"]
		assert.False(t, hasID, "_id must not be in the document body")
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), Config{URL: "http://127.0.0.1:1"}, logging.Discard())
	assert.Error(t, err)
}
