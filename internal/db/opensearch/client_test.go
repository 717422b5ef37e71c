package opensearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dualstore/internal/domain/record"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(Config{URL: url + "/", Index: "athlete", Username: "elastic", Password: "secret"})
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return c
}

func TestClientSingleInsertUsesCreateWithRefresh(t *testing.T) {
	fc, srv := newFakeCluster(t, "athlete")
	c := newTestClient(t, srv.URL)

	resp, err := c.Insert(context.Background(), []record.Document{{"Athlete_ID": 1}})
	require.NoError(t, err)
	assert.Nil(t, resp.Took)

	req := fc.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/athlete/_create/id-1", req.Path)
	assert.Equal(t, "refresh=true", req.Query)
}

func TestClientBatchInsertIsOneBulkCall(t *testing.T) {
	fc, srv := newFakeCluster(t, "athlete")
	c := newTestClient(t, srv.URL)

	docs := []record.Document{{"Athlete_ID": 1}, {"Athlete_ID": 2}, {"Athlete_ID": 3}}
	resp, err := c.Insert(context.Background(), docs)
	require.NoError(t, err)
	require.NotNil(t, resp.Took)
	assert.Equal(t, int64(7), *resp.Took)
	assert.Equal(t, 3, resp.Items)

	reqs := fc.reqs()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "/_bulk", req.Path)
	assert.Equal(t, "refresh=true", req.Query)
	assert.Equal(t, 6, strings.Count(req.Body, "\n"))
	assert.Contains(t, req.Body, `"create":{"_id":"id-3","_index":"athlete"}`)
}

func TestClientBulkErrorsAreReported(t *testing.T) {
	srv := newJSONServer(t, http.StatusOK, `{"took":2,"errors":true,"items":[
		{"create":{"status":201}},
		{"create":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [Athlete_ID]"}}}
	]}`)
	c := newTestClient(t, srv.URL)

	_, err := c.Insert(context.Background(), []record.Document{{"Athlete_ID": 1}, {"Athlete_ID": "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 items failed")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestClientByQueryCardinality(t *testing.T) {
	fc, srv := newFakeCluster(t, "athlete")
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.DeleteByQuery(ctx, matchAll(), record.One)
	require.NoError(t, err)
	assert.Equal(t, "max_docs=1&refresh=true", fc.last().Query)

	_, err = c.UpdateByQuery(ctx, matchAll(), Script{Source: "ctx._source[params.k0] = params.v0", Lang: "painless"}, record.Many)
	require.NoError(t, err)
	assert.Equal(t, "refresh=true", fc.last().Query)

	n := len(fc.reqs())
	_, err = c.DeleteByQuery(ctx, matchAll(), record.Cardinality("every"))
	assert.ErrorIs(t, err, record.ErrInvalidArgument)
	assert.Len(t, fc.reqs(), n)
}

func TestClientSearchMissingIndexIsEmpty(t *testing.T) {
	fc, srv := newFakeCluster(t, "athlete")
	fc.exists = false
	c := newTestClient(t, srv.URL)

	resp, err := c.Search(context.Background(), matchAll())
	require.NoError(t, err)
	assert.Empty(t, Documents(resp))

	n, err := c.Count(context.Background(), matchAll())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClientSearchSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := newHandlerServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"took":9,"hits":{"hits":[{"_id":"1","_source":{"Athlete_ID":1}}]}}`)
	})
	c := newTestClient(t, srv.URL)

	resp, err := c.Search(context.Background(), matchAll())
	require.NoError(t, err)
	assert.Equal(t, int64(9), resp.Took)
	assert.Len(t, resp.Hits.Hits, 1)
	assert.True(t, gotOK)
	assert.Equal(t, "elastic", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestClientDropRecreatesIndex(t *testing.T) {
	fc, srv := newFakeCluster(t, "athlete")
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.Insert(ctx, []record.Document{{"Athlete_ID": 1}})
	require.NoError(t, err)

	require.NoError(t, c.Drop(ctx))
	assert.True(t, fc.indexExists())
	put, ok := fc.find("/athlete")
	require.True(t, ok)
	assert.Equal(t, http.MethodPut, put.Method)
	assert.Contains(t, put.Body, `"Athlete_ID":{"type":"long"}`)
}

func TestClientServerErrorsAreUnavailable(t *testing.T) {
	fc, srv := newFakeCluster(t, "athlete")
	fc.fail = http.StatusServiceUnavailable
	c := newTestClient(t, srv.URL)

	_, err := c.Search(context.Background(), matchAll())
	assert.ErrorIs(t, err, record.ErrBackendUnavailable)
}

func TestClientTransportErrorsAreUnavailable(t *testing.T) {
	_, srv := newFakeCluster(t, "athlete")
	url := srv.URL
	srv.Close()
	c := newTestClient(t, url)

	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, record.ErrBackendUnavailable)
}

func TestClientBadRequestIsNotUnavailable(t *testing.T) {
	srv := newJSONServer(t, http.StatusBadRequest, `{"error":{"type":"parsing_exception"}}`)
	c := newTestClient(t, srv.URL)

	_, err := c.Search(context.Background(), matchAll())
	require.Error(t, err)
	assert.NotErrorIs(t, err, record.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "parsing_exception")
}
