package opensearch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeCluster 最小化的 OpenSearch 模拟：单索引，支持 term / bool / match_all 求值
type fakeCluster struct {
	mu       sync.Mutex
	index    string
	exists   bool
	docs     map[string]map[string]any
	order    []string
	requests []fakeRequest
	fail     int // 非 0 时所有请求返回该状态码
}

type fakeRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func newFakeCluster(t *testing.T, index string) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{index: index, exists: true, docs: map[string]map[string]any{}}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)
	return fc, srv
}

func (f *fakeCluster) last() fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeCluster) find(path string) (fakeRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Path == path {
			return f.requests[i], true
		}
	}
	return fakeRequest{}, false
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, fakeRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})

	if f.fail != 0 {
		w.WriteHeader(f.fail)
		fmt.Fprint(w, `{"error":"injected"}`)
		return
	}

	idx := "/" + f.index
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		reply(w, http.StatusOK, map[string]any{"version": map[string]any{"number": "2.11.0"}})
	case r.URL.Path == idx && r.Method == http.MethodHead:
		if f.exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.URL.Path == idx && r.Method == http.MethodPut:
		if f.exists {
			reply(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"type": "resource_already_exists_exception"}})
			return
		}
		f.exists = true
		reply(w, http.StatusOK, map[string]any{"acknowledged": true})
	case r.URL.Path == idx && r.Method == http.MethodDelete:
		if !f.exists {
			reply(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}})
			return
		}
		f.exists = false
		f.docs = map[string]map[string]any{}
		f.order = nil
		reply(w, http.StatusOK, map[string]any{"acknowledged": true})
	case strings.HasPrefix(r.URL.Path, idx+"/_create/"):
		var doc map[string]any
		_ = json.Unmarshal(body, &doc)
		f.put(strings.TrimPrefix(r.URL.Path, idx+"/_create/"), doc)
		reply(w, http.StatusCreated, map[string]any{"result": "created"})
	case r.URL.Path == "/_bulk":
		f.bulk(w, body)
	case !f.exists && strings.HasPrefix(r.URL.Path, idx+"/_"):
		reply(w, http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}})
	case r.URL.Path == idx+"/_search":
		var req struct {
			Query map[string]any `json:"query"`
		}
		_ = json.Unmarshal(body, &req)
		hits := []map[string]any{}
		for _, id := range f.matching(req.Query, -1) {
			hits = append(hits, map[string]any{"_id": id, "_source": f.docs[id]})
		}
		reply(w, http.StatusOK, map[string]any{"took": 5, "hits": map[string]any{"hits": hits}})
	case r.URL.Path == idx+"/_count":
		var req struct {
			Query map[string]any `json:"query"`
		}
		_ = json.Unmarshal(body, &req)
		reply(w, http.StatusOK, map[string]any{"count": len(f.matching(req.Query, -1))})
	case r.URL.Path == idx+"/_update_by_query":
		var req struct {
			Query  map[string]any `json:"query"`
			Script Script         `json:"script"`
		}
		_ = json.Unmarshal(body, &req)
		ids := f.matching(req.Query, maxDocs(r))
		for _, id := range ids {
			for i := 0; ; i++ {
				k, ok := req.Script.Params[fmt.Sprintf("k%d", i)]
				if !ok {
					break
				}
				f.docs[id][k.(string)] = req.Script.Params[fmt.Sprintf("v%d", i)]
			}
		}
		reply(w, http.StatusOK, map[string]any{"took": 4, "total": len(ids), "updated": len(ids), "failures": []any{}})
	case r.URL.Path == idx+"/_delete_by_query":
		var req struct {
			Query map[string]any `json:"query"`
		}
		_ = json.Unmarshal(body, &req)
		ids := f.matching(req.Query, maxDocs(r))
		for _, id := range ids {
			f.remove(id)
		}
		reply(w, http.StatusOK, map[string]any{"took": 3, "total": len(ids), "deleted": len(ids), "failures": []any{}})
	default:
		reply(w, http.StatusNotFound, map[string]any{"error": "no handler for " + r.Method + " " + r.URL.Path})
	}
}

func (f *fakeCluster) put(id string, doc map[string]any) {
	f.exists = true
	if _, ok := f.docs[id]; !ok {
		f.order = append(f.order, id)
	}
	f.docs[id] = doc
}

func (f *fakeCluster) remove(id string) {
	delete(f.docs, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}

func (f *fakeCluster) bulk(w http.ResponseWriter, body []byte) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	var items []any
	for sc.Scan() {
		var action map[string]map[string]any
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil || !sc.Scan() {
			break
		}
		var doc map[string]any
		_ = json.Unmarshal(sc.Bytes(), &doc)
		id, _ := action["create"]["_id"].(string)
		f.put(id, doc)
		items = append(items, map[string]any{"create": map[string]any{"_id": id, "status": 201}})
	}
	reply(w, http.StatusOK, map[string]any{"took": 7, "errors": false, "items": items})
}

func (f *fakeCluster) matching(query map[string]any, limit int) []string {
	var ids []string
	for _, id := range f.order {
		if limit >= 0 && len(ids) >= limit {
			break
		}
		if evalQuery(query, f.docs[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

func evalQuery(query map[string]any, doc map[string]any) bool {
	if query == nil {
		return true
	}
	if _, ok := query["match_all"]; ok {
		return true
	}
	if m, ok := query["term"].(map[string]any); ok {
		for field, want := range m {
			if !termMatches(doc, field, want) {
				return false
			}
		}
		return true
	}
	if b, ok := query["bool"].(map[string]any); ok {
		filter, _ := b["filter"].([]any)
		must, _ := b["must"].([]any)
		for _, clause := range append(filter, must...) {
			c, _ := clause.(map[string]any)
			if !evalQuery(c, doc) {
				return false
			}
		}
		return true
	}
	// match 在真实集群上会分词，这里不当作精确匹配
	if _, ok := query["match"]; ok {
		return false
	}
	// query_string 不做求值
	return true
}

// termMatches keyword 子字段只匹配完全相同的字符串（区分大小写），其余按值比较
func termMatches(doc map[string]any, field string, want any) bool {
	if name, ok := strings.CutSuffix(field, ".keyword"); ok {
		got, isStr := doc[name].(string)
		return isStr && got == want
	}
	got, ok := doc[field]
	return ok && fmt.Sprint(got) == fmt.Sprint(want)
}

func maxDocs(r *http.Request) int {
	if v := r.URL.Query().Get("max_docs"); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return -1
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCluster) reqs() []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeCluster) indexExists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists
}

func newHandlerServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newJSONServer(t *testing.T, status int, body string) *httptest.Server {
	return newHandlerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}
