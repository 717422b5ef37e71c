package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dualstore/internal/domain/coordinator"
	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

// AthleteService 处理器依赖的协调器能力
type AthleteService interface {
	Insert(ctx context.Context, docs []record.Document) (*record.DualResult, error)
	Update(ctx context.Context, filter record.FilterSpec, update record.UpdateSpec, how record.Cardinality) (*record.DualResult, error)
	Delete(ctx context.Context, filter record.FilterSpec, how record.Cardinality) (*record.DualResult, error)
	Drop(ctx context.Context) (*record.DualResult, error)
	Search(ctx context.Context, filter record.FilterSpec, store record.Store) (*record.Result, error)
	Count(ctx context.Context, filter record.FilterSpec) (*record.Counts, error)
	DefaultStore() record.Store
	Reconciliations(ctx context.Context, limit int) ([]*coordinator.Reconciliation, error)
}

// AthleteHandler 运动员记录 API
type AthleteHandler struct {
	service      AthleteService
	maxBodyBytes int64
}

// NewAthleteHandler 创建处理器
func NewAthleteHandler(service AthleteService, maxBodyBytes int64) *AthleteHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 32 << 20
	}
	return &AthleteHandler{service: service, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes 注册路由
func (h *AthleteHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/athletes", func(r chi.Router) {
		r.Post("/", h.Insert)
		r.Get("/", h.List)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/search", h.Search)
		r.Post("/count", h.Count)
		r.Post("/drop", h.Drop)
	})
	r.Get("/api/v1/reconciliations", h.ListReconciliations)
}

type searchRequest struct {
	Query record.FilterSpec `json:"query"`
	Store string            `json:"store"`
}

type updateRequest struct {
	Query  record.FilterSpec `json:"query"`
	Update record.UpdateSpec `json:"update"`
	How    string            `json:"how"`
}

type deleteRequest struct {
	Query record.FilterSpec `json:"query"`
	How   string            `json:"how"`
}

type countRequest struct {
	Query record.FilterSpec `json:"query"`
}

// Insert 写入一条记录（JSON 对象）或一批记录（JSON 数组）
func (h *AthleteHandler) Insert(w http.ResponseWriter, r *http.Request) {
	docs, err := h.decodeDocuments(w, r)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	for i, doc := range docs {
		if unknown := doc.UnknownFields(); len(unknown) > 0 {
			applog.Warn("[API] Document carries fields outside the athlete catalogue",
				"index", i, "fields", unknown)
		}
	}

	dual, err := h.service.Insert(r.Context(), docs)
	if err != nil {
		writeServiceError(w, err, dual)
		return
	}
	writeJSON(w, http.StatusCreated, dual)
}

// List 返回指定存储中的全部记录
func (h *AthleteHandler) List(w http.ResponseWriter, r *http.Request) {
	store, err := record.ParseStore(r.URL.Query().Get("store"), h.service.DefaultStore())
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	res, err := h.service.Search(r.Context(), record.FilterSpec{}, store)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search 子串搜索
func (h *AthleteHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := h.decode(w, r, &req); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	store, err := record.ParseStore(req.Store, h.service.DefaultStore())
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	res, err := h.service.Search(r.Context(), req.Query, store)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Update 双写部分更新
func (h *AthleteHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := h.decode(w, r, &req); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	how, err := record.ParseCardinality(req.How)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	dual, err := h.service.Update(r.Context(), req.Query, req.Update, how)
	if err != nil {
		writeServiceError(w, err, dual)
		return
	}
	writeJSON(w, http.StatusOK, dual)
}

// Delete 双写删除
func (h *AthleteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := h.decode(w, r, &req); err != nil {
		writeServiceError(w, err, nil)
		return
	}
	how, err := record.ParseCardinality(req.How)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	dual, err := h.service.Delete(r.Context(), req.Query, how)
	if err != nil {
		writeServiceError(w, err, dual)
		return
	}
	writeJSON(w, http.StatusOK, dual)
}

// Drop 清空两个存储
func (h *AthleteHandler) Drop(w http.ResponseWriter, r *http.Request) {
	dual, err := h.service.Drop(r.Context())
	if err != nil {
		writeServiceError(w, err, dual)
		return
	}
	applog.Warn("[API] Both stores dropped", "request_id", r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusOK, dual)
}

// Count 两个存储的精确匹配计数，请求体可为空
func (h *AthleteHandler) Count(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := h.decodeOptional(w, r, &req); err != nil {
		writeServiceError(w, err, nil)
		return
	}

	counts, err := h.service.Count(r.Context(), req.Query)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ListReconciliations 最近的部分写入记录
func (h *AthleteHandler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.service.Reconciliations(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AthleteHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", record.ErrInvalidArgument, err)
	}
	return bytes.TrimSpace(body), nil
}

func (h *AthleteHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := h.readBody(w, r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is required", record.ErrInvalidArgument)
	}
	return unmarshal(body, v)
}

func (h *AthleteHandler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := h.readBody(w, r)
	if err != nil || len(body) == 0 {
		return err
	}
	return unmarshal(body, v)
}

// decodeDocuments 接受单个对象或对象数组
func (h *AthleteHandler) decodeDocuments(w http.ResponseWriter, r *http.Request) ([]record.Document, error) {
	body, err := h.readBody(w, r)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: request body is required", record.ErrInvalidArgument)
	}

	if body[0] == '[' {
		var docs []record.Document
		if err := unmarshal(body, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}

	var doc record.Document
	if err := unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return []record.Document{doc}, nil
}

func unmarshal(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", record.ErrInvalidArgument, err)
	}
	return nil
}
