package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dualstore/internal/domain/coordinator"
	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

// APIResponse 统一 JSON 响应
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PartialWriteData 部分写入时返回给调用方的对账信息
type PartialWriteData struct {
	Op        string             `json:"op"`
	Succeeded record.Store       `json:"succeeded"`
	Failed    record.Store       `json:"failed"`
	Results   *record.DualResult `json:"results,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeResponse(w, status, "ok", data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, message, nil)
}

func writeResponse(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: message,
		Data:    data,
	})
}

// writeServiceError 把领域错误映射为 HTTP 状态码；dual 为部分写入时已成功一侧的结果
func writeServiceError(w http.ResponseWriter, err error, dual *record.DualResult) {
	var perr *record.PartialWriteError
	switch {
	case errors.As(err, &perr):
		writeResponse(w, http.StatusBadGateway, err.Error(), &PartialWriteData{
			Op:        perr.Op,
			Succeeded: perr.Succeeded,
			Failed:    perr.Failed,
			Results:   dual,
		})
	case errors.Is(err, record.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, record.ErrDuplicateIdentifier):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, coordinator.ErrJournalDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, record.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		applog.Error("[API] Unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
