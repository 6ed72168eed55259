package api

import (
	"net/http"
	"strconv"

	"github.com/rizaleow/ovpn-manager/pkg/api"
)

func (s *Server) connectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		conns, err := s.monitor.ActiveConnections(r.Context(), name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		infos := make([]api.ConnectionInfo, len(conns))
		for i, conn := range conns {
			infos[i] = toConnectionInfo(conn)
		}

		_ = WriteSuccess(w, api.ConnectionListResponse{
			Connections: infos,
			Total:       len(infos),
		})
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 20)

		result, err := s.monitor.History(r.Context(), name, page, limit)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		records := make([]api.ConnectionRecordInfo, len(result.Records))
		for i, rec := range result.Records {
			records[i] = toConnectionRecordInfo(rec)
		}

		_ = WriteSuccess(w, api.HistoryResponse{
			Records: records,
			Total:   result.Total,
			Page:    result.Page,
			Limit:   result.Limit,
		})
	}
}

func (s *Server) bandwidthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		stats, err := s.monitor.Bandwidth(r.Context(), name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		infos := make([]api.BandwidthInfo, len(stats))
		for i, stat := range stats {
			infos[i] = toBandwidthInfo(stat)
		}

		_ = WriteSuccess(w, api.BandwidthResponse{Stats: infos})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
