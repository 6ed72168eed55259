package api

import (
	"net/http"

	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
	"github.com/rizaleow/ovpn-manager/pkg/api"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
)

func (s *Server) issueClientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := r.PathValue("name")

		var req api.IssueClientRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			WriteErrorResponse(w, r, err)
			return
		}
		if req.Name == "" {
			WriteErrorResponse(w, r, apperrors.NewValidationError("name", "client name is required"))
			return
		}

		cred, err := s.orchestrator.IssueClient(ctx, name, orchestrator.IssueClientParams{
			Name:          req.Name,
			StaticAddress: req.StaticAddress,
			Notes:         req.Notes,
		})
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		if err := WriteCreated(w, toClientInfo(*cred)); err != nil {
			s.logger.ErrorCtx(ctx, "failed to encode client response", err)
		}
	}
}

func (s *Server) listClientsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		clients, err := s.orchestrator.ListClients(r.Context(), name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		infos := make([]api.ClientInfo, len(clients))
		for i, c := range clients {
			infos[i] = toClientInfo(c)
		}

		_ = WriteSuccess(w, api.ClientListResponse{
			Clients: infos,
			Total:   len(infos),
		})
	}
}

func (s *Server) revokeClientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		client := r.PathValue("client")

		result, err := s.orchestrator.RevokeClient(r.Context(), name, client)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		_ = WriteSuccess(w, api.RevokeResponse{
			Client:         result.Client,
			AlreadyRevoked: result.AlreadyRevoked,
			Message:        result.Message,
		})
	}
}

func (s *Server) renewClientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		client := r.PathValue("client")

		cred, err := s.orchestrator.RenewClient(r.Context(), name, client)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		_ = WriteSuccess(w, toClientInfo(*cred))
	}
}

func (s *Server) clientProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		client := r.PathValue("client")

		profile, err := s.orchestrator.ClientProfile(r.Context(), name, client)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/x-openvpn-profile")
		w.Header().Set("Content-Disposition", `attachment; filename="`+client+`.ovpn"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(profile)); err != nil {
			s.logger.ErrorCtx(r.Context(), "failed to write client profile", err)
		}
	}
}
