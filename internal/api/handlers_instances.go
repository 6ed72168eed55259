package api

import (
	"context"
	"net/http"

	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
	"github.com/rizaleow/ovpn-manager/pkg/api"
	apperrors "github.com/rizaleow/ovpn-manager/pkg/errors"
)

func (s *Server) createInstanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req api.CreateInstanceRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			WriteErrorResponse(w, r, err)
			return
		}
		if req.Name == "" {
			WriteErrorResponse(w, r, apperrors.NewValidationError("name", "name is required"))
			return
		}

		inst, err := s.registry.Create(ctx, req.Name, req.DisplayName)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		if err := WriteCreated(w, toInstanceInfo(*inst)); err != nil {
			s.logger.ErrorCtx(ctx, "failed to encode instance response", err)
		}
	}
}

func (s *Server) listInstancesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances, err := s.registry.List(r.Context())
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		infos := make([]api.InstanceInfo, len(instances))
		for i, inst := range instances {
			infos[i] = toInstanceInfo(inst)
		}

		_ = WriteSuccess(w, api.InstanceListResponse{
			Instances: infos,
			Total:     len(infos),
		})
	}
}

func (s *Server) getInstanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		inst, cfg, state, err := s.orchestrator.State(r.Context(), name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		_ = WriteSuccess(w, api.InstanceStateResponse{
			Instance:     toInstanceInfo(*inst),
			Config:       toServerConfigInfo(*cfg),
			Provisioning: toProvisioningInfo(*state),
		})
	}
}

func (s *Server) deleteInstanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := r.PathValue("name")

		// The not-found check belongs to this boundary; the registry
		// treats deleting a missing instance as a no-op.
		inst, err := s.registry.Get(ctx, name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}
		if inst == nil {
			WriteErrorResponse(w, r, apperrors.NewNotFoundError("instance", name))
			return
		}

		warnings, err := s.registry.Delete(ctx, name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		_ = WriteSuccess(w, api.DeleteInstanceResponse{
			Name:     name,
			Warnings: warnings,
		})
	}
}

func (s *Server) setupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := r.PathValue("name")

		var req api.SetupRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		params := orchestrator.SetupParams{
			Hostname:       req.Hostname,
			Protocol:       req.Protocol,
			Port:           req.Port,
			Device:         req.Device,
			Subnet:         req.Subnet,
			Mask:           req.Mask,
			DNSServers:     req.DNSServers,
			Cipher:         req.Cipher,
			AuthDigest:     req.AuthDigest,
			TLSAuth:        req.TLSAuth,
			Compression:    req.Compression,
			ClientToClient: req.ClientToClient,
			MaxClients:     req.MaxClients,
			Keepalive:      req.Keepalive,
		}

		if err := s.orchestrator.Setup(ctx, name, params); err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		inst, cfg, state, err := s.orchestrator.State(ctx, name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		_ = WriteSuccess(w, api.InstanceStateResponse{
			Instance:     toInstanceInfo(*inst),
			Config:       toServerConfigInfo(*cfg),
			Provisioning: toProvisioningInfo(*state),
		})
	}
}

func (s *Server) serviceHandler(op func(ctx context.Context, name string) error, verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		if err := op(r.Context(), name); err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		inst, cfg, state, err := s.orchestrator.State(r.Context(), name)
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}
		s.logger.InfoContext(r.Context(), "instance service "+verb, "instance", name)

		_ = WriteSuccess(w, api.InstanceStateResponse{
			Instance:     toInstanceInfo(*inst),
			Config:       toServerConfigInfo(*cfg),
			Provisioning: toProvisioningInfo(*state),
		})
	}
}
