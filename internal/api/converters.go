package api

import (
	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/monitor"
	"github.com/rizaleow/ovpn-manager/pkg/api"
)

func toInstanceInfo(inst db.Instance) api.InstanceInfo {
	return api.InstanceInfo{
		ID:          inst.ID,
		Name:        inst.Name,
		DisplayName: inst.DisplayName,
		Status:      string(inst.Status),
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
	}
}

func toServerConfigInfo(cfg db.ServerConfig) api.ServerConfigInfo {
	return api.ServerConfigInfo{
		Hostname:       cfg.Hostname,
		Protocol:       cfg.Protocol,
		Port:           cfg.Port,
		Device:         cfg.Device,
		Subnet:         cfg.Subnet,
		Mask:           cfg.Mask,
		DNSServers:     cfg.DNSServers,
		Cipher:         cfg.Cipher,
		AuthDigest:     cfg.AuthDigest,
		TLSAuth:        cfg.TLSAuth,
		Compression:    cfg.Compression,
		ClientToClient: cfg.ClientToClient,
		MaxClients:     cfg.MaxClients,
		Keepalive:      cfg.Keepalive,
		PKIInitialized: cfg.PKIInitialized,
	}
}

func toProvisioningInfo(state db.ProvisioningState) api.ProvisioningInfo {
	return api.ProvisioningInfo{
		Step:        string(state.Step),
		Completed:   state.Completed,
		StartedAt:   state.StartedAt,
		CompletedAt: state.CompletedAt,
		LastError:   state.LastError,
	}
}

func toClientInfo(cred db.ClientCredential) api.ClientInfo {
	return api.ClientInfo{
		Name:          cred.Name,
		Status:        string(cred.Status),
		CommonName:    cred.CommonName,
		StaticAddress: cred.StaticAddress,
		Notes:         cred.Notes,
		CreatedAt:     cred.CreatedAt,
		RevokedAt:     cred.RevokedAt,
		ExpiresAt:     cred.ExpiresAt,
	}
}

func toConnectionInfo(conn monitor.Connection) api.ConnectionInfo {
	return api.ConnectionInfo{
		ClientName:     conn.ClientName,
		RealAddress:    conn.RealAddress,
		VirtualAddress: conn.VirtualAddress,
		BytesReceived:  conn.BytesReceived,
		BytesSent:      conn.BytesSent,
		ConnectedSince: conn.ConnectedSince,
	}
}

func toConnectionRecordInfo(rec db.ConnectionRecord) api.ConnectionRecordInfo {
	return api.ConnectionRecordInfo{
		ClientName:     rec.ClientName,
		RealAddress:    rec.RealAddress,
		VirtualAddress: rec.VirtualAddress,
		BytesReceived:  rec.BytesReceived,
		BytesSent:      rec.BytesSent,
		ConnectedSince: rec.ConnectedSince,
		RecordedAt:     rec.RecordedAt,
	}
}

func toBandwidthInfo(stat db.BandwidthStat) api.BandwidthInfo {
	return api.BandwidthInfo{
		ClientName:    stat.ClientName,
		BytesReceived: stat.BytesReceived,
		BytesSent:     stat.BytesSent,
		Connections:   stat.Connections,
		LastSeen:      stat.LastSeen,
	}
}
