package models

// EngineState is the externally visible state of the sync engine.
type EngineState string

const (
	EngineIdle           EngineState = "idle"
	EngineUploading      EngineState = "uploading"
	EnginePausedNonPro   EngineState = "paused_non_pro"
	EnginePausedNetwork  EngineState = "paused_network"
	EnginePausedWifiOnly EngineState = "paused_wifi_only"
	EngineError          EngineState = "error"
)

// SyncConfig carries the account and connectivity facts the engine acts on.
// The engine never infers these; collaborators push them in via Configure.
type SyncConfig struct {
	IsProActive        bool `json:"isProActive"`
	HasCloudReadAccess bool `json:"hasCloudReadAccess"`
	WifiOnlyUpload     bool `json:"wifiOnlyUpload"`
	IsConnected        bool `json:"isConnected"`
	IsWifi             bool `json:"isWifi"`
}

// ConfigPatch is a partial SyncConfig; nil fields are left unchanged.
type ConfigPatch struct {
	IsProActive        *bool
	HasCloudReadAccess *bool
	WifiOnlyUpload     *bool
	IsConnected        *bool
	IsWifi             *bool
}

// Apply merges the patch into cfg and returns the result.
func (p ConfigPatch) Apply(cfg SyncConfig) SyncConfig {
	if p.IsProActive != nil {
		cfg.IsProActive = *p.IsProActive
	}
	if p.HasCloudReadAccess != nil {
		cfg.HasCloudReadAccess = *p.HasCloudReadAccess
	}
	if p.WifiOnlyUpload != nil {
		cfg.WifiOnlyUpload = *p.WifiOnlyUpload
	}
	if p.IsConnected != nil {
		cfg.IsConnected = *p.IsConnected
	}
	if p.IsWifi != nil {
		cfg.IsWifi = *p.IsWifi
	}
	return cfg
}

// PauseState resolves the highest-priority pause condition, or "" when
// uploads may proceed. Priority: subscription, then connectivity, then the
// wifi-only preference.
func (c SyncConfig) PauseState() EngineState {
	if !c.IsProActive {
		return EnginePausedNonPro
	}
	if !c.IsConnected {
		return EnginePausedNetwork
	}
	if c.WifiOnlyUpload && !c.IsWifi {
		return EnginePausedWifiOnly
	}
	return ""
}

// Snapshot is the immutable view of engine state handed to subscribers and
// returned by the engine's Snapshot call.
type Snapshot struct {
	State                        EngineState `json:"state"`
	ActiveUploadLocalRecordingID string      `json:"activeUploadLocalRecordingId,omitempty"`
	ActiveUploadProgress         float64     `json:"activeUploadProgress"`
	LastError                    string      `json:"lastError,omitempty"`
	QueueLength                  int         `json:"queueLength"`
	Config                       SyncConfig  `json:"config"`
}
