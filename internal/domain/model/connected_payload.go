package model

// ConnectedPayload is sent to the client once the handshake succeeds.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	UserID        string `json:"user_id"`
	ServerVersion string `json:"server_version"`
}

// ServerVersion is stamped by the build.
var ServerVersion = "0.0.0"
