package webrtc

// ConnectionConfig holds WebRTC configuration
type ConnectionConfig struct {
	STUN []string // STUN server URLs
	TURN []TURNServer
}

// TURNServer represents a TURN server
type TURNServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// opusSampleRate is the decode rate of every Opus track
const opusSampleRate = 48000

// maxOpusFrame is the number of samples per channel in a 120ms Opus frame
const maxOpusFrame = 5760
