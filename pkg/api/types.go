package api

// HelloReply is the fixed answer to a liveness probe.
const HelloReply = "OLLEH"

type HelloRequest struct {
	CallerID string `json:"caller_id"`
}

type HelloResponse struct {
	Message string `json:"message"`
}

type CreateRequest struct {
	VolumeID  string `json:"volume_id"`
	SizeLimit string `json:"size_limit"`
}

type CreateResponse struct {
	Path string `json:"path"`
}

type RemoveRequest struct {
	VolumeID string `json:"volume_id"`
}

type RemoveResponse struct{}

type ResolveRequest struct {
	VolumeID string `json:"volume_id"`
}

type ResolveResponse struct {
	Path string `json:"path"`
}
