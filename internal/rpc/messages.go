package rpc

// CodeRequest is the top-level request for one coding session.
type CodeRequest struct {
	RepoURL string `json:"repoUrl"`
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
}

// CodeStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry the request; later messages may cancel.
type CodeStreamRequest struct {
	Run    *CodeRequest `json:"run,omitempty"`
	Cancel bool         `json:"cancel,omitempty"`
}
