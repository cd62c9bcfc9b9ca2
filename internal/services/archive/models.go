package archive

// PutRequest is the body of PUT /archive/{container}/{blob}.
type PutRequest struct {
	// Source is the local file to upload, as seen by the server.
	Source string `json:"source"`

	// Origin is "local", "remote" or "unknown". It wins over PrevPhysicalPath.
	Origin string `json:"origin,omitempty"`

	// PrevPhysicalPath is the caller's previous physical path of the object.
	// It is only consulted when Origin is empty.
	PrevPhysicalPath string `json:"prev_physical_path,omitempty"`

	// New skips the existing-blob handling and always runs a plain upload.
	New bool `json:"new,omitempty"`
}

// GetRequest is the body of POST /archive/{container}/{blob}.
type GetRequest struct {
	Destination string `json:"destination"`

	// Mode is an octal permission string such as "0644". Empty means 0644.
	Mode string `json:"mode,omitempty"`
}

// StatusResponse is returned by GET /archive/{container}/{blob}.
type StatusResponse struct {
	Exists bool  `json:"exists"`
	Length int64 `json:"length"`
}

// ErrorBody is the error envelope shared by every handler.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	ArchiveCode int64  `json:"archive_code,omitempty"`
}
