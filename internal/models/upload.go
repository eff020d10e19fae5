package models

import (
	"time"
)

// FileInfo describes a candidate file as declared by the client.
type FileInfo struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// UploadFile is an accepted file together with its content.
type UploadFile struct {
	FileInfo
	Content []byte `json:"-"`
}

// UploadRequest is consumed exactly once by a workflow run. UserName and
// OrganizationName are already trimmed and non-empty, and File has passed the
// acceptance filter.
type UploadRequest struct {
	File             UploadFile
	UserName         string
	OrganizationName string
}

// RunJob 工作流任务, handed from the API to an executor (in-process or via the queue).
type RunJob struct {
	RunID            string    `json:"runId"`
	SessionID        string    `json:"sessionId"`
	Generation       uint64    `json:"generation"`
	FileKey          string    `json:"fileKey"`
	File             FileInfo  `json:"file"`
	UserName         string    `json:"userName"`
	OrganizationName string    `json:"organizationName"`
	CreatedAt        time.Time `json:"createdAt"`
}
