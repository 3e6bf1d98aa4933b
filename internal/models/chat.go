package models

// Role tags a transcript turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a transcript, persisted as {role, content}.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryResult is what a history load produced. Recovered is set when the
// stored record existed but could not be decoded and was treated as empty.
type HistoryResult struct {
	Turns     []Turn
	Recovered bool
}

// Document is the chunked form of an uploaded PDF.
type Document struct {
	Key      string
	Chunks   []string
	Original []byte
}

type UploadResult struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}
