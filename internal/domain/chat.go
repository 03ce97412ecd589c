package domain

import "time"

// Turn roles. The gateway forwards these verbatim to the upstream model,
// which uses the same "user"/"model" vocabulary.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ImageAnalysisPrefix marks the user turn of a single-turn image exchange in
// gateway-returned history.
const ImageAnalysisPrefix = "[Image Analysis] "

// Turn is a single message in a conversation, tagged by originator.
// Turns are immutable once appended to a conversation.
type Turn struct {
	Role  string `json:"role"`
	Parts string `json:"parts"`
}

// ImagePayload is the wire representation of an image attachment:
// a data URL plus the original file name and MIME type.
type ImagePayload struct {
	Data string `json:"data"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ChatRequest is the client-to-gateway payload for one exchange.
// History carries the prior turns only; Message is the new user input.
type ChatRequest struct {
	Message        string        `json:"message"`
	ConversationID string        `json:"conversationId,omitempty"`
	History        []Turn        `json:"history"`
	Image          *ImagePayload `json:"image,omitempty"`
}

// ChatResponse is the gateway's success payload: the model reply and the
// authoritative updated history. Failures travel as errors, never as a
// partially filled ChatResponse.
type ChatResponse struct {
	Response       string `json:"response"`
	History        []Turn `json:"history"`
	ConversationID string `json:"conversationId,omitempty"`
}

// PendingAttachment is an image staged for the next send. At most one exists
// per attachment manager; it is consumed by exactly one outgoing request.
type PendingAttachment struct {
	Name      string
	MimeType  string
	SizeBytes int64
	Data      []byte
	DataURL   string
}

// Snapshot is the exported conversation document. It is the only durable
// external representation of conversation state and must round-trip
// losslessly back into a conversation.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Messages      []Turn    `json:"messages"`
	TotalMessages int       `json:"totalMessages"`
}

// ModelInfo describes one available model identifier and its capability tags.
type ModelInfo struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

// Model capability tags.
const (
	CapabilityText       = "text"
	CapabilityMultimodal = "multimodal"
)

// HealthStatus is the liveness probe result. Informational only; clients use
// it for a connectivity indicator and never gate sending on it.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Health status values.
const (
	HealthOK          = "ok"
	HealthDegraded    = "degraded"
	HealthUnavailable = "unavailable"
)
