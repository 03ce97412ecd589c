package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EncodeDataURL renders raw bytes as a base64 data URL, the transport-ready
// representation used by the chat wire contract.
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// ParseDataURL splits a base64 data URL into its MIME type and raw base64
// payload. The payload is returned still encoded; the upstream model API
// takes base64 directly.
func ParseDataURL(s string) (mimeType, b64 string, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", "", errors.New("domain: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", errors.New("domain: data URL has no payload")
	}
	mimeType, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return "", "", errors.New("domain: data URL is not base64 encoded")
	}
	if mimeType == "" {
		return "", "", errors.New("domain: data URL has no MIME type")
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", "", fmt.Errorf("domain: data URL payload is not valid base64: %w", err)
	}
	return mimeType, payload, nil
}
