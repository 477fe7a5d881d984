// internal/service/notification/domain/fingerprint.go
package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// NormalizeRecipient：邮箱去空白并转小写，手机号去掉所有空白
func NormalizeRecipient(channel Channel, recipient string) string {
	switch channel {
	case ChannelEmail:
		return strings.ToLower(strings.TrimSpace(recipient))
	case ChannelSMS:
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, recipient)
	}
	return strings.TrimSpace(recipient)
}

// CanonicalPayload 重新编码 payload：键有序、无多余空白、数字保持原始字面量
func CanonicalPayload(payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not JSON encodable: %v", ErrInvalidTask, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Fingerprint 是 (channel, recipient, template, payload) 规范 JSON 的 SHA-256
func Fingerprint(channel Channel, recipient, template string, payload map[string]interface{}) (string, error) {
	canonical, err := CanonicalPayload(payload)
	if err != nil {
		return "", err
	}
	doc, err := json.Marshal(struct {
		Channel   Channel         `json:"channel"`
		Recipient string          `json:"recipient"`
		Template  string          `json:"template"`
		Payload   json.RawMessage `json:"payload"`
	}{channel, NormalizeRecipient(channel, recipient), template, canonical})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:]), nil
}
