package share

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"github.com/rebelice/kioskquery/internal/models"
)

// InvalidShareTokenError reports a malformed or corrupted share token.
// Decode never returns a partially populated config alongside it; the
// caller should fall back to an empty FilterConfig.
type InvalidShareTokenError struct {
	Reason string
}

func (e *InvalidShareTokenError) Error() string {
	return "invalid share token: " + e.Reason
}

// Encode serializes a FilterConfig into a compact URL-safe token for
// deep-linking. The token carries a checksum so truncation or corruption is
// detected on decode.
func Encode(cfg models.FilterConfig) (string, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	buf := make([]byte, len(payload)+4)
	copy(buf, payload)
	binary.BigEndian.PutUint32(buf[len(payload):], crc32.ChecksumIEEE(payload))

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Decode restores a FilterConfig from a share token
func Decode(token string) (models.FilterConfig, error) {
	var cfg models.FilterConfig

	buf, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cfg, &InvalidShareTokenError{Reason: "not valid base64url"}
	}
	if len(buf) < 4 {
		return cfg, &InvalidShareTokenError{Reason: "token too short"}
	}

	payload := buf[:len(buf)-4]
	sum := binary.BigEndian.Uint32(buf[len(buf)-4:])
	if crc32.ChecksumIEEE(payload) != sum {
		return cfg, &InvalidShareTokenError{Reason: "checksum mismatch"}
	}

	if err := json.Unmarshal(payload, &cfg); err != nil {
		return models.FilterConfig{}, &InvalidShareTokenError{Reason: "payload is not a filter config"}
	}
	return cfg, nil
}
