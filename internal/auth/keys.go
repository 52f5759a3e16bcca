// Package auth signs requests to the cyphernode gatekeeper.
//
// Keys come from the gatekeeper's shell-style key file, one key per line:
//
//	kapi_id="001";kapi_key="a27f...";kapi_groups="watcher";eval ugroups_${kapi_id}=${kapi_groups};...
//
// Only the first three ';'-separated pairs of a line are considered.
package auth

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrUnknownKey is returned when no key is registered under a label.
var ErrUnknownKey = errors.New("auth: no such key")

// tokenTTL is how long a generated bearer token stays valid.
const tokenTTL = 10 * time.Second

const tokenHeader = `{"alg":"HS256","typ":"JWT"}`

// KeyStore maps key labels (kapi_id) to hex keys (kapi_key).
type KeyStore struct {
	keys map[string]string
	now  func() time.Time
}

// ParseKeyFile reads a gatekeeper key file.
func ParseKeyFile(r io.Reader) (*KeyStore, error) {
	ks := &KeyStore{keys: make(map[string]string), now: time.Now}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		label, key := parseKeyLine(scanner.Text())
		if label != "" && key != "" {
			ks.keys[label] = key
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan key file: %w", err)
	}
	return ks, nil
}

// LoadKeyFile opens and parses the key file at path.
func LoadKeyFile(path string) (*KeyStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()
	return ParseKeyFile(f)
}

func parseKeyLine(line string) (label, key string) {
	fields := strings.Split(strings.TrimSpace(line), ";")
	if len(fields) > 3 {
		fields = fields[:3]
	}
	for _, field := range fields {
		name, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"`)
		switch name {
		case "kapi_id":
			label = value
		case "kapi_key":
			key = value
		}
	}
	return label, key
}

// Len returns the number of loaded keys.
func (ks *KeyStore) Len() int {
	return len(ks.keys)
}

// Has reports whether label is known.
func (ks *KeyStore) Has(label string) bool {
	_, ok := ks.keys[label]
	return ok
}

// BearerFromKey returns an Authorization header value signed with the key
// registered under label. The token expires ten seconds after issue.
//
// The gatekeeper expects standard (padded) base64 segments and a hex-encoded
// HMAC-SHA256 signature keyed with the hex key string itself.
func (ks *KeyStore) BearerFromKey(label string) (string, error) {
	keyHex, ok := ks.keys[label]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, label)
	}
	payload := fmt.Sprintf(`{"id":"%s","exp":%d}`, label, ks.now().Add(tokenTTL).Unix())

	toSign := base64.StdEncoding.EncodeToString([]byte(tokenHeader)) + "." +
		base64.StdEncoding.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, []byte(keyHex))
	mac.Write([]byte(toSign))
	return "Bearer " + toSign + "." + hex.EncodeToString(mac.Sum(nil)), nil
}
