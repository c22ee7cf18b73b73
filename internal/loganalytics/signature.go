// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package loganalytics posts JSON payloads to the Azure Monitor HTTP Data
// Collector API using SharedKey request signing.
package loganalytics

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	resourcePath = "/api/logs"
	contentType  = "application/json"
)

// StringToSign builds the canonical string the SharedKey signature covers.
func StringToSign(contentLength int, date string) string {
	return "POST\n" + strconv.Itoa(contentLength) + "\n" + contentType + "\n" +
		"x-ms-date:" + date + "\n" + resourcePath
}

// BuildSignature returns base64(HMAC-SHA256(base64decode(sharedKey), message)).
func BuildSignature(message, sharedKey string) (string, error) {
	key, err := DecodeKey(sharedKey)
	if err != nil {
		return "", err
	}
	return sign(message, key), nil
}

// DecodeKey decodes a base64 workspace shared key.
func DecodeKey(sharedKey string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(sharedKey)
	if err != nil {
		return nil, fmt.Errorf("shared key is not valid base64: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("shared key is empty")
	}
	return key, nil
}

// Authorization formats the Authorization header value.
func Authorization(workspaceID, signature string) string {
	return "SharedKey " + workspaceID + ":" + signature
}

// FormatDate renders t the way the x-ms-date header expects (RFC 1123, GMT).
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func sign(message string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
