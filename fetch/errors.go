// Copyright 2025 Lucid Fabrics
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fetch

import "fmt"

// ErrorKind classifies download failures. Only network-kind failures are
// retried; everything else fails fast.
type ErrorKind string

const (
	// KindNetwork covers transient transport errors and 5xx responses.
	KindNetwork ErrorKind = "network"
	// KindHTTP covers definitive HTTP failures (4xx, unexpected status).
	KindHTTP ErrorKind = "http"
	// KindProtocol covers unexpected response shapes from the release
	// API, the software catalog or the osrecovery endpoint.
	KindProtocol ErrorKind = "protocol"
	// KindConversion covers dmg2img failures or absence.
	KindConversion ErrorKind = "conversion"
	// KindParse covers malformed payloads (XAR header, plist, TOC).
	KindParse ErrorKind = "parse"
	// KindMissingKey covers osrecovery responses without AU/AT/CU/CT.
	KindMissingKey ErrorKind = "missing-key"
	// KindDiskSpace covers a destination too small for the payload.
	KindDiskSpace ErrorKind = "disk-space"
)

// Error is the typed download failure of the error taxonomy. Hint carries
// the human remediation text front-ends print verbatim.
type Error struct {
	Kind ErrorKind
	Hint string
	Err  error
	msg  string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.Err)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, hint string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Hint: hint, Err: err, msg: fmt.Sprintf(format, args...)}
}

// retryable reports whether the downloader should attempt err again.
func retryable(err error) bool {
	if de, ok := err.(*Error); ok {
		return de.Kind == KindNetwork
	}
	// Bare transport errors from io/net reads are worth a retry.
	return true
}
