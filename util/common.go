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

package util

import (
	"os"
	"time"
)

// Timestamp format shared by log files, snapshots and support bundles.
const TimestampLayout = "20060102T150405Z"

// UTCStamp returns the current UTC time in the shared timestamp layout.
func UTCStamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsRegularFile reports whether path exists and is a regular file
// (directories with image-like names must never be picked up as assets).
func IsRegularFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
