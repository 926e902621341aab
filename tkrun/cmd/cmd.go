// Copyright 2026 The gVisor Authors.
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

// Package cmd holds implementations of the tkrun commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"teachos.dev/teachos/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the caller of tkrun, and are not part of the debug log.
var ErrorLogger io.Writer

// Errorf logs to the debug log and to ErrorLogger.
func Errorf(format string, args ...any) {
	log.Warningf(format, args...)
	writeErr(format, args...)
}

// Fatalf logs to the debug log and to ErrorLogger, then exits.
func Fatalf(format string, args ...any) {
	log.Warningf(format, args...)
	writeErr(format, args...)
	os.Exit(128)
}

func writeErr(format string, args ...any) {
	msg := fmt.Sprintf("tkrun: "+format+"\n", args...)
	if ErrorLogger != nil {
		ErrorLogger.Write([]byte(msg))
	}
	os.Stderr.WriteString(msg)
}
