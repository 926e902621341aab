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

package log

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogrusEmitter hands messages to a logrus logger, so that the kernel log
// can share a sink and format with other logrus users in the process.
type LogrusEmitter struct {
	Logger *logrus.Logger
}

// NewLogrusEmitter returns a LogrusEmitter writing text records to w.
func NewLogrusEmitter(w *Writer) LogrusEmitter {
	l := logrus.New()
	l.SetOutput(w)
	// Filtering is done by BasicLogger.
	l.SetLevel(logrus.TraceLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: true,
	})
	return LogrusEmitter{Logger: l}
}

func logrusLevel(level Level) logrus.Level {
	switch level {
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.WarnLevel
	}
}

// Emit implements Emitter.Emit.
func (e LogrusEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")
	e.Logger.WithTime(timestamp).WithField("caller", callerPrefix(depth+1)).Log(logrusLevel(level), msg)
}
