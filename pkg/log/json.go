// Copyright 2018 The gVisor Authors.
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
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// jsonLog is a single record written by JSONEmitter.
type jsonLog struct {
	Msg    string         `json:"msg"`
	Level  Level          `json:"level"`
	Time   time.Time      `json:"time"`
	Source string         `json:"source,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (l Level) MarshalJSON() ([]byte, error) {
	switch l {
	case Warning:
		return []byte(`"warning"`), nil
	case Info:
		return []byte(`"info"`), nil
	case Debug:
		return []byte(`"debug"`), nil
	default:
		return nil, fmt.Errorf("unknown level %v", l)
	}
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts both
// level names and their integer values.
func (l *Level) UnmarshalJSON(b []byte) error {
	switch s := string(b); s {
	case "0", `"warning"`:
		*l = Warning
	case "1", `"info"`:
		*l = Info
	case "2", `"debug"`:
		*l = Debug
	default:
		return fmt.Errorf("unknown level %q", s)
	}
	return nil
}

// JSONEmitter writes one JSON object per log line.
//
// The call site is reported in "source" rather than folded into the message,
// and Fields, if set, is copied into every record. The kernel uses it to tag
// lines with the boot parameters of the instance that produced them.
type JSONEmitter struct {
	*Writer

	// Fields is attached to every record. It must not be modified once the
	// emitter is in use.
	Fields map[string]any
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	j := jsonLog{
		Msg:    fmt.Sprintf(format, v...),
		Level:  level,
		Time:   timestamp,
		Fields: e.Fields,
	}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
			file = file[slash+1:]
		}
		j.Source = fmt.Sprintf("%s:%d", file, line)
	}
	b, err := json.Marshal(j)
	if err != nil {
		// Fields held something unencodable. Keep the line, lose the fields.
		j.Fields = map[string]any{"fields_error": err.Error()}
		if b, err = json.Marshal(j); err != nil {
			panic(err)
		}
	}
	e.Writer.Write(b)
}
