// Copyright (c) 2026 John Earle
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

package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/bcem/hwfiler/internal/credential"
)

var secretKeys = []string{
	credential.KeyIMAPPassword,
	credential.KeyGoogleToken,
	credential.KeyDatabaseURL,
}

// runSecret handles "hwfiler secret set <key>" and "hwfiler secret delete
// <key>". The value for set is read from stdin to keep it out of shell
// history.
func runSecret(store *credential.Store, args []string, stdin io.Reader) error {
	if len(args) != 2 {
		return errors.New("usage: hwfiler secret set|delete <key>")
	}
	op, key := args[0], args[1]
	if !slices.Contains(secretKeys, key) {
		return fmt.Errorf("unknown secret %q (want one of %s)", key, strings.Join(secretKeys, ", "))
	}

	switch op {
	case "set":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read secret from stdin: %w", err)
		}
		value := strings.TrimRight(string(data), "\r\n")
		if value == "" {
			return errors.New("empty secret on stdin")
		}
		return store.Set(key, value)
	case "delete":
		return store.Delete(key)
	default:
		return fmt.Errorf("unknown secret command %q", op)
	}
}
