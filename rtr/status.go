// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rtr

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Status writes a human readable session overview to the writer. It is
// served on the status HTTP endpoint.
func (e *Engine) Status(w io.Writer) {
	sessions := e.Sessions.All()
	fmt.Fprintf(w, "SESSIONS: %d\n\n", len(sessions))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "DESCRIPTION", "STATE", "MESSAGES", "BYTES", "LAST EVENT"})
	for _, s := range sessions {
		st := s.Status()
		lastEvent := "never"
		if st.LastEvent != 0 {
			lastEvent = time.Unix(st.LastEvent, 0).UTC().Format(time.RFC3339)
		}
		table.Append([]string{
			strconv.FormatUint(uint64(s.ID()), 10),
			st.Description,
			st.State,
			strconv.FormatUint(st.RxMessages, 10),
			strconv.FormatUint(st.RxBytes, 10),
			lastEvent,
		})
	}
	table.Render()
}
