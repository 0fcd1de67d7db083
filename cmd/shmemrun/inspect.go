/*
 *
 * Copyright 2025 Hewlett Packard Enterprise Development LP.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cray-HPE/uas-mgr/internal/shmem"
)

func newInspectCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session>",
		Short: "Print the header and PE table of a live session segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := shmem.OpenSession(args[0], f.segmentDir)
			if err != nil {
				return err
			}
			defer seg.Close()
			printSession(cmd.OutOrStdout(), seg.Snapshot())
			return nil
		},
	}
}

func printSession(w io.Writer, st shmem.SessionState) {
	fmt.Fprintf(w, "=== Session %s ===\n", st.Name)
	fmt.Fprintf(w, "Path: %s\n", st.Path)
	fmt.Fprintf(w, "Segment size: %d bytes\n", st.TotalSize)
	fmt.Fprintf(w, "Launcher PID: %d\n", st.LauncherPID)
	fmt.Fprintf(w, "PEs: %d attached: %d finalized: %d\n", st.NPEs, st.Attached, st.Finalized)
	fmt.Fprintf(w, "Barrier generation: %d arrived: %d\n", st.Generation, st.Arrived)
	fmt.Fprintf(w, "Aborted: %t\n", st.Aborted)

	fmt.Fprintf(w, "\n=== PE Slots ===\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PE\tPID\tSTATE\tINIT\tFINALIZE")
	for _, s := range st.Slots {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", s.PE, s.PID, shmem.SlotStateName(s.State), stamp(s.InitNanos), stamp(s.FiniNanos))
	}
	tw.Flush()
}

func stamp(nanos int64) string {
	if nanos == 0 {
		return "-"
	}
	return time.Unix(0, nanos).UTC().Format(time.RFC3339Nano)
}
