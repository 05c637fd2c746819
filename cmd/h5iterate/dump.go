package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scigolib/h5iterate/internal/hexdump"
)

func newDumpCmd(a *app) *cobra.Command {
	var (
		offset int64
		length int
	)

	cmd := &cobra.Command{
		Use:   "dump [flags] <file.h5>",
		Short: "Dump raw bytes of a file in hex for debugging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var body bytes.Buffer
			res, err := hexdump.DumpFile(&body, path, offset, length)
			if err != nil {
				a.log.Errorw("dump failed", "file", path, "error", err)
				return errReported
			}
			if res.Truncated {
				a.log.Warnw("requested length exceeds available bytes",
					"requested", length, "dumped", res.Written)
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "Dumping %d bytes at offset 0x%x (%d) of %s (size: %d bytes):\n",
				res.Written, offset, offset, path, res.FileSize); err != nil {
				return err
			}
			_, err = body.WriteTo(out)
			return err
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "offset in file to start dumping from")
	cmd.Flags().IntVar(&length, "length", 128, "number of bytes to dump")
	return cmd
}
