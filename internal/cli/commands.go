package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/asad/blobsync/internal/archive"
)

func newPutCommand(a *app) *cobra.Command {
	var (
		prevPath string
		origin   string
		fresh    bool
	)

	cmd := &cobra.Command{
		Use:   "put <container> <local-path> <blob>",
		Short: "Upload a local file as a blob",
		Long: `Upload a local file as a blob.

Without --new an existing blob is deleted first, unless --origin local (or a
--prev-path starting with "/") says the object was never archived.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0], args[2])
			if err != nil {
				return err
			}
			ctx, cancel := a.opContext(cmd.Context())
			defer cancel()

			if fresh {
				return reportCode(a.adapter.PutNewFile(ctx, ref, args[1]))
			}

			o := archive.OriginFromPrevPath(prevPath)
			if cmd.Flags().Changed("origin") {
				if o, err = archive.ParseOrigin(origin); err != nil {
					return err
				}
			}
			return reportCode(a.adapter.PutTheFile(ctx, ref, args[1], o))
		},
	}

	cmd.Flags().StringVar(&prevPath, "prev-path", "", "previous physical path of the object")
	cmd.Flags().StringVar(&origin, "origin", "", "where the previous copy lives: local, remote or unknown")
	cmd.Flags().BoolVar(&fresh, "new", false, "upload without checking for an existing blob")
	cmd.MarkFlagsMutuallyExclusive("prev-path", "origin")
	return cmd
}

// reportCode prefixes a write-path failure with its archive code.
func reportCode(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%d] %w", archive.CodeOf(err), err)
}

func newGetCommand(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "get <container> <blob> <dest>",
		Short: "Download a blob into a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := strconv.ParseUint(mode, 8, 32)
			if err != nil {
				return fmt.Errorf("invalid --mode %q: %w", mode, err)
			}
			ref, err := a.ref(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.opContext(cmd.Context())
			defer cancel()

			return a.adapter.GetTheFile(ctx, ref, args[2], os.FileMode(perm).Perm())
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "0644", "octal permissions of the destination file")
	return cmd
}

func newStatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <container> <blob>",
		Short: "Report whether a blob exists",
		Long:  `Report whether a blob exists. Exits with status 1 when it does not.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.opContext(cmd.Context())
			defer cancel()

			if !a.adapter.GetTheFileStatus(ctx, ref) {
				fmt.Fprintln(cmd.OutOrStdout(), "not found")
				return &ExitError{Code: 1}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "found")
			return nil
		},
	}
}

func newLengthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "length <container> <blob>",
		Short: "Print the size of a blob in bytes, or -1 when it does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.opContext(cmd.Context())
			defer cancel()

			length, err := a.adapter.GetTheFileLength(ctx, ref)
			if err != nil {
				return err
			}
			if length < 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "-1")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d (%s)\n", length, humanize.IBytes(uint64(length)))
			return nil
		},
	}
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <container> <blob>",
		Short: "Delete a blob; deleting an absent blob succeeds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.ref(args[0], args[1])
			if err != nil {
				return err
			}
			ctx, cancel := a.opContext(cmd.Context())
			defer cancel()

			return a.adapter.DeleteTheFile(ctx, ref)
		},
	}
}
