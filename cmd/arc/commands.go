package main

import (
	"context"
	_ "crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mholt/arcstream"
	"github.com/mholt/arcstream/internal/fsutil"
)

var lsCmd = &cobra.Command{
	Use:   "ls <archive>",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		withDigest, _ := c.Flags().GetBool("digest")

		r, err := openArchive(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer tw.Flush()
		for {
			e, err := r.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "reading entry")
			}
			size := "-"
			if e.Size() != arcstream.SizeUnknown {
				size = fmt.Sprint(e.Size())
			}
			cols := []string{e.Type().String(), size, e.ModTime().Format(time.DateTime), e.Name()}
			if withDigest && e.Type() == arcstream.TypeFile {
				d, err := digest.Canonical.FromReader(r)
				if err != nil {
					return errors.Wrapf(err, "%s: computing digest", e.Name())
				}
				cols = append(cols, d.String())
			}
			fmt.Fprintln(tw, strings.Join(cols, "\t"))
		}
	},
}

var createCmd = &cobra.Command{
	Use:   "create <archive> <files...>",
	Short: "Create an archive from files and directories",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		formatName, _ := c.Flags().GetString("format")
		compression, _ := c.Flags().GetString("compress")

		f := factory()
		var format arcstream.Format
		var err error
		if compression != "" {
			format, err = f.Compressed(formatName, compression)
		} else {
			format, err = f.Lookup(formatName)
		}
		if err != nil {
			return err
		}
		a, ok := format.(arcstream.Archiver)
		if !ok {
			return errors.Errorf("%s archives cannot be written", format.Name())
		}

		dest := args[0]
		out, err := os.Create(dest)
		if err != nil {
			return err
		}
		w, err := a.OpenArchiveWriter(out)
		if err != nil {
			out.Close()
			return errors.Wrapf(err, "%s: opening writer", dest)
		}
		newEntry := func(name string, size int64) arcstream.Entry {
			e, err := f.CreateEntry(formatName, name, size)
			if err != nil {
				// every writable format creates its own entries
				panic(err)
			}
			return e
		}
		if err := arcstream.ArchiveFiles(c.Context(), w, newEntry, args[1:], dest); err != nil {
			w.Close()
			return err
		}
		return errors.Wrapf(w.Close(), "%s: closing", dest)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive> [destination]",
	Short: "Extract an archive into a directory",
	Long: `Extract an archive into a directory. The destination defaults to a
folder named after the archive, without its extensions.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(c *cobra.Command, args []string) error {
		dest := fsutil.FolderNameFromFileName(args[0])
		if len(args) > 1 {
			dest = args[1]
		}
		r, err := openArchive(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		return arcstream.Extract(c.Context(), r, dest)
	},
}

var compressCmd = &cobra.Command{
	Use:   "compress <format> <source> [destination]",
	Short: "Compress a single file",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(c *cobra.Command, args []string) error {
		overwrite, _ := c.Flags().GetBool("overwrite")
		comp, err := arcstream.LookupCompressor(args[0])
		if err != nil {
			return err
		}
		dest := args[1] + "." + args[0]
		if len(args) > 2 {
			dest = args[2]
		}
		fc := arcstream.FileCompressor{Compression: comp, OverwriteExisting: overwrite}
		return fc.CompressFile(args[1], dest)
	},
}

var decompressCmd = &cobra.Command{
	Use:   "decompress <source> [destination]",
	Short: "Decompress a single file, detecting its compression",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(c *cobra.Command, args []string) error {
		overwrite, _ := c.Flags().GetBool("overwrite")
		comp, err := detectFile(args[0])
		if err != nil {
			return err
		}
		dest := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
		if len(args) > 1 {
			dest = args[1]
		}
		if dest == args[0] {
			return errors.Errorf("%s: cannot pick a destination name, give one explicitly", args[0])
		}
		fc := arcstream.FileCompressor{Compression: comp, OverwriteExisting: overwrite}
		return fc.DecompressFile(args[0], dest)
	},
}

func detectFile(name string) (arcstream.Compression, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	comp, _, err := arcstream.DetectCompressor(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: detecting compression", name)
	}
	return comp, nil
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the supported archive and compression formats",
	Args:  cobra.NoArgs,
	Run: func(c *cobra.Command, args []string) {
		out := c.OutOrStdout()
		fmt.Fprintln(out, "archives:   ", strings.Join(arcstream.Formats(), " "))
		fmt.Fprintln(out, "compressors:", strings.Join(arcstream.Compressors(), " "))
	},
}

func init() {
	lsCmd.Flags().Bool("digest", false, "print the sha256 digest of each file")
	createCmd.Flags().StringP("format", "f", "tar", "archive format")
	createCmd.Flags().StringP("compress", "c", "", "compression format, e.g. gz")
	compressCmd.Flags().Bool("overwrite", false, "overwrite an existing destination")
	decompressCmd.Flags().Bool("overwrite", false, "overwrite an existing destination")
}

func run(args []string, stdout io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	return rootCmd.ExecuteContext(context.Background())
}
