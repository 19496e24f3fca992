package main

import (
	"io"
	"log/slog"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mholt/arcstream"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "arc",
	Short:         "Stream archives and compressed files",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.arc.yaml)")
	flags.String("encoding", "", "charset of entry names, e.g. Cp437")
	flags.BoolP("verbose", "v", false, "log driver debug output")
	viper.BindPFlag("encoding", flags.Lookup("encoding"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(lsCmd, createCmd, extractCmd, compressCmd, decompressCmd, formatsCmd)
}

// initConfig reads in the config file and ARC_ environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".arc")
	}
	viper.SetEnvPrefix("arc")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger().Debug("using config file", "path", viper.ConfigFileUsed())
	}
}

func logger() *slog.Logger {
	if !viper.GetBool("verbose") {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// factory returns the archive factory configured from flags, the
// environment and the config file.
func factory() arcstream.Factory {
	return arcstream.Factory{
		EntryEncoding: viper.GetString("encoding"),
		Logger:        logger(),
	}
}

// openArchive opens the archive file at name, undoing any compression,
// and returns a reader for its entries.
func openArchive(name string) (arcstream.ArchiveReader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	r, closer, err := openArchiveStream(name, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return closingReader{ArchiveReader: r, closer: closer}, nil
}

func openArchiveStream(name string, f *os.File) (arcstream.ArchiveReader, io.Closer, error) {
	var closer io.Closer = f
	comp, stream, err := arcstream.DetectCompressor(f)
	switch {
	case err == nil:
		cr, err := comp.OpenReader(stream)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "%s: opening %s reader", name, comp.Name())
		}
		stream = cr
		closer = multiCloser{cr, f}
	case !errors.Is(err, arcstream.ErrNoMatch):
		return nil, nil, errors.Wrapf(err, "%s: detecting compression", name)
	}

	format, stream, err := arcstream.Identify(stream)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s: identifying archive", name)
	}
	format, err = factory().Lookup(format.Name())
	if err != nil {
		return nil, nil, err
	}
	u, ok := format.(arcstream.Unarchiver)
	if !ok {
		return nil, nil, errors.Errorf("%s: %s archives cannot be read", name, format.Name())
	}
	r, err := u.OpenArchiveReader(stream)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s: opening %s reader", name, format.Name())
	}
	return r, closer, nil
}

type multiCloser []io.Closer

func (mc multiCloser) Close() error {
	var err error
	for _, c := range mc {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// closingReader closes the file and any decompressor beneath the
// archive reader.
type closingReader struct {
	arcstream.ArchiveReader
	closer io.Closer
}

func (cr closingReader) Close() error {
	err := cr.ArchiveReader.Close()
	if cerr := cr.closer.Close(); err == nil {
		err = cerr
	}
	return err
}
