package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strongdm/crashkit/pkg/crashkit"
)

type parseOptions struct {
	typeName string
	message  string
	ext      string
	table    bool
}

func newParseCmd(a *app) *cobra.Command {
	opts := &parseOptions{}

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Translate a managed stack trace into frames",
		Long: `Reads a managed stack trace from file, or stdin when no file is given,
and prints the translated throwable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open stack trace: %w", err)
				}
				defer f.Close()
				in = f
			}
			return runParse(a, opts, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.typeName, "type", "System.Exception", "Exception type name")
	cmd.Flags().StringVar(&opts.message, "message", "", "Exception message")
	cmd.Flags().StringVar(&opts.ext, "ext", "", "Source extension for file labels (default from config)")
	cmd.Flags().BoolVar(&opts.table, "table", false, "Print frames as a table")
	return cmd
}

func runParse(a *app, opts *parseOptions, in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read stack trace: %w", err)
	}

	ext := opts.ext
	if ext == "" {
		ext = a.cfg.Translator.SourceExtension
	}
	translator := crashkit.NewTranslator(
		crashkit.WithSourceExtension(ext),
		crashkit.WithMaxCauseDepth(a.cfg.Translator.MaxCauseDepth),
		crashkit.WithTranslatorLogger(a.logger),
	)

	t := translator.Translate(&crashkit.Exception{
		Type:       opts.typeName,
		Message:    opts.message,
		StackTrace: string(data),
	})
	a.logger.Debug("stack trace translated", zap.Int("frames", len(t.Frames)))

	if !opts.table {
		_, err = io.WriteString(out, t.String())
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLASS\tMETHOD\tFILE\tLINE")
	for _, f := range t.Frames {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", f.ClassName, f.MethodSignature, f.FileLabel, f.LineNumber)
	}
	return w.Flush()
}
