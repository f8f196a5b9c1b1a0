// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/extract-server/internal/convert"
	"github.com/pdiddy/extract-server/internal/secrets"
	"github.com/pdiddy/extract-server/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Convert local files to Markdown",
	Long: `Convert runs the server's conversion path on local files. Without
--out-dir the Markdown of each file is printed to stdout; status lines go to
stderr. With --out-dir each input produces <name>.md in that directory and
existing outputs are skipped unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	apiKey := loadedSecrets.Or(secrets.KeyConversionService, cfg.Conversion.ServiceAPIKey)
	conv, err := convert.New(cmd.Context(), cfg.Conversion, apiKey, logger)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out-dir")
	frontmatter, _ := cmd.Flags().GetBool("frontmatter")
	force, _ := cmd.Flags().GetBool("force")

	rep := &cliReporter{out: cmd.OutOrStdout(), status: cmd.ErrOrStderr()}
	result := convert.ConvertFiles(cmd.Context(), conv, args, convert.BatchOptions{
		OutDir:      outDir,
		Frontmatter: frontmatter,
		Force:       force,
		Timeout:     cfg.Conversion.Timeout,
	}, rep)

	if result.HasFailures() {
		return fmt.Errorf("%d file(s) failed conversion", result.Failed)
	}
	return nil
}

var _ convert.Reporter = (*cliReporter)(nil)

// cliReporter prints Markdown to out and status lines to status. Multiple
// documents printed to out are separated by a horizontal rule.
type cliReporter struct {
	out     io.Writer
	status  io.Writer
	printed int
}

func (r *cliReporter) Status(format string, args ...any) {
	fmt.Fprintf(r.status, format+"\n", args...)
}

func (r *cliReporter) Markdown(doc *types.Document) {
	if r.printed > 0 {
		fmt.Fprint(r.out, "\n---\n\n")
	}
	md := doc.ExportMarkdown()
	fmt.Fprint(r.out, md)
	if !strings.HasSuffix(md, "\n") {
		fmt.Fprintln(r.out)
	}
	r.printed++
}

func init() {
	convertCmd.Flags().String("out-dir", "", "write <name>.md files here instead of stdout")
	convertCmd.Flags().Bool("frontmatter", false, "prepend YAML frontmatter to written files")
	convertCmd.Flags().Bool("force", false, "overwrite existing output files")

	rootCmd.AddCommand(convertCmd)
}
