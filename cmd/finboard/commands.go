package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/finboard-core/internal/acquisition"
	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/widget"
)

func newFieldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields <url>",
		Short: "List the fields of a JSON API response",
		Long:  "Fetch a URL once and print its flattened fields and discovered paths, the way the add-widget flow tests an API.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFields,
	}
	cmd.Flags().String("search", "", "Only show fields whose path contains this text")
	cmd.Flags().Bool("arrays-only", false, "Only show array fields")
	return cmd
}

// fieldsOutput is printed by the fields command.
type fieldsOutput struct {
	URL        string            `json:"url"`
	Fields     []fieldpath.Field `json:"fields"`
	Total      int               `json:"total"`
	Discovered []string          `json:"discovered"`
}

func runFields(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	search, _ := cmd.Flags().GetString("search")
	arraysOnly, _ := cmd.Flags().GetBool("arrays-only")

	url := args[0]
	if err := widget.ValidateAPIURL(url); err != nil {
		return err
	}

	fetcher := acquisition.NewHTTPFetcher(cfg.GetHTTPTimeout(), cfg.Acquisition.MaxResponseBytes, cfg.Acquisition.UserAgent)
	doc, err := fetcher.Fetch(cmd.Context(), url)
	if err != nil {
		return fmt.Errorf("API test failed: %w", err)
	}

	all := fieldpath.Flatten(doc)
	out := fieldsOutput{
		URL:        url,
		Fields:     fieldpath.Filter(all, fieldpath.FilterOptions{Search: search, ArraysOnly: arraysOnly}),
		Total:      len(all),
		Discovered: fieldpath.Discover(doc),
	}
	if out.Discovered == nil {
		out.Discovered = []string{}
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the dashboard configuration",
		Long:  "Write the saved widget configurations as a dashboard document to stdout or a file.",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	cmd.Flags().StringP("out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store := widget.NewStore(widget.NewSQLiteRepository(db.DB))
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading dashboard: %w", err)
	}

	data, err := widget.Export(store.Configs(), time.Now())
	if err != nil {
		return fmt.Errorf("exporting dashboard: %w", err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "exported %d widgets to %s\n", store.Count(), out)
	return nil
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the dashboard from an exported document",
		Long:  "Validate a dashboard document and replace every saved widget with its contents. An invalid document leaves the dashboard untouched.",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().Bool("strict", false, "Reject documents saved by a different format version")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	strict, _ := cmd.Flags().GetBool("strict")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	var cfgs []widget.Config
	if strict {
		doc, loadErr := widget.LoadDocument(data)
		if loadErr != nil {
			return fmt.Errorf("failed to import dashboard: %w", loadErr)
		}
		cfgs = doc.Widgets
	} else {
		cfgs, err = widget.Import(data)
		if err != nil {
			return fmt.Errorf("failed to import dashboard: %w", err)
		}
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store := widget.NewStore(widget.NewSQLiteRepository(db.DB))
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading dashboard: %w", err)
	}
	if err := store.Replace(ctx, cfgs); err != nil {
		return fmt.Errorf("replacing dashboard: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d widgets\n", store.Count())
	return nil
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List dashboard templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printTemplates(cmd.OutOrStdout(), widget.Templates())
		},
	}
}

func printTemplates(w io.Writer, templates []widget.Template) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWIDGETS\tDESCRIPTION")
	for _, t := range templates {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, t.Name, len(t.Widgets), t.Description)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
