package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/threatlens/internal/pattern"
	"github.com/jmerrifield20/threatlens/pkg/client"
	tm "github.com/jmerrifield20/threatlens/pkg/threatmodel"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and manage the threat pattern catalog",
}

var (
	patCategory  string
	patComponent string
	patFile      string
)

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog patterns",
	Long: `list prints the patterns of the server catalog, or of the built-in
catalog plus --file when no server is configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows []client.PatternSummary
		if remote() {
			c, err := newClient()
			if err != nil {
				return err
			}
			rows, err = c.ListPatterns(cmd.Context(), tm.Category(patCategory), tm.ComponentType(patComponent))
			if err != nil {
				return fmt.Errorf("list patterns: %w", err)
			}
		} else {
			ps, err := localPatterns(patFile)
			if err != nil {
				return err
			}
			rows = filterPatterns(ps, tm.Category(patCategory), tm.ComponentType(patComponent))
		}
		return printPatterns(cmd.OutOrStdout(), rows)
	},
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate <patterns.yaml>",
	Short: "Check a pattern file against the built-in catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := localPatterns(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d patterns in combined catalog)\n", args[0], len(ps))
		return nil
	},
}

var patternsAddCmd = &cobra.Command{
	Use:   "add <pattern.json>",
	Short: "Add a pattern to the server catalog (admin token required)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !remote() {
			return fmt.Errorf("patterns add needs --server")
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if !json.Valid(raw) {
			return fmt.Errorf("%s: not valid JSON", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.AddPattern(cmd.Context(), raw); err != nil {
			return fmt.Errorf("add pattern: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Pattern added")
		return nil
	},
}

var patternsRemoveCmd = &cobra.Command{
	Use:   "remove <pattern-id>",
	Short: "Remove a pattern from the server catalog (admin token required)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !remote() {
			return fmt.Errorf("patterns remove needs --server")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.RemovePattern(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("remove pattern: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Pattern %s removed\n", args[0])
		return nil
	},
}

func init() {
	patternsListCmd.Flags().StringVar(&patCategory, "category", "", "Only patterns of this STRIDE category")
	patternsListCmd.Flags().StringVar(&patComponent, "component-type", "", "Only patterns applicable to this component type")
	patternsListCmd.Flags().StringVar(&patFile, "file", "", "Extra pattern file merged into the local catalog")

	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsValidateCmd)
	patternsCmd.AddCommand(patternsAddCmd)
	patternsCmd.AddCommand(patternsRemoveCmd)
}

// localPatterns returns the built-in catalog, extended by file when set.
func localPatterns(file string) ([]pattern.Pattern, error) {
	catalog := pattern.DefaultCatalog()
	if file == "" {
		return catalog.List(), nil
	}
	extra, err := pattern.LoadFile(file)
	if err != nil {
		return nil, err
	}
	for _, p := range extra {
		if err := catalog.Add(p); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	return catalog.List(), nil
}

func filterPatterns(ps []pattern.Pattern, category tm.Category, ctype tm.ComponentType) []client.PatternSummary {
	out := []client.PatternSummary{}
	for _, p := range ps {
		if category != "" && p.Category != category {
			continue
		}
		if ctype != "" && !p.AppliesTo(ctype) {
			continue
		}
		out = append(out, client.PatternSummary{
			ID:                   p.ID,
			Name:                 p.Name,
			Description:          p.Description,
			Category:             p.Category,
			ApplicableComponents: p.ApplicableComponents,
			Confidence:           p.Confidence,
			LastUpdated:          p.LastUpdated,
		})
	}
	return out
}

func printPatterns(w io.Writer, rows []client.PatternSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tCONFIDENCE\tNAME")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", p.ID, p.Category, p.Confidence, p.Name)
	}
	return tw.Flush()
}
