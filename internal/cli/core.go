package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/carolina/internal/core"
	"github.com/ashureev/carolina/internal/prompt"
)

func newCoreCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "core",
		Short: "Inspect and maintain the persisted core document",
	}
	cmd.AddCommand(
		newCoreShowCommand(a),
		newCoreExportCommand(a),
		newCoreImportCommand(a),
		newCoreStatusCommand(a),
		newCorePromptCommand(a),
		newCoreResetCommand(a),
		newCoreClearCacheCommand(a),
		newCorePatchCommand(a),
		newCoreSetCommand(a),
		newCoreEmotionCommand(a),
		newCoreSnapshotCommand(a),
	)
	return cmd
}

func newCoreShowCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the core document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := core.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := s.ExportSnapshot(f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(snap.Data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}

func newCoreExportCommand(a *app) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the core document to a snapshot file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := core.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := s.ExportSnapshot(f)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(snap.Data)
				return err
			}
			if output == "" {
				output = snap.Filename
				if f == core.FormatYAML {
					output = strings.TrimSuffix(output, ".json") + ".yaml"
				}
			}
			if err := os.WriteFile(output, snap.Data, 0o600); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Exported core to %s\n", successStyle.Render("✓"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Snapshot format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or - for stdout")
	return cmd
}

func newCoreImportCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the core document with a snapshot",
		Long: `Replace the core document with a snapshot file. The snapshot is migrated
and validated exactly like a stored document; a snapshot that would be
replaced wholesale by defaults is rejected. Use - to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = formatFromName(args[0])
			}
			f, err := core.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			report, err := s.ImportSnapshot(cmd.Context(), data, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Imported core snapshot\n", successStyle.Render("✓"))
			printReport(out, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Snapshot format (default from file extension)")
	return cmd
}

func formatFromName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return "yaml"
	}
	return "json"
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

func printReport(w io.Writer, r core.LoadReport) {
	keyValue(w, "Source", r.Source)
	keyValue(w, "Migration", r.Migration)
	keyValue(w, "Validation", r.Validation.Tier)
	if len(r.Validation.Repaired) > 0 {
		keyValue(w, "Repaired", strings.Join(r.Validation.Repaired, ", "))
	}
}

func newCoreStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how the core document loaded and summarize it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			doc := s.Document()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, headerStyle.Render("Carolina Olive core"))
			keyValue(out, "Schema", doc.SchemaVersion)
			keyValue(out, "Version", doc.Version)
			if doc.LastPatched != nil {
				keyValue(out, "Last patched", *doc.LastPatched)
			}
			keyValue(out, "Memory keys", len(doc.Memory))
			keyValue(out, "Snapshots", len(doc.EmotionalHistory))
			printReport(out, s.LastLoad())
			fmt.Fprintln(out)
			fmt.Fprintln(out, prompt.BuildContextSummary(doc))
			return nil
		},
	}
}

func newCorePromptCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt built from the core document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.BuildSystemPrompt(s.Document()))
			return nil
		},
	}
}

func newCoreResetCommand(a *app) *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the emotional state, or everything with --hard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			if hard {
				if err := s.HardReset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Core reset to defaults\n", successStyle.Render("✓"))
				return nil
			}
			if err := s.SoftReset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Emotional state cleared\n", successStyle.Render("✓"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "Delete the stored document and start from defaults")
	return cmd
}

func newCoreClearCacheCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Clear memory and emotional state, keeping history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Memory and emotional state cleared\n", successStyle.Render("✓"))
			return nil
		},
	}
}

func newCorePatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patch",
		Short: "Increment the core patch version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Patch(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Core is now at %s\n", successStyle.Render("✓"), s.Document().Version)
			return nil
		},
	}
}

func newCoreSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a memory value",
		Long: `Set a memory value. The value is parsed as JSON when it is valid JSON,
so numbers, booleans, arrays and objects keep their type. Anything else is
stored as a string.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.SetMemory(cmd.Context(), args[0], parseMemoryValue(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s memory.%s updated\n", successStyle.Render("✓"), args[0])
			return nil
		},
	}
}

func parseMemoryValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func newCoreEmotionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "emotion <name> <delta>",
		Short: "Adjust one emotion's intensity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.BumpEmotion(cmd.Context(), args[0], delta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %g\n",
				successStyle.Render("✓"), args[0], s.Document().EmotionalState[args[0]])
			return nil
		},
	}
}

func newCoreSnapshotCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Append the current emotional state to the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openCore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.SnapshotEmotions(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d snapshots recorded\n",
				successStyle.Render("✓"), len(s.Document().EmotionalHistory))
			return nil
		},
	}
}
