package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/cobra"

	"github.com/fansoftheone/engine/internal/artifact"
	"github.com/fansoftheone/engine/internal/config"
	"github.com/fansoftheone/engine/internal/token"
)

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the engine server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/health")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s engine is %s", result["brand"], result["status"])
		printStatus("Server", "%s", client.baseURL)
		printStatus("Version", "%s", result["version"])
		return nil
	},
}

// --- convert ---

type convertResult struct {
	ID               string                    `json:"id"`
	Brand            string                    `json:"brand"`
	StructuredOutput artifact.StructuredOutput `json:"structured_output"`
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert free text into an artifact",
	Long: `Convert free text into a structured, persisted artifact.

Examples:
  engine convert --text "Build a greenhouse" --mode plan
  engine convert --file ./brief.md
  engine convert --file ./brief.pdf --mode review`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		mode, _ := cmd.Flags().GetString("mode")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if text != "" && file != "" {
			return fmt.Errorf("--text and --file are mutually exclusive")
		}

		if file != "" {
			content, err := readInputFile(file)
			if err != nil {
				return err
			}
			text = content
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/engine/convert", map[string]string{
			"raw_input": text,
			"mode":      mode,
		})
		if err != nil {
			return err
		}

		var result convertResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created artifact %s", result.ID)
		printStatus("Mode", "%s", result.StructuredOutput.Mode)
		printStatus("Summary", "%s", result.StructuredOutput.Summary)
		for i, step := range result.StructuredOutput.ExecutionPlan {
			fmt.Fprintf(stderr, "    %d. %s\n", i+1, step)
		}
		fmt.Fprintln(stdout, result.ID)
		return nil
	},
}

func init() {
	convertCmd.Flags().String("text", "", "text to convert")
	convertCmd.Flags().String("file", "", "read input from a text or PDF file")
	convertCmd.Flags().String("mode", "plan", "conversion mode label")
}

// readInputFile returns the text content of path. PDF files are reduced to
// their plain text.
func readInputFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDFText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

func readPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return text, nil
}

// --- artifact ---

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect or export stored artifacts",
}

var artifactShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an artifact as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/engine/artifacts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var a any
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		return printJSON(a)
	},
}

var artifactExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Download an artifact bundle (zip) directly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/engine/artifacts/"+url.PathEscape(args[0])+"/export")
		if err != nil {
			return err
		}

		path, n, err := saveArchive(resp, output)
		if err != nil {
			return err
		}
		printSuccess("Wrote %s (%d bytes)", path, n)
		return nil
	},
}

func init() {
	artifactExportCmd.Flags().String("output", "", "output file path (default: server-provided filename)")
	artifactCmd.AddCommand(artifactShowCmd)
	artifactCmd.AddCommand(artifactExportCmd)
}

// --- token ---

type exportToken struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage one-time download tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <artifact-id>",
	Short: "Issue a single-use download token for an artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetInt("ttl")
		if ttl < token.MinTTLSeconds || ttl > token.MaxTTLSeconds {
			return fmt.Errorf("--ttl must be between %d and %d seconds", token.MinTTLSeconds, token.MaxTTLSeconds)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/engine/export-token", map[string]any{
			"artifact_id": args[0],
			"ttl_seconds": ttl,
		})
		if err != nil {
			return err
		}

		var result exportToken
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Issued download token")
		printStatus("Expires", "%s", result.ExpiresAt)
		printStatus("URL", "%s", client.baseURL+"/engine/download/"+url.PathEscape(result.Token))
		fmt.Fprintln(stdout, result.Token)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().Int("ttl", token.DefaultTTLSeconds, "token lifetime in seconds")
	tokenCmd.AddCommand(tokenIssueCmd)
}

// --- download ---

var downloadCmd = &cobra.Command{
	Use:   "download <token>",
	Short: "Redeem a download token and save the bundle",
	Long: `Redeem a download token and save the bundle.

The token is consumed by this request whether or not it succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/engine/download/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		path, n, err := saveArchive(resp, output)
		if err != nil {
			return err
		}
		printSuccess("Wrote %s (%d bytes)", path, n)
		return nil
	},
}

func init() {
	downloadCmd.Flags().String("output", "", "output file path (default: server-provided filename)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration and where each value comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := config.Show()
		if err != nil {
			return err
		}

		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s  (%s, env %s)\n", colorize(colorBold, k.Key), k.Value, k.Source, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
