package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"chatrelay/pkg/config"
	"chatrelay/pkg/reply"

	"github.com/spf13/cobra"
)

var (
	showTrace        bool
	normalizeDepth   int
	normalizeDefault string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file]",
	Short: "Render a raw webhook payload as display text",
	Long:  "Reads a webhook response body from a file or stdin and prints the text chatrelay would display for it.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			file, err := os.Open(args[0])
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to open payload: %v\n", err)
				return
			}
			defer file.Close()
			input = file
		}

		pipeline, err := normalizePipeline()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to load config: %v\n", err)
			return
		}

		if err := runNormalize(input, cmd.OutOrStdout(), pipeline, showTrace); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to normalize payload: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	normalizeCmd.Flags().BoolVar(&showTrace, "trace", false, "print the resolution strategy and guards")
	normalizeCmd.Flags().IntVar(&normalizeDepth, "max-depth", 0, "resolution depth limit (default from config or 64)")
	normalizeCmd.Flags().StringVar(&normalizeDefault, "fallback", "", "text shown when nothing displayable is found")
}

// normalizePipeline uses reply settings from config when present; a missing
// config file is not an error here.
func normalizePipeline() (reply.Pipeline, error) {
	var pipeline reply.Pipeline

	cfg, err := config.LoadConfig()
	switch {
	case err == nil:
		pipeline.Resolver.MaxDepth = cfg.Reply.MaxDepth
		pipeline.Fallback = cfg.Reply.Fallback
	case !errors.Is(err, config.ErrNotFound):
		return reply.Pipeline{}, err
	}

	if normalizeDepth > 0 {
		pipeline.Resolver.MaxDepth = normalizeDepth
	}
	if strings.TrimSpace(normalizeDefault) != "" {
		pipeline.Fallback = normalizeDefault
	}

	return pipeline, nil
}

func runNormalize(in io.Reader, out io.Writer, pipeline reply.Pipeline, trace bool) error {
	body, err := io.ReadAll(io.LimitReader(in, config.DefaultMaxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if len(body) > config.DefaultMaxBodyBytes {
		return fmt.Errorf("payload exceeds %d bytes", config.DefaultMaxBodyBytes)
	}

	text, result := pipeline.Run(reply.DecodeBody(body))
	fmt.Fprintln(out, text)

	if trace {
		fmt.Fprintf(out, "strategy: %s\n", result.Strategy())
		if len(result.Path) > 1 {
			fmt.Fprintf(out, "path: %s\n", strings.Join(result.Path, " > "))
		}
		fmt.Fprintf(out, "depth_exceeded: %t\ncycle_detected: %t\nfallback: %t\n", result.DepthExceeded, result.CycleDetected, result.Fallback)
	}

	return nil
}
