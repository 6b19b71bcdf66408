package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/internal/orchestrator"
	"github.com/sessionlens/sessiond/internal/relationship"
	"github.com/sessionlens/sessiond/internal/semantic"
	"github.com/sessionlens/sessiond/internal/sessionstate"
)

var analyzeIntent string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Run the full analysis pipeline on one session",
	Long: `Analyze reads a session document (JSON) from a file or stdin, runs
the orchestrated analysis pipeline, and writes the result to stdout.

Examples:
  # Analyze a session file
  sessiond analyze session.json

  # Analyze from stdin with an explicit intent
  cat session.json | sessiond analyze - --intent "document this session"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeIntent, "intent", "", "caller intent hint for decision scoring")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var raw []byte
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	var session engine.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("parse session: %w", err)
	}

	log := logging.NewNop()
	sem := semantic.New(cfg.Engine, log)
	state := sessionstate.New(cfg.Engine, log)
	mapper := relationship.New(cfg.Engine, log)
	orch := orchestrator.New(cfg.Engine, sem, state, mapper, log)

	result, err := orch.Orchestrate(cmd.Context(), engine.Request{
		Session: &session,
		Intent:  analyzeIntent,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
