package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/agents"
	"github.com/sells-group/submission-intake/internal/model"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage the agent catalog",
}

// -- agents seed --

var agentsSeedCmd = &cobra.Command{
	Use:   "seed <records.json>",
	Short: "Load agent catalog records from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := readAgentRecords(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertAgents(ctx, records)
		if err != nil {
			return eris.Wrap(err, "agents seed")
		}
		zap.L().Info("agent catalog seeded", zap.Int64("records", n), zap.String("file", args[0]))
		return nil
	},
}

// -- agents list --

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the configured roster and its catalog entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		roster, err := agents.LoadRoster(cfg.Agents.RosterFile)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.AgentCatalog(ctx, roster.IDs())
		if err != nil {
			return eris.Wrap(err, "agents list")
		}
		formatRoster(os.Stdout, roster, records)
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsSeedCmd)
	agentsCmd.AddCommand(agentsListCmd)
	rootCmd.AddCommand(agentsCmd)
}

// readAgentRecords accepts either a JSON array of records or a single
// record object.
func readAgentRecords(path string) ([]model.AgentRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read agent records %s", path)
	}

	var records []model.AgentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		var one model.AgentRecord
		if err1 := json.Unmarshal(raw, &one); err1 != nil {
			return nil, eris.Wrapf(err, "parse agent records %s", path)
		}
		records = []model.AgentRecord{one}
	}
	for i, r := range records {
		if r.AgentID == "" {
			return nil, eris.Errorf("agent record %d in %s has no AgentID", i, path)
		}
	}
	return records, nil
}

// formatRoster writes each roster entry with its catalog status to w.
func formatRoster(out io.Writer, roster agents.Roster, records []model.AgentRecord) {
	byID := make(map[string]model.AgentRecord, len(records))
	for _, r := range records {
		byID[r.AgentID] = r
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tAGENT_ID\tCATALOG\tMODEL")
	_, _ = fmt.Fprintln(w, "---\t--------\t-------\t-----")
	for _, e := range roster {
		status, llm := "missing", ""
		if r, ok := byID[e.ID]; ok {
			status = "ok"
			llm = r.LLMModel
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.DisplayName, e.ID, status, llm)
	}
	_ = w.Flush()
}
