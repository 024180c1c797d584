package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/config"
	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/workflow"
)

var rerunCmd = &cobra.Command{
	Use:   "rerun <case-id>",
	Short: "Start a rerun workflow for a stored case",
	Long:  "Merges modified data into the stored submission, reruns the agents, saves the next version and pushes it to case management.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		dataPath, _ := cmd.Flags().GetString("data")
		threadID, _ := cmd.Flags().GetInt("thread-id")
		wait, _ := cmd.Flags().GetBool("wait")

		modified, err := readModifiedData(dataPath)
		if err != nil {
			return err
		}

		tc, err := workflow.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
		if err != nil {
			return err
		}
		defer tc.Close()

		id, err := newOrchestrator(cfg, tc).StartRerun(ctx, workflow.RerunInput{
			CaseID:       args[0],
			ModifiedData: modified,
			ThreadID:     threadID,
		})
		if err != nil {
			return err
		}
		zap.L().Info("rerun started", zap.String("workflow_id", id), zap.String("case_id", args[0]))

		if !wait {
			fmt.Println(id)
			return nil
		}

		var res workflow.RerunResult
		if err := tc.GetWorkflow(ctx, id, "").Get(ctx, &res); err != nil {
			return eris.Wrapf(err, "rerun %s", id)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rerunCmd.Flags().String("data", "", "JSON file with the modified submission data (empty reruns the stored data)")
	rerunCmd.Flags().Int("thread-id", 0, "agent conversation thread id (default random)")
	rerunCmd.Flags().Bool("wait", false, "wait for the workflow and print its result")
	rootCmd.AddCommand(rerunCmd)
}

// readModifiedData loads the override document. An empty path yields an
// empty object.
func readModifiedData(path string) (model.Value, error) {
	if path == "" {
		return model.FromObject(model.NewObject()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Value{}, eris.Wrapf(err, "read modified data %s", path)
	}
	v, err := model.Parse(raw)
	if err != nil {
		return model.Value{}, eris.Wrapf(err, "parse modified data %s", path)
	}
	if v.Kind() != model.KindObject {
		return model.Value{}, eris.Errorf("modified data in %s must be a JSON object, got %s", path, v.Kind())
	}
	return v, nil
}
