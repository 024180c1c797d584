package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/submission-intake/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history <case-id>",
	Short: "List the stored versions of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		caseID := args[0]
		if latest, _ := cmd.Flags().GetBool("latest"); latest {
			sub, err := st.LatestSubmission(ctx, caseID)
			if err != nil {
				return eris.Wrap(err, "history latest submission")
			}
			resp, err := st.LatestAgentResponse(ctx, caseID)
			if err != nil {
				return eris.Wrap(err, "history latest agent response")
			}
			if sub == nil {
				fmt.Fprintf(os.Stderr, "No submission stored for case %s.\n", caseID)
				return nil
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"submission": sub, "agent_response": resp})
		}

		docs, err := st.SubmissionHistory(ctx, caseID)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if len(docs) == 0 {
			fmt.Fprintf(os.Stderr, "No history for case %s.\n", caseID)
			return nil
		}

		formatHistory(os.Stdout, docs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("latest", false, "print the current submission and agent response as JSON")
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular list of submission versions to w.
func formatHistory(out io.Writer, docs []model.SubmissionDocument) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tTYPE\tTX_ID\tARTIFI_ID\tCATEGORIES\tCREATED")
	_, _ = fmt.Fprintln(w, "---\t----\t-----\t---------\t----------\t-------")

	for _, d := range docs {
		categories := 0
		if obj, ok := d.SubmissionData.Object(); ok {
			categories = obj.Len()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			d.HistorySequenceID,
			d.TransactionType,
			d.TxID,
			truncateID(d.ArtifiID),
			categories,
			d.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
