package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <package-id>=<file.json>...",
	Short: "Normalize raw data package files offline",
	Long: "Applies the normalizer to raw data package responses saved on disk and prints the resulting submission data. " +
		"Each argument pairs a data package ID with a JSON file. Use --list to print the known package IDs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			listPackages(os.Stdout)
			return nil
		}
		if len(args) == 0 {
			return eris.New("normalize: at least one <package-id>=<file.json> argument is required")
		}

		inputs := make([]packageFile, 0, len(args))
		for _, arg := range args {
			pf, err := parsePackageArg(arg)
			if err != nil {
				return err
			}
			inputs = append(inputs, pf)
		}

		sub, err := normalizeFiles(inputs)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sub)
	},
}

func init() {
	normalizeCmd.Flags().Bool("list", false, "list known data package IDs and their categories")
	rootCmd.AddCommand(normalizeCmd)
}

type packageFile struct {
	PackageID string
	Path      string
}

func parsePackageArg(arg string) (packageFile, error) {
	id, path, ok := strings.Cut(arg, "=")
	if !ok || id == "" || path == "" {
		return packageFile{}, eris.Errorf("normalize: argument %q must be <package-id>=<file.json>", arg)
	}
	if _, known := normalize.Lookup(id); !known {
		return packageFile{}, eris.Errorf("normalize: unknown data package %q", id)
	}
	return packageFile{PackageID: id, Path: filepath.Clean(path)}, nil
}

// normalizeFiles reads each raw package response and folds it into one
// submission document.
func normalizeFiles(inputs []packageFile) (model.Value, error) {
	var data model.SubmissionData
	for _, in := range inputs {
		raw, err := os.ReadFile(in.Path)
		if err != nil {
			return model.Value{}, eris.Wrapf(err, "normalize: read %s", in.Path)
		}
		v, err := model.Parse(raw)
		if err != nil {
			return model.Value{}, eris.Wrapf(err, "normalize: parse %s", in.Path)
		}
		if err := normalize.Apply(&data, in.PackageID, v); err != nil {
			return model.Value{}, eris.Wrapf(err, "normalize: %s", in.Path)
		}
	}
	return data.Value()
}

func listPackages(out io.Writer) {
	for _, p := range normalize.Packages {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", p.ID, p.Category)
	}
}
