package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uidetective/uidetect/batch"
	"github.com/uidetective/uidetect/history"
	"github.com/uidetective/uidetect/internal/output"
)

var (
	exportBatchID string
	exportFormat  string
	exportPath    string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export recorded runs to CSV or JSON Lines",
		RunE:  runExport,
	}
)

func init() {
	exportCmd.Flags().StringVar(&exportBatchID, "batch", "", "batch id to export (default: most recent)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv|json")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "output file path")
}

type runWriter interface {
	WriteRun(meta *batch.RunMeta, data *batch.RunData) error
	Close() error
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.StoreDir)
	if err != nil {
		return err
	}

	batchID := exportBatchID
	if batchID == "" {
		batches := store.ListBatches()
		if len(batches) == 0 {
			return fmt.Errorf("store has no batches")
		}
		batchID = batches[0].ID
	}
	runs := store.ListRunsInBatch(batchID)
	if len(runs) == 0 {
		return fmt.Errorf("batch %s has no runs", batchID)
	}

	path := exportPath
	if path == "" {
		switch exportFormat {
		case "json":
			path = batchID + ".jsonl"
		default:
			path = batchID + ".csv"
		}
	}

	var w runWriter
	switch exportFormat {
	case "csv":
		w, err = output.NewCSVWriter(path)
	case "json":
		w, err = output.NewJSONWriter(path)
	default:
		return fmt.Errorf("unknown format %q (want csv or json)", exportFormat)
	}
	if err != nil {
		return err
	}

	// Oldest first, so row order follows execution order.
	for i := len(runs) - 1; i >= 0; i-- {
		meta := runs[i]
		data, err := store.GetRunData(cmd.Context(), meta.ID)
		if err != nil {
			w.Close()
			return err
		}
		if err := w.WriteRun(meta, data); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Printf("exported %d run(s) from batch %s to %s\n", len(runs), batchID, path)
	return nil
}
