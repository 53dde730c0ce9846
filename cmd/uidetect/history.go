package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uidetective/uidetect/history"
)

var (
	historyWipe bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded batches and runs",
		RunE:  runHistory,
	}
)

func init() {
	historyCmd.Flags().BoolVar(&historyWipe, "wipe", false, "delete all recorded batches, runs and images")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.StoreDir)
	if err != nil {
		return err
	}

	if historyWipe {
		if err := store.WipeAll(); err != nil {
			return err
		}
		fmt.Println("history wiped")
		return nil
	}

	batches := store.ListBatches()
	if len(batches) == 0 {
		fmt.Println("no batches recorded")
		return nil
	}
	for _, b := range batches {
		avg := "-"
		if b.Summary.AvgLatencyMs != nil {
			avg = fmt.Sprintf("%dms", *b.Summary.AvgLatencyMs)
		}
		fmt.Printf("%s  %s  %q  %dx%d  runs=%d/%d ok=%d err=%d avg=%s\n",
			b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Prompt,
			b.ImageW, b.ImageH, b.Summary.RunsDone, b.Iterations,
			b.Summary.OKCount, b.Summary.ErrorCount, avg)
		for _, r := range store.ListRunsInBatch(b.ID) {
			fmt.Printf("  #%-4s %s  seq=%d ok=%d err=%d\n",
				store.LabelForRun(r.ID), r.ID, r.BatchSeq,
				r.Summary.OKCount, r.Summary.ErrorCount)
		}
	}
	return nil
}
