package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uidetective/uidetect/apiclient"
	"github.com/uidetective/uidetect/batch"
	"github.com/uidetective/uidetect/detect"
	"github.com/uidetective/uidetect/history"
	"github.com/uidetective/uidetect/internal/imagesize"
)

var (
	runImage      string
	runPrompt     string
	runDinoPrompt string
	runIterations int

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a detection batch against all enabled models",
		RunE:  runBatch,
	}
)

func init() {
	runCmd.Flags().StringVarP(&runImage, "image", "i", "", "path to the screenshot image")
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "element to locate, e.g. \"the login button\"")
	runCmd.Flags().StringVar(&runDinoPrompt, "dino-prompt", "", "prompt override for detector endpoints")
	runCmd.Flags().IntVarP(&runIterations, "iterations", "n", 1, "number of runs over the same image and prompt")
	runCmd.MarkFlagRequired("image")
	runCmd.MarkFlagRequired("prompt")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	models := cfg.enabledModels()
	if len(models) == 0 {
		return fmt.Errorf("no enabled models in %s", configPath)
	}

	image, err := os.ReadFile(runImage)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	store, err := history.Open(cfg.StoreDir)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dinoPrompt := runDinoPrompt
	if dinoPrompt == "" {
		dinoPrompt = cfg.DinoPrompt
	}
	if dinoPrompt == "" {
		dinoPrompt = runPrompt
	}

	req := &batch.Request{
		Iterations:     runIterations,
		Image:          image,
		ImageName:      filepath.Base(runImage),
		Prompt:         runPrompt,
		DinoPrompt:     dinoPrompt,
		EnabledModels:  models,
		SystemTemplate: cfg.SystemTemplate,
	}

	// SIGINT cancels cooperatively: the current iteration finishes, the
	// next one never starts.
	token := &batch.CancelToken{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "cancelling after the current iteration...")
		token.Cancel()
	}()

	obs := batch.ObserverFuncs{
		RunStart: func(ev batch.RunStart) {
			fmt.Printf("run %d/%d started (%d models)\n", ev.RunMeta.BatchSeq, runIterations, len(models))
		},
		Progress: func(ev batch.Progress) {
			printRunResults(cmd.Context(), store, ev)
		},
	}

	runner := batch.NewRunner(store, apiclient.New(), imagesize.Sizer{}, logger)
	if err := runner.RunBatch(cmd.Context(), req, obs, token); err != nil {
		return err
	}

	logger.Info("batch finished", zap.String("store", cfg.StoreDir))
	return nil
}

func printRunResults(ctx context.Context, store *history.Store, ev batch.Progress) {
	data, err := store.GetRunData(ctx, ev.RunID)
	if err != nil {
		fmt.Printf("run %d/%d done (#%s)\n", ev.Done, ev.Total, ev.RunLabel)
		return
	}
	fmt.Printf("run %d/%d done (#%s): ok=%d err=%d\n",
		ev.Done, ev.Total, ev.RunLabel, ev.RunMeta.Summary.OKCount, ev.RunMeta.Summary.ErrorCount)
	for _, res := range data.Results {
		fmt.Printf("  %-20s %s", res.ModelID, res.Status)
		if res.LatencyMs != nil {
			fmt.Printf("  %dms", *res.LatencyMs)
		}
		if res.Parsed != nil && res.Parsed.Primary != nil {
			fmt.Printf("  %s", formatDetection(*res.Parsed.Primary))
		}
		if res.ErrorMessage != "" {
			fmt.Printf("  %s", res.ErrorMessage)
		}
		fmt.Println()
	}
}

func formatDetection(d detect.Detection) string {
	conf := "-"
	if d.Confidence != nil {
		conf = fmt.Sprintf("%.2f", *d.Confidence)
	}
	if d.Type == detect.TypeBBox {
		return fmt.Sprintf("bbox(%.0f,%.0f %.0fx%.0f) conf=%s", d.X, d.Y, d.Width, d.Height, conf)
	}
	return fmt.Sprintf("point(%.0f,%.0f) conf=%s", d.X, d.Y, conf)
}
