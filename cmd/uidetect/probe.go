package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uidetective/uidetect/apiclient"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connectivity of every configured endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		client := apiclient.New()
		failures := 0
		for _, m := range cfg.allModels() {
			res, err := client.TestConnection(cmd.Context(), m)
			switch {
			case err != nil:
				failures++
				fmt.Printf("%-20s FAIL  %v\n", m.ID, err)
			case !res.OK:
				failures++
				fmt.Printf("%-20s FAIL  http %d (%dms)\n", m.ID, res.Status, res.TimeMs)
			default:
				fmt.Printf("%-20s OK    http %d (%dms)\n", m.ID, res.Status, res.TimeMs)
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d endpoint(s) unreachable", failures)
		}
		return nil
	},
}
