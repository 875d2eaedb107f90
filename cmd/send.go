package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thetimii/dashboard-sub001/internal/app"
	"github.com/Thetimii/dashboard-sub001/internal/config"
	"github.com/Thetimii/dashboard-sub001/internal/logger"
	"github.com/Thetimii/dashboard-sub001/internal/model"
)

var (
	sendFile     string
	sendTestCode string
)

// sendCmd dispatches one event from a JSON file ("-" for stdin) and prints the outcome.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch a single lifecycle event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		ev, err := readEvent(cmd.InOrStdin(), sendFile)
		if err != nil {
			return err
		}
		if sendTestCode != "" {
			ev = ev.WithTestEventCode(sendTestCode)
		}

		a, err := app.New(cmd.Context(), cfg, config.EnvSecrets{}, log)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out, err := a.Router.Dispatch(cmd.Context(), ev)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if !out.OverallSucceeded {
			return fmt.Errorf("dispatch %s finished with failures", out.DispatchID)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "event JSON file, - for stdin")
	sendCmd.Flags().StringVar(&sendTestCode, "test-event-code", "", "route the conversion to the ad platform's test pipeline")
	_ = sendCmd.MarkFlagRequired("file")
}

func readEvent(stdin io.Reader, path string) (model.LifecycleEvent, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return model.LifecycleEvent{}, err
		}
		defer f.Close()
		r = f
	}

	var in model.LifecycleEvent
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return model.LifecycleEvent{}, fmt.Errorf("decode event: %w", err)
	}

	kind, ok := model.ParseEventKind(string(in.Kind))
	if !ok {
		return model.LifecycleEvent{}, &model.ValidationError{Field: "kind", Reason: "unknown event kind " + string(in.Kind)}
	}

	ev := model.NewLifecycleEvent(kind, in.OccurredAt, in.Subject, in.Payload)
	if in.TestEventCode != "" {
		ev = ev.WithTestEventCode(in.TestEventCode)
	}
	return ev, nil
}
