package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type reportOptions struct {
	role        string
	agent       string
	stage       string
	from        string
	to          string
	spreadsheet string
	format      string
}

var reportOpts reportOptions

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print one dashboard view and exit",
	Long: `report loads the lead tracker once, composes the requested view and
writes it to stdout. Logs go to stderr.`,
	Example: `  leaddash report --role client
  leaddash report --role agent --agent Sarah --format yaml
  leaddash report --from 2026-01-12 --to 2026-01-16`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, reportOpts)
	},
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportOpts.role, "role", string(model.RoleAdmin), "view to compose: admin, client or agent")
	f.StringVar(&reportOpts.agent, "agent", "", "agent name for the agent view")
	f.StringVar(&reportOpts.stage, "stage", "", "narrow the agent's lead list to one stage")
	f.StringVar(&reportOpts.from, "from", "", "first follow-up day, YYYY-MM-DD")
	f.StringVar(&reportOpts.to, "to", "", "last follow-up day, YYYY-MM-DD")
	f.StringVar(&reportOpts.spreadsheet, "spreadsheet", "", "override the configured spreadsheet")
	f.StringVar(&reportOpts.format, "format", "json", "output format: json or yaml")
}

func runReport(cmd *cobra.Command, opts reportOptions) error {
	ctx := cmd.Context()

	req, err := opts.viewRequest()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.cleanup()

	aggOpts, err := opts.aggregateOptions(time.Now(), a.location)
	if err != nil {
		return err
	}

	snap, err := a.snapshots.Get(ctx, opts.spreadsheet)
	if err != nil {
		return err
	}
	logger.Info(ctx, "snapshot loaded", "spreadsheet", snap.Spreadsheet, "leads", len(snap.Leads), "issues", snap.Issues)

	view, err := service.Compose(snap, req, aggOpts)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), view, opts.format)
}

func (o reportOptions) viewRequest() (service.ViewRequest, error) {
	req := service.ViewRequest{
		Role:  model.Role(strings.ToLower(o.role)),
		Agent: o.agent,
	}
	if !req.Role.Valid() {
		return req, fmt.Errorf("%w: unknown role %q", service.ErrInvalidArgument, o.role)
	}
	if o.stage != "" {
		stage, ok := model.ParseStage(o.stage)
		if !ok {
			return req, fmt.Errorf("%w: unknown stage %q", service.ErrInvalidArgument, o.stage)
		}
		req.Stage = &stage
	}
	return req, nil
}

func (o reportOptions) aggregateOptions(now time.Time, loc *time.Location) (service.AggregateOptions, error) {
	opts := service.AggregateOptions{Now: now, Location: loc}
	var err error
	opts.FollowUpFrom, opts.FollowUpTo, err = service.ParseFollowUpWindow(o.from, o.to, now, loc)
	return opts, err
}

// writeReport encodes view as indented JSON or as YAML with the same keys
func writeReport(w io.Writer, view *model.View, format string) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)

	case "yaml", "yml":
		// go through JSON so the YAML keys follow the json tags
		data, err := json.Marshal(view)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()

	default:
		return fmt.Errorf("%w: unknown format %q", service.ErrInvalidArgument, format)
	}
}
