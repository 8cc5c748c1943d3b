package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackplate/hackplate-cli/internal/dashboard"
)

func analyticsCmd(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		return errors.New("analytics subcommand required: overview|trends")
	}
	switch args[0] {
	case "overview":
		ov, err := c.Session.Client.Overview(ctx)
		if err != nil {
			return err
		}
		return c.write(ov)
	case "trends":
		trends, err := c.Session.Client.Trends(ctx)
		if err != nil {
			return err
		}
		return c.write(trends)
	default:
		return fmt.Errorf("unknown analytics subcommand: %s", args[0])
	}
}

func ingestCmd(ctx context.Context, c *Context, args []string) error {
	fs := c.flags("ingest")
	limit := fs.Int("limit", 10, "Events to scrape (1-50)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := c.Session.Client.TriggerIngest(ctx, *limit)
	if err != nil {
		return err
	}
	return c.write(res)
}

type dashboardOutput struct {
	dashboard.View
	Failed map[string]string `json:"failed,omitempty"`
}

func dashboardCmd(ctx context.Context, c *Context, args []string) error {
	fs := c.flags("dashboard")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := dashboard.Load(ctx, c.Session, c.Logger)
	if err != nil {
		return err
	}
	out := dashboardOutput{View: v}
	if len(v.Errors) > 0 {
		out.Failed = map[string]string{}
		for _, s := range v.Failed() {
			out.Failed[s] = v.Errors[s].Error()
		}
	}
	return c.write(out)
}
