// Package command implements the hackplate subcommands.
package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/config"
	"github.com/hackplate/hackplate-cli/internal/metrics"
	"github.com/hackplate/hackplate-cli/internal/output"
	"github.com/hackplate/hackplate-cli/internal/session"
)

type Context struct {
	Config  config.Config
	Session *session.Session
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Output  output.Format
	Stdout  io.Writer
	Stderr  io.Writer
}

func (c *Context) write(v any) error {
	return output.Write(c.Stdout, c.Output, v)
}

func (c *Context) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("hackplate "+name, flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	return fs
}

func Usage(w io.Writer) {
	fmt.Fprint(w, `hackplate <command> <subcommand> [flags]

Global Flags:
  --config      Config file (env: HACKPLATE_CONFIG, default ~/.hackplate/config.yaml)
  --api-base    Backend base URL (env: HACKPLATE_API_BASE_URL)
  --token       Bearer token (env: HACKPLATE_AUTH_TOKEN)
  --output      json|yaml|text (default json)
  --log-level   debug|info|warn|error

Commands:
  auth       login/register/logout/status/me
  events     search/get/save/unsave/toggle/saved
  rules      list/create/delete
  analytics  overview/trends
  ingest     trigger a scrape run
  activity   overview/saved-search/preferences
  dashboard  overview, trends, recent and saved events
  watch      periodically refresh saved events and re-run a search
`)
}

func Dispatch(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		Usage(c.Stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "auth":
		return authCmd(ctx, c, args[1:])
	case "events", "event":
		return eventsCmd(ctx, c, args[1:])
	case "rules", "rule":
		return rulesCmd(ctx, c, args[1:])
	case "analytics":
		return analyticsCmd(ctx, c, args[1:])
	case "ingest":
		return ingestCmd(ctx, c, args[1:])
	case "activity":
		return activityCmd(ctx, c, args[1:])
	case "dashboard":
		return dashboardCmd(ctx, c, args[1:])
	case "watch":
		return watchCmd(ctx, c, args[1:])
	case "help", "-h", "--help":
		Usage(c.Stdout)
		return nil
	default:
		Usage(c.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// Hint returns a follow-up suggestion for err, or "".
func Hint(err error) string {
	if api.IsAuthRequired(err) {
		return "sign in with: hackplate auth login --email <email>"
	}
	if api.IsNetwork(err) {
		return "is the backend reachable? check --api-base"
	}
	return ""
}
