package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackplate/hackplate-cli/internal/api"
)

func rulesCmd(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		return errors.New("rules subcommand required: list|create|delete")
	}
	m := c.Session.Rules
	switch args[0] {
	case "list", "ls":
		if !c.Session.Authenticated(ctx) {
			return &api.AuthRequiredError{Op: "list rules"}
		}
		list, err := m.Load(ctx)
		if err != nil {
			return err
		}
		if list == nil {
			list = []api.NotificationRule{}
		}
		return c.write(list)

	case "create", "add":
		def := api.DefaultRuleInput("")
		fs := c.flags("rules create")
		location := fs.String("location", "", "Location to watch (required)")
		radius := fs.Float64("radius", def.RadiusKM, "Radius in km")
		minScore := fs.Float64("min-score", def.MinScore, "Minimum relevance score")
		food := fs.Bool("food-required", def.FoodRequired, "Only notify for events with food")
		channel := fs.String("channel", def.Channel, "telegram|email")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		created, err := m.Create(ctx, api.RuleInput{
			Location:     *location,
			RadiusKM:     *radius,
			MinScore:     *minScore,
			FoodRequired: *food,
			Channel:      *channel,
		})
		if err != nil {
			return err
		}
		return c.write(created)

	case "delete", "del", "rm":
		id, err := idArg(args, "usage: hackplate rules delete <id>")
		if err != nil {
			return err
		}
		if err := m.Delete(ctx, id); err != nil {
			return err
		}
		return c.write(map[string]any{"deleted": id})

	default:
		return fmt.Errorf("unknown rules subcommand: %s", args[0])
	}
}
