package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackplate/hackplate-cli/internal/api"
)

func activityCmd(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		return errors.New("activity subcommand required: overview|saved-search|preferences")
	}
	switch args[0] {
	case "overview":
		ov, err := c.Session.Client.ActivityOverview(ctx)
		if err != nil {
			return err
		}
		return c.write(ov)

	case "saved-search":
		fs := c.flags("activity saved-search")
		lat := fs.Float64("lat", 0, "Latitude")
		lon := fs.Float64("lon", 0, "Longitude")
		radius := fs.Float64("radius", api.DefaultRadiusKM, "Radius in km")
		minScore := fs.Float64("min-score", 0, "Minimum relevance score")
		food := fs.Bool("food-required", false, "Only events with food")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		ss := api.SavedSearch{Latitude: *lat, Longitude: *lon, RadiusKM: *radius, MinScore: *minScore, FoodRequired: *food}
		if err := c.Session.Client.UpdateSavedSearch(ctx, ss); err != nil {
			return err
		}
		return c.write(ss)

	case "preferences", "prefs":
		fs := c.flags("activity preferences")
		freq := fs.String("frequency", api.FrequencyInstant, "instant|daily|weekly")
		telegram := fs.Bool("telegram", false, "Enable Telegram notifications")
		email := fs.Bool("email", false, "Enable email notifications")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		p := api.NotificationPreferences{Frequency: *freq, TelegramEnabled: *telegram, EmailEnabled: *email}
		if err := c.Session.Client.UpdatePreferences(ctx, p); err != nil {
			return err
		}
		return c.write(p)

	default:
		return fmt.Errorf("unknown activity subcommand: %s", args[0])
	}
}
