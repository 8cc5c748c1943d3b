package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/hackplate/hackplate-cli/internal/api"
	"github.com/hackplate/hackplate-cli/internal/search"
)

type toggleResult struct {
	ID    api.ID `json:"id"`
	Saved bool   `json:"saved"`
}

func eventsCmd(ctx context.Context, c *Context, args []string) error {
	if len(args) == 0 {
		return errors.New("events subcommand required: search|get|save|unsave|toggle|saved")
	}
	switch args[0] {
	case "search", "list":
		fs := c.flags("events search")
		sf := bindSearchFlags(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		ctrl := c.Session.NewSearch()
		if err := sf.apply(fs, ctrl, c.Config.API.PerPage); err != nil {
			return err
		}
		events, err := ctrl.Execute(ctx)
		if err != nil {
			return err
		}
		return c.write(events)

	case "get":
		id, err := idArg(args, "usage: hackplate events get <id>")
		if err != nil {
			return err
		}
		ev, err := c.Session.Client.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		return c.write(ev)

	case "save", "unsave", "toggle":
		id, err := idArg(args, "usage: hackplate events "+args[0]+" <id>")
		if err != nil {
			return err
		}
		saved, err := setSaved(ctx, c, id, args[0])
		if err != nil {
			return err
		}
		return c.write(toggleResult{ID: id, Saved: saved})

	case "saved", "favorites":
		if err := c.Session.Saved.Refresh(ctx); err != nil {
			return err
		}
		return c.write(c.Session.Saved.Favorites())

	default:
		return fmt.Errorf("unknown events subcommand: %s", args[0])
	}
}

// setSaved drives id to the membership the action asks for through the
// shared saved set. save and unsave are no-ops when already in that state.
func setSaved(ctx context.Context, c *Context, id api.ID, action string) (bool, error) {
	if !c.Session.Authenticated(ctx) {
		return false, &api.AuthRequiredError{Op: action + " event"}
	}
	s := c.Session.Saved
	if err := s.Refresh(ctx); err != nil {
		return false, err
	}
	current := s.IsSaved(id)
	switch {
	case action == "save" && current, action == "unsave" && !current:
		return current, nil
	}
	return s.Toggle(ctx, id)
}

func idArg(args []string, usage string) (api.ID, error) {
	if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
		return "", errors.New(usage)
	}
	return api.ID(strings.TrimSpace(args[1])), nil
}

type searchFlags struct {
	location  *string
	radius    *string
	minScore  *float64
	source    *string
	eventType *string
	foodOnly  *bool
	page      *int
	perPage   *int
}

func bindSearchFlags(fs *flag.FlagSet) searchFlags {
	return searchFlags{
		location:  fs.String("location", "", "City or free-text location"),
		radius:    fs.String("radius", "", "Radius in km (default 50)"),
		minScore:  fs.Float64("min-score", 0, "Minimum relevance score"),
		source:    fs.String("source", "", "Source filter"),
		eventType: fs.String("type", "", "Online|Offline|Hybrid"),
		foodOnly:  fs.Bool("food-only", false, "Only events likely to have food"),
		page:      fs.Int("page", 0, "Page number"),
		perPage:   fs.Int("per-page", 0, "Results per page"),
	}
}

// apply copies the parsed flags into ctrl's draft through SetFilter so text
// input is validated the same way everywhere.
func (sf searchFlags) apply(fs *flag.FlagSet, ctrl *search.Controller, defaultPerPage int) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["per-page"] && defaultPerPage > 0 {
		*sf.perPage = defaultPerPage
		set["per-page"] = true
	}
	pairs := []struct {
		flag, key, value string
	}{
		{"location", "location", *sf.location},
		{"radius", "radius_km", *sf.radius},
		{"min-score", "min_score", strconv.FormatFloat(*sf.minScore, 'f', -1, 64)},
		{"source", "source", *sf.source},
		{"type", "event_type", *sf.eventType},
		{"food-only", "food_only", strconv.FormatBool(*sf.foodOnly)},
		{"page", "page", strconv.Itoa(*sf.page)},
		{"per-page", "per_page", strconv.Itoa(*sf.perPage)},
	}
	for _, p := range pairs {
		if !set[p.flag] {
			continue
		}
		if err := ctrl.SetFilter(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}
