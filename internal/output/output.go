package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hackplate/hackplate-cli/internal/api"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

func Parse(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatText, "table":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json|yaml|text)", s)
	}
}

func Write(w io.Writer, format Format, v any) error {
	switch format {
	case FormatYAML:
		return writeYAML(w, v)
	case FormatText:
		if ok, err := writeText(w, v); ok {
			return err
		}
		return writeJSON(w, v)
	default:
		return writeJSON(w, v)
	}
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// writeYAML goes through JSON so keys match the json tags and keep their
// declared order.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return err
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func writeText(w io.Writer, v any) (bool, error) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch x := v.(type) {
	case []api.EventSummary:
		fmt.Fprintln(tw, "ID\tTITLE\tCITY\tTYPE\tSCORE\tFOOD\tSOURCE")
		for _, e := range x {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%s\t%s\n",
				e.ID, truncate(e.Title, 48), orDash(e.City), orDash(e.EventType), e.Score, yesNo(e.HasFood()), orDash(e.Source))
		}
	case api.EventSummary:
		fmt.Fprintf(tw, "ID\t%s\n", x.ID)
		fmt.Fprintf(tw, "Title\t%s\n", x.Title)
		fmt.Fprintf(tw, "City\t%s\n", orDash(x.City))
		fmt.Fprintf(tw, "Type\t%s\n", orDash(x.EventType))
		fmt.Fprintf(tw, "Score\t%g\n", x.Score)
		fmt.Fprintf(tw, "Food\t%s\n", yesNo(x.HasFood()))
		fmt.Fprintf(tw, "Source\t%s\n", orDash(x.Source))
		if x.URL != "" {
			fmt.Fprintf(tw, "URL\t%s\n", x.URL)
		}
		if !x.CreatedAt.IsZero() {
			fmt.Fprintf(tw, "Created\t%s\n", x.CreatedAt.Format(time.RFC3339))
		}
	case []api.NotificationRule:
		fmt.Fprintln(tw, "ID\tLOCATION\tRADIUS_KM\tMIN_SCORE\tFOOD\tCHANNEL")
		for _, r := range x {
			fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\t%s\n",
				r.ID, r.Location, r.RadiusKM, r.MinScore, yesNo(r.FoodRequired), r.Channel)
		}
	case []api.Trend:
		fmt.Fprintln(tw, "DATE\tCOUNT")
		for _, t := range x {
			fmt.Fprintf(tw, "%s\t%d\n", t.Date, t.Count)
		}
	case api.Overview:
		fmt.Fprintf(tw, "Total events\t%d\n", x.TotalEvents)
		fmt.Fprintf(tw, "Food events\t%d\n", x.FoodEvents)
		fmt.Fprintf(tw, "Sources\t%d\n", x.TotalSources)
		fmt.Fprintf(tw, "Top city\t%s\n", x.TopCity)
	default:
		return false, nil
	}
	return true, tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
