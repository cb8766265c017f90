package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/resolve"
	"github.com/alfredjeanlab/envtree/internal/ui"
)

func jsonOutput() bool { return outputMode == "json" }

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

const timeLayout = "2006-01-02 15:04:05"

func printProject(w io.Writer, p *model.Project) {
	fmt.Fprintf(w, "ID:          %s\n", p.ID)
	fmt.Fprintf(w, "Name:        %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", p.Description)
	}
	if len(p.Members) > 0 {
		fmt.Fprintf(w, "Members:     %s\n", strings.Join(p.Members, ", "))
	}
	fmt.Fprintf(w, "Created At:  %s\n", p.CreatedAt.Format(timeLayout))
}

func printProjectList(w io.Writer, projects []*model.Project) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
	}
	return tw.Flush()
}

func printUser(w io.Writer, u *model.User) {
	fmt.Fprintf(w, "ID:       %s\n", u.ID)
	fmt.Fprintf(w, "Email:    %s\n", u.Email)
	if u.Name != "" {
		fmt.Fprintf(w, "Name:     %s\n", u.Name)
	}
	if u.Username != "" {
		fmt.Fprintf(w, "Username: %s\n", u.Username)
	}
	if u.AuthToken != "" {
		fmt.Fprintf(w, "Token:    %s\n", u.AuthToken)
	}
}

// linkLabel describes where a config inherits from.
func linkLabel(e *resolve.ExpandedConfig) string {
	switch {
	case !e.IsLinked():
		return ""
	case e.Dangling():
		return ui.Warning.Sprint(e.LinkedConfigID + " (missing)")
	default:
		return e.LinkedParent.Name
	}
}

func printConfigList(w io.Writer, list []*configs.ResolvedConfig) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLINKED TO\tKEYS\tVERSION")
	for _, rc := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			rc.Config.ID, rc.Config.Name, linkLabel(rc.Config), len(rc.Values), rc.Config.Version)
	}
	return tw.Flush()
}

// printConfig shows a config header followed by its flattened values.
// Hidden values are masked unless reveal is set; inherited values name the
// config they come from.
func printConfig(w io.Writer, rc *configs.ResolvedConfig, reveal bool) error {
	c := rc.Config
	fmt.Fprintf(w, "ID:       %s\n", c.ID)
	fmt.Fprintf(w, "Name:     %s\n", c.Name)
	fmt.Fprintf(w, "Version:  %s\n", c.Version)
	if c.IsLinked() {
		fmt.Fprintf(w, "Linked:   %s\n", linkLabel(c))
		names := make([]string, 0)
		for _, anc := range c.Chain() {
			names = append(names, anc.Name)
		}
		fmt.Fprintf(w, "Chain:    %s\n", strings.Join(names, " -> "))
	}
	if len(rc.Values) == 0 {
		fmt.Fprintln(w, ui.Muted.Sprint("(no values)"))
		return nil
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tGROUP\tSOURCE")
	for _, key := range resolve.Keys(rc.Values) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", key, displayValue(rc.Values[key], reveal), deref(rc.Values[key].Group), valueSource(c, key, rc.Values[key]))
	}
	return tw.Flush()
}

func displayValue(v resolve.FlatValue, reveal bool) string {
	switch {
	case v.Value == nil:
		return ui.Muted.Sprint("null")
	case v.Hidden && !reveal:
		return "********"
	}
	return *v.Value
}

// valueSource names the config a flattened value was defined in.
func valueSource(c *resolve.ExpandedConfig, key string, v resolve.FlatValue) string {
	if _, own := c.Values[key]; own {
		if v.Overrides {
			return "overrides " + v.ParentName
		}
		return "own"
	}
	chain := c.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		if _, ok := chain[i].Values[key]; ok {
			return ui.Muted.Sprint("inherited from " + chain[i].Name)
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printEvents(w io.Writer, evts []*model.Event) error {
	sort.SliceStable(evts, func(i, j int) bool { return evts[i].CreatedAt.Before(evts[j].CreatedAt) })
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOPIC\tCONFIG\tACTOR")
	for _, e := range evts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(timeLayout), e.Topic, e.ConfigID, e.Actor)
	}
	return tw.Flush()
}
