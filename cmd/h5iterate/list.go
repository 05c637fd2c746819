package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/scigolib/h5iterate"
)

func (a *app) runList(cmd *cobra.Command, args []string) error {
	cfg, err := resolveListConfig(a.v, args)
	if err != nil {
		return err
	}

	a.log.Debugw("listing group", "file", cfg.File, "group", cfg.Group, "order", cfg.Order.String())

	if err := listGroup(cmd.OutOrStdout(), cfg); err != nil {
		for _, e := range multierr.Errors(err) {
			a.log.Errorw("listing failed", "file", cfg.File, "group", cfg.Group, "error", e)
		}
		return errReported
	}
	return nil
}

// listTitle returns the header line for the listing of group.
func listTitle(group string) string {
	if group == "/" {
		return h5iterate.RootListingTitle
	}
	return fmt.Sprintf("Objects in group %s:", group)
}

// listGroup writes the listing selected by cfg. The plain root listing
// goes through h5iterate.ListRoot; every other form follows the same
// open, list, close sequence with its own rendering.
func listGroup(w io.Writer, cfg listConfig) error {
	if cfg.Output == outputText && !cfg.Verbose && cfg.Group == "/" && cfg.Order == h5iterate.IndexName {
		return h5iterate.ListRoot(w, cfg.File)
	}

	title := listTitle(cfg.Group)

	file, err := h5iterate.Open(cfg.File)
	if err != nil {
		return multierr.Append(err, render(w, cfg, title, nil))
	}

	entries, err := groupEntries(file, cfg)
	if err == nil {
		err = render(w, cfg, title, entries)
	} else {
		err = multierr.Append(err, render(w, cfg, title, nil))
	}

	return multierr.Append(err, file.Close())
}

// entry is a listed member with the header details verbose output shows.
type entry struct {
	h5iterate.MemberInfo
	summary h5iterate.ObjectSummary
}

func groupEntries(file *h5iterate.File, cfg listConfig) ([]entry, error) {
	g, err := file.OpenGroup(cfg.Group)
	if err != nil {
		return nil, err
	}
	members, err := g.Members(cfg.Order)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, len(members))
	for i, m := range members {
		entries[i].MemberInfo = m
		if !cfg.Verbose && cfg.Output != outputJSON {
			continue
		}
		if entries[i].summary, err = file.Summarize(m.Address); err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
	}
	return entries, nil
}

func render(w io.Writer, cfg listConfig, title string, entries []entry) error {
	switch {
	case cfg.Output == outputJSON:
		return writeJSON(w, entries)
	case cfg.Verbose:
		return writeVerbose(w, title, entries)
	default:
		members := make([]h5iterate.MemberInfo, len(entries))
		for i, e := range entries {
			members[i] = e.MemberInfo
		}
		return h5iterate.WriteListing(w, title, members)
	}
}

// writeVerbose writes the listing with link type, address and header
// detail columns.
func writeVerbose(w io.Writer, title string, entries []entry) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %-9s %-24s %-9s %-10s %s",
			h5iterate.Label(e.Type)+":", e.Name, e.LinkType, formatAddress(e.Address), details(e.summary))
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// details joins the non-empty summary fields.
func details(s h5iterate.ObjectSummary) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Datatype, s.Shape, s.Layout} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func formatAddress(addr uint64) string {
	if addr == h5iterate.UndefinedAddress {
		return "-"
	}
	return fmt.Sprintf("0x%x", addr)
}

type jsonMember struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	TypeCode int     `json:"type_code"`
	Link     string  `json:"link"`
	Address  *string `json:"address"`
	Datatype string  `json:"datatype,omitempty"`
	Shape    string  `json:"shape,omitempty"`
	Layout   string  `json:"layout,omitempty"`
}

// writeJSON writes the members as a JSON array, empty when entries is.
func writeJSON(w io.Writer, entries []entry) error {
	members := make([]jsonMember, 0, len(entries))
	for _, e := range entries {
		jm := jsonMember{
			Name:     e.Name,
			Type:     h5iterate.Label(e.Type),
			TypeCode: int(e.Type),
			Link:     e.LinkType.String(),
			Datatype: e.summary.Datatype,
			Shape:    e.summary.Shape,
			Layout:   e.summary.Layout,
		}
		if e.Address != h5iterate.UndefinedAddress {
			addr := formatAddress(e.Address)
			jm.Address = &addr
		}
		members = append(members, jm)
	}

	data, err := sonic.ConfigStd.MarshalIndent(members, "", "  ")
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
