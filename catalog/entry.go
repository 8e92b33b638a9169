package catalog

import (
	"fmt"
	"path"
	"strings"
)

// Scan selects member files under a directory.
type Scan struct {
	Location string `mapstructure:"location" json:"location"`
	Suffix   string `mapstructure:"suffix" json:"suffix"`
	// Ignore drops every path containing this substring.
	Ignore string `mapstructure:"ignore" json:"ignore,omitempty"`
}

// Aggregation is a joinExisting aggregation. Members come first, in the
// listed order, followed by every scan's files sorted by path.
type Aggregation struct {
	Dimension string   `mapstructure:"dimension" json:"dimension"`
	Members   []string `mapstructure:"members" json:"members,omitempty"`
	Scan      []Scan   `mapstructure:"scan" json:"scan,omitempty"`
}

// Entry publishes one dataset, either a single file or an aggregation.
type Entry struct {
	Name        string       `mapstructure:"name" json:"name"`
	Path        string       `mapstructure:"path" json:"path,omitempty"`
	Aggregation *Aggregation `mapstructure:"aggregation" json:"aggregation,omitempty"`
}

func (e Entry) validate() error {
	switch {
	case e.Name == "":
		return fmt.Errorf("dataset without name")
	case strings.ContainsAny(e.Name, "?#"):
		return fmt.Errorf("dataset %q: name contains reserved characters", e.Name)
	case e.Path == "" && e.Aggregation == nil:
		return fmt.Errorf("dataset %q: needs a path or an aggregation", e.Name)
	case e.Path != "" && e.Aggregation != nil:
		return fmt.Errorf("dataset %q: path and aggregation are exclusive", e.Name)
	case e.Aggregation != nil && e.Aggregation.Dimension == "":
		return fmt.Errorf("dataset %q: aggregation without dimension", e.Name)
	}
	return nil
}

// resolve makes relative locations relative to base.
func resolve(base, p string) string {
	if p == "" || path.IsAbs(p) || base == "" {
		return p
	}
	return path.Join(base, p)
}

// rooted resolves the entry's relative locations against dir.
func (e Entry) rooted(dir string) Entry {
	e.Path = resolve(dir, e.Path)
	if e.Aggregation == nil {
		return e
	}
	a := *e.Aggregation
	a.Members = make([]string, len(e.Aggregation.Members))
	for i, m := range e.Aggregation.Members {
		a.Members[i] = resolve(dir, m)
	}
	a.Scan = make([]Scan, len(e.Aggregation.Scan))
	for i, s := range e.Aggregation.Scan {
		s.Location = resolve(dir, s.Location)
		a.Scan[i] = s
	}
	e.Aggregation = &a
	return e
}

// Kind reports "file" or "aggregation".
func (e Entry) Kind() string {
	if e.Aggregation != nil {
		return "aggregation"
	}
	return "file"
}
