// Package routes holds the static route table that drives both the
// sidebar and slug-addressed navigation, and the role filter applied to
// it.
package routes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dashgate/internal/auth"
)

// Namespace partitions routes by access model. Public routes bypass
// authentication entirely; the other namespaces require a session.
type Namespace string

const (
	NamespacePublic    Namespace = "public"
	NamespaceDemo      Namespace = "default_demo"
	NamespaceProtected Namespace = "protected"
)

var namespaces = map[Namespace]bool{
	NamespacePublic:    true,
	NamespaceDemo:      true,
	NamespaceProtected: true,
}

// Route is one navigable destination. An empty Roles set means any
// authenticated principal may visit; a non-empty set restricts the route
// to those roles (plus admin, which passes every check).
type Route struct {
	Slug      string      `json:"slug" yaml:"slug"`
	Title     string      `json:"title" yaml:"title"`
	Icon      Icon        `json:"icon" yaml:"icon"`
	Component Component   `json:"component" yaml:"component"`
	Namespace Namespace   `json:"namespace" yaml:"namespace"`
	Roles     []auth.Role `json:"roles" yaml:"roles"`
	// Embed carries the dashboarding-service page UUID for routes whose
	// component renders an embedded view.
	Embed string `json:"embed,omitempty" yaml:"embed,omitempty"`
}

// Visible reports whether the route appears for the given role. Admin
// sees everything; an empty role set admits any active role.
func (rt Route) Visible(role auth.Role) bool {
	if role == auth.RoleNone {
		return false
	}
	if role.IsAdmin() || len(rt.Roles) == 0 {
		return true
	}
	for _, r := range rt.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Section is an ordered group of routes rendered under one sidebar heading.
type Section struct {
	Title  string  `json:"title" yaml:"title"`
	Routes []Route `json:"routes" yaml:"routes"`
}

// Table is the full, unfiltered route table. Order is significant; the
// sidebar renders sections and routes in table order.
type Table struct {
	Sections []Section `json:"sections" yaml:"sections"`
}

// Index provides (namespace, slug) lookup over a table.
type Index struct {
	byKey map[string]Route
}

func indexKey(ns Namespace, slug string) string {
	return string(ns) + "/" + slug
}

// BuildIndex validates the table and builds the lookup index. Duplicate
// (namespace, slug) pairs, empty slugs, and unknown namespaces are
// configuration errors.
func BuildIndex(t Table) (*Index, error) {
	idx := &Index{byKey: make(map[string]Route)}
	for si, sec := range t.Sections {
		for ri, rt := range sec.Routes {
			if rt.Slug == "" {
				return nil, fmt.Errorf("section %d route %d: empty slug", si, ri)
			}
			if !namespaces[rt.Namespace] {
				return nil, fmt.Errorf("route %q: unknown namespace %q", rt.Slug, rt.Namespace)
			}
			key := indexKey(rt.Namespace, rt.Slug)
			if _, dup := idx.byKey[key]; dup {
				return nil, fmt.Errorf("duplicate route %s", key)
			}
			idx.byKey[key] = rt
		}
	}
	return idx, nil
}

// Lookup resolves a (namespace, slug) pair to its route.
func (idx *Index) Lookup(ns Namespace, slug string) (Route, bool) {
	rt, ok := idx.byKey[indexKey(ns, slug)]
	return rt, ok
}

// Len returns the number of indexed routes.
func (idx *Index) Len() int { return len(idx.byKey) }

// yaml document shape; icon/component names are normalized through the
// closed-set parsers on load.
type tableFile struct {
	Sections []struct {
		Title  string `yaml:"title"`
		Routes []struct {
			Slug      string   `yaml:"slug"`
			Title     string   `yaml:"title"`
			Icon      string   `yaml:"icon"`
			Component string   `yaml:"component"`
			Namespace string   `yaml:"namespace"`
			Roles     []string `yaml:"roles"`
			Embed     string   `yaml:"embed"`
		} `yaml:"routes"`
	} `yaml:"sections"`
}

// Load reads a route table from YAML.
func Load(data []byte) (Table, error) {
	var doc tableFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Table{}, fmt.Errorf("parse route table: %w", err)
	}

	var t Table
	for _, sec := range doc.Sections {
		out := Section{Title: sec.Title}
		for _, rt := range sec.Routes {
			route := Route{
				Slug:      rt.Slug,
				Title:     rt.Title,
				Icon:      ParseIcon(rt.Icon),
				Component: ParseComponent(rt.Component),
				Namespace: Namespace(rt.Namespace),
				Embed:     rt.Embed,
			}
			for _, r := range rt.Roles {
				if role := auth.ParseRole(r); role != auth.RoleNone {
					route.Roles = append(route.Roles, role)
				}
			}
			out.Routes = append(out.Routes, route)
		}
		t.Sections = append(t.Sections, out)
	}
	return t, nil
}

// LoadFile reads a route table from a YAML file on disk.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read route table: %w", err)
	}
	return Load(data)
}
