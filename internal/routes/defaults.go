package routes

import "dashgate/internal/auth"

// DefaultTable is the built-in route table used when no YAML file is
// configured. It mirrors the stock dashboard layout: a home page and
// three embedded views behind roles, plus a public splash page.
func DefaultTable() Table {
	return Table{
		Sections: []Section{
			{
				Title: "Overview",
				Routes: []Route{
					{
						Slug:      "home",
						Title:     "Home",
						Icon:      IconHome,
						Component: ComponentHome,
						Namespace: NamespaceDemo,
					},
					{
						Slug:      "splash_page",
						Title:     "Welcome",
						Icon:      IconMail,
						Component: ComponentSplash,
						Namespace: NamespacePublic,
					},
				},
			},
			{
				Title: "Dashboards",
				Routes: []Route{
					{
						Slug:      "full_page_embed",
						Title:     "Full Page",
						Icon:      IconInbox,
						Component: ComponentFullPageEmbed,
						Namespace: NamespaceProtected,
						Roles:     []auth.Role{auth.Role("billing"), auth.Role("ops")},
					},
					{
						Slug:      "hybrid_page",
						Title:     "Hybrid",
						Icon:      IconDrive,
						Component: ComponentHybrid,
						Namespace: NamespaceProtected,
						Roles:     []auth.Role{auth.Role("ops")},
					},
					{
						Slug:      "panel_embed",
						Title:     "Panels",
						Icon:      IconBarChart,
						Component: ComponentPanel,
						Namespace: NamespaceProtected,
						Roles:     []auth.Role{auth.Role("billing")},
					},
				},
			},
		},
	}
}
