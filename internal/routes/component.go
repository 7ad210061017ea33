package routes

// Icon identifies the sidebar glyph rendered next to a route. The set is
// closed; anything unrecognized falls back to IconUnknown rather than
// failing the table load.
type Icon string

const (
	IconHome     Icon = "home"
	IconInbox    Icon = "inbox"
	IconMail     Icon = "mail"
	IconDrive    Icon = "drive"
	IconBarChart Icon = "bar_chart"
	IconUnknown  Icon = "unknown"
)

var icons = map[Icon]bool{
	IconHome:     true,
	IconInbox:    true,
	IconMail:     true,
	IconDrive:    true,
	IconBarChart: true,
}

// ParseIcon maps a configured icon name onto the closed set.
func ParseIcon(s string) Icon {
	if icons[Icon(s)] {
		return Icon(s)
	}
	return IconUnknown
}

// Component identifies which page shell a route renders into.
type Component string

const (
	ComponentHome          Component = "home"
	ComponentFullPageEmbed Component = "full_page_embed"
	ComponentHybrid        Component = "hybrid"
	ComponentPanel         Component = "panel"
	ComponentSplash        Component = "splash"
	ComponentUnknown       Component = "unknown"
)

var components = map[Component]bool{
	ComponentHome:          true,
	ComponentFullPageEmbed: true,
	ComponentHybrid:        true,
	ComponentPanel:         true,
	ComponentSplash:        true,
}

// ParseComponent maps a configured component name onto the closed set.
func ParseComponent(s string) Component {
	if components[Component(s)] {
		return Component(s)
	}
	return ComponentUnknown
}
