package gateway

// Colors used by bot embeds.
const (
	ColorBlue = 0x3498db
	ColorRed  = 0xe74c3c
)

type ControlStyle string

const (
	StylePrimary   ControlStyle = "primary"
	StyleSecondary ControlStyle = "secondary"
	StyleSuccess   ControlStyle = "success"
	StyleDanger    ControlStyle = "danger"
)

// Message is the platform neutral shape of an outbound message.
type Message struct {
	Content  string    `json:"content,omitempty"`
	Embeds   []Embed   `json:"embeds,omitempty"`
	Controls []Control `json:"controls,omitempty"`
}

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Author      string  `json:"author,omitempty"`
	Footer      string  `json:"footer,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Control is an interactive button.
type Control struct {
	Label    string       `json:"label"`
	Style    ControlStyle `json:"style"`
	CustomID string       `json:"custom_id"`
	Disabled bool         `json:"disabled,omitempty"`
}

// WithControlsDisabled returns a copy of msg whose controls can no longer
// be clicked.
func (m Message) WithControlsDisabled() Message {
	out := m
	out.Controls = make([]Control, len(m.Controls))
	for i, c := range m.Controls {
		c.Disabled = true
		out.Controls[i] = c
	}
	return out
}

// Field returns the embed field with the given name.
func (e Embed) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
