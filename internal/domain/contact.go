package domain

// Contact is a queued call destination.
type Contact struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Valid reports whether the contact can be queued.
func (c Contact) Valid() bool {
	return c.Name != "" && c.Number != ""
}
