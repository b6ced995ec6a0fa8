package domain

// Subject is a topical category challenges are organized under.
type Subject struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	Topics      []string `json:"topics"`
}

// HasTopic reports whether topic is part of the subject's catalog.
func (s Subject) HasTopic(topic string) bool {
	for _, t := range s.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
