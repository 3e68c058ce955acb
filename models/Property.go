package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Property is owned by the listings subsystem. The messaging core reads it
// for inquiry routing (HostID is the agent) and conversation previews.
type Property struct {
	gorm.Model
	HostID   uint    `json:"hostID"`
	Title    string  `json:"title"`
	City     string  `json:"city"`
	Country  string  `json:"country"`
	Images   string  `json:"images"` // JSON array of URLs
	IsActive *bool   `json:"isActive"`
	Host     User    `json:"host" gorm:"foreignKey:HostID;references:ID"`
}

// FirstImage returns the first listing photo for chat previews.
func (p *Property) FirstImage() string {
	if p.Images == "" {
		return ""
	}
	var imgs []string
	if err := json.Unmarshal([]byte(p.Images), &imgs); err != nil || len(imgs) == 0 {
		return ""
	}
	return imgs[0]
}

// Custom JSON marshaling to convert the Images string to an array
func (p *Property) MarshalJSON() ([]byte, error) {
	type Alias Property
	aux := &struct {
		Images []string `json:"images"`
		Host   *User    `json:"host,omitempty"`
		*Alias
	}{
		Images: []string{},
		Host:   nil,
		Alias:  (*Alias)(p),
	}

	if p.Images != "" {
		var images []string
		if err := json.Unmarshal([]byte(p.Images), &images); err == nil {
			aux.Images = images
		}
	}

	if p.Host.ID != 0 {
		aux.Host = &p.Host
	}

	return json.Marshal(aux)
}
