package models

import "time"

type Banner struct {
	Image    string `json:"image" yaml:"image"`
	Title    string `json:"title" yaml:"title"`
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle"`
	Link     string `json:"link,omitempty" yaml:"link"`
}

// ShowItem is a catalog entry or a scheduled event shown on the site.
type ShowItem struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description"`
	Image       string `json:"image,omitempty" yaml:"image"`
	Date        string `json:"date,omitempty" yaml:"date"`
	Location    string `json:"location,omitempty" yaml:"location"`
	Price       string `json:"price,omitempty" yaml:"price"`
	HalfPrice   string `json:"halfPrice,omitempty" yaml:"half_price"`
	Link        string `json:"link,omitempty" yaml:"link"`
}

type Section struct {
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
	Image string `json:"image,omitempty" yaml:"image"`
	Year  string `json:"year,omitempty" yaml:"year"`
}

type GalleryImage struct {
	Image   string `json:"image" yaml:"image"`
	Caption string `json:"caption,omitempty" yaml:"caption"`
}

// SiteContent is the single CMS document. It is loaded and saved wholesale.
type SiteContent struct {
	Banner     []Banner       `json:"banner" yaml:"banner"`
	NextEvents []ShowItem     `json:"nextEvents" yaml:"next_events"`
	Courses    []ShowItem     `json:"courses" yaml:"courses"`
	Catalog    []ShowItem     `json:"catalog" yaml:"catalog"`
	AboutUs    []Section      `json:"aboutUs" yaml:"about_us"`
	History    []Section      `json:"history" yaml:"history"`
	Gallery    []GalleryImage `json:"gallery" yaml:"gallery"`
	UpdatedAt  time.Time      `json:"updatedAt" yaml:"-"`
}

// Normalize replaces nil arrays with empty ones so clients always see [].
func (c *SiteContent) Normalize() {
	if c.Banner == nil {
		c.Banner = []Banner{}
	}
	if c.NextEvents == nil {
		c.NextEvents = []ShowItem{}
	}
	if c.Courses == nil {
		c.Courses = []ShowItem{}
	}
	if c.Catalog == nil {
		c.Catalog = []ShowItem{}
	}
	if c.AboutUs == nil {
		c.AboutUs = []Section{}
	}
	if c.History == nil {
		c.History = []Section{}
	}
	if c.Gallery == nil {
		c.Gallery = []GalleryImage{}
	}
}

// FindEvent looks an event up in NextEvents and then Catalog.
func (c *SiteContent) FindEvent(id string) (ShowItem, bool) {
	for _, list := range [][]ShowItem{c.NextEvents, c.Catalog} {
		for _, item := range list {
			if item.ID == id {
				return item, true
			}
		}
	}
	return ShowItem{}, false
}
