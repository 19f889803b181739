// Package profile holds the owner card shown on the page: name, role, bio,
// social links, and the system instruction the assistant answers with.
package profile

import (
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackground = "https://my.spline.design/radialglass-eKB2T1RLigKOsKHnmwJbnrfJ/"
	DefaultAvatar     = "https://picsum.photos/200/200?grayscale"
)

type Socials struct {
	Discord   string `yaml:"discord" json:"discord,omitempty"`
	YouTube   string `yaml:"youtube" json:"youtube,omitempty"`
	Instagram string `yaml:"instagram" json:"instagram,omitempty"`
	Email     string `yaml:"email" json:"email,omitempty"`
}

type Profile struct {
	Name       string  `yaml:"name" json:"name"`
	Role       string  `yaml:"role" json:"role"`
	Location   string  `yaml:"location" json:"location"`
	Bio        string  `yaml:"bio" json:"bio"`
	Avatar     string  `yaml:"avatar" json:"avatar"`
	Background string  `yaml:"background" json:"background"`
	Socials    Socials `yaml:"socials" json:"socials"`
}

// Link is one social button.
type Link struct {
	Network string `json:"network"`
	Label   string `json:"label"`
	URL     string `json:"url"`
}

func Default() Profile {
	return Profile{
		Name:       "Hippoo",
		Role:       "Creative Technologist",
		Location:   "Seoul, South Korea",
		Bio:        "Building calm, spatial experiences for the web. Currently exploring real-time interfaces and on-device AI.",
		Avatar:     DefaultAvatar,
		Background: DefaultBackground,
		Socials: Socials{
			Discord:   "https://discord.gg/gosuda",
			YouTube:   "https://www.youtube.com/@hippoo",
			Instagram: "https://www.instagram.com/hippoo",
			Email:     "hello@hippoo.dev",
		},
	}
}

// Load reads a YAML profile from path. Fields the file leaves empty keep
// their Default values. An empty path returns Default.
func Load(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	var in Profile
	if err := yaml.Unmarshal(b, &in); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	p.merge(in)
	return p, nil
}

func (p *Profile) merge(in Profile) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&p.Name, in.Name)
	set(&p.Role, in.Role)
	set(&p.Location, in.Location)
	set(&p.Bio, in.Bio)
	set(&p.Avatar, in.Avatar)
	set(&p.Background, in.Background)
	set(&p.Socials.Discord, in.Socials.Discord)
	set(&p.Socials.YouTube, in.Socials.YouTube)
	set(&p.Socials.Instagram, in.Socials.Instagram)
	set(&p.Socials.Email, in.Socials.Email)
}

// Links returns the social buttons in display order, skipping empty ones.
func (p Profile) Links() []Link {
	all := []Link{
		{Network: "discord", Label: "Discord", URL: p.Socials.Discord},
		{Network: "youtube", Label: "YouTube", URL: p.Socials.YouTube},
		{Network: "instagram", Label: "Instagram", URL: p.Socials.Instagram},
		{Network: "email", Label: "Email", URL: mailto(p.Socials.Email)},
	}
	links := all[:0]
	for _, l := range all {
		if l.URL != "" {
			links = append(links, l)
		}
	}
	return links
}

// Link looks up one social button by network name.
func (p Profile) Link(network string) (Link, bool) {
	for _, l := range p.Links() {
		if l.Network == network {
			return l, true
		}
	}
	return Link{}, false
}

func mailto(addr string) string {
	if addr == "" || strings.HasPrefix(addr, "mailto:") {
		return addr
	}
	return "mailto:" + addr
}

// Instruction is the system instruction for completions made on the
// owner's behalf.
func (p Profile) Instruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI assistant for %s.\n", p.Name)
	b.WriteString("Here is some info about them:\n")
	fmt.Fprintf(&b, "- Role: %s\n", p.Role)
	fmt.Fprintf(&b, "- Bio: %s\n", bluemonday.StrictPolicy().Sanitize(p.Bio))
	fmt.Fprintf(&b, "- Location: %s\n", p.Location)
	b.WriteString("Answer questions on their behalf in a friendly, professional, and slightly futuristic tone. ")
	b.WriteString("Keep answers concise.")
	return b.String()
}

var bioPolicy = bluemonday.UGCPolicy()

// BioHTML renders the bio for the page. Profile files may carry light
// markup; anything outside the UGC policy is stripped.
func (p Profile) BioHTML() template.HTML {
	return template.HTML(bioPolicy.Sanitize(p.Bio))
}
