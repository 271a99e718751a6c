package plugin

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to optional manifest fields
const (
	DefaultDescription = "No description provided"
	DefaultFailure     = "❌ Failed executing %command: %error"
	DefaultWaitNotice  = "⏳ Processing your request..."
	DefaultCategory    = "general"
)

// Definition is a handler as written in a manifest.
//
// A manifest file holds either one definition at the top level or a list
// under the "handlers" key:
//
//	handlers:
//	  - name: ping
//	    aliases: [ping, p]
//	    run: ping
//	  - name: uptime
//	    aliases: [uptime]
//	    exec: uptime -p
//	    permissions: owner
type Definition struct {
	Name         string   `yaml:"name"`
	Aliases      []string `yaml:"aliases"`
	Command      []string `yaml:"command"` // legacy spelling of aliases
	Description  string   `yaml:"description"`
	Usage        string   `yaml:"usage"`
	Category     string   `yaml:"category"`
	Cooldown     int      `yaml:"cooldown"` // seconds
	React        *bool    `yaml:"react"`
	Failed       *string  `yaml:"failed"`
	Wait         *string  `yaml:"wait"` // "" disables the notice
	DailyLimit   int      `yaml:"daily_limit"`
	Group        bool     `yaml:"group"`
	Private      bool     `yaml:"private"`
	Experimental bool     `yaml:"experimental"`
	Permissions  string   `yaml:"permissions"`
	Owner        bool     `yaml:"owner"`
	BotAdmin     bool     `yaml:"bot_admin"`
	Hidden       bool     `yaml:"hidden"`

	Run  string `yaml:"run"`  // catalog function name
	Exec string `yaml:"exec"` // shell command

	// Path is the manifest the definition came from
	Path string `yaml:"-"`
}

type manifestFile struct {
	Handlers []Definition `yaml:"handlers"`
}

// ParseManifest decodes every definition in a manifest document
func ParseManifest(data []byte, path string) ([]Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("manifest %s: top level must be a mapping", path)
	}

	var defs []Definition
	if hasKey(doc, "handlers") {
		var mf manifestFile
		if err := doc.Decode(&mf); err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", path, err)
		}
		defs = mf.Handlers
	} else {
		var d Definition
		if err := doc.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode manifest %s: %w", path, err)
		}
		defs = []Definition{d}
	}

	for i := range defs {
		defs[i].Path = path
	}
	return defs, nil
}

func hasKey(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

// aliases merges aliases and the legacy command list, preserving order
func (d *Definition) aliases() []string {
	out := make([]string, 0, len(d.Aliases)+len(d.Command))
	out = append(out, d.Aliases...)
	out = append(out, d.Command...)
	return out
}

// Validate checks the required shape of a definition
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("missing name")
	}
	aliases := d.aliases()
	if len(aliases) == 0 {
		return fmt.Errorf("handler %q has no aliases", d.Name)
	}
	for i, a := range aliases {
		if strings.TrimSpace(a) == "" || strings.ContainsAny(a, " \t\n") {
			return fmt.Errorf("handler %q alias %d is invalid: %q", d.Name, i, a)
		}
	}
	if d.Run == "" && d.Exec == "" {
		return fmt.Errorf("handler %q has neither run nor exec", d.Name)
	}
	if d.Run != "" && d.Exec != "" {
		return fmt.Errorf("handler %q sets both run and exec", d.Name)
	}
	if d.Permissions != "" && !Role(strings.ToLower(d.Permissions)).valid() {
		return fmt.Errorf("handler %q has unknown permissions %q", d.Name, d.Permissions)
	}
	if d.Cooldown < 0 || d.DailyLimit < 0 {
		return fmt.Errorf("handler %q has a negative cooldown or daily_limit", d.Name)
	}
	if d.Group && d.Private {
		return fmt.Errorf("handler %q cannot be both group and private only", d.Name)
	}
	return nil
}

// build fills defaults and binds fn. The definition must already be valid.
func (d *Definition) build(fn HandlerFunc) *Handler {
	h := &Handler{
		Name:            strings.TrimSpace(d.Name),
		Description:     d.Description,
		Usage:           d.Usage,
		Category:        strings.ToLower(d.Category),
		Cooldown:        time.Duration(d.Cooldown) * time.Second,
		React:           true,
		FailureTemplate: DefaultFailure,
		WaitNotice:      DefaultWaitNotice,
		DailyLimit:      d.DailyLimit,
		GroupOnly:       d.Group,
		PrivateOnly:     d.Private,
		Experimental:    d.Experimental,
		Role:            Role(strings.ToLower(d.Permissions)),
		BotMustBeAdmin:  d.BotAdmin,
		Hidden:          d.Hidden,
		Source:          d.Path,
		Fn:              fn,
	}
	for _, a := range d.aliases() {
		h.Aliases = append(h.Aliases, strings.ToLower(a))
	}
	if h.Description == "" {
		h.Description = DefaultDescription
	}
	if h.Category == "" {
		h.Category = DefaultCategory
	}
	if d.React != nil {
		h.React = *d.React
	}
	if d.Failed != nil && *d.Failed != "" {
		h.FailureTemplate = *d.Failed
	}
	if d.Wait != nil {
		h.WaitNotice = *d.Wait
	}
	if h.Role == "" {
		h.Role = RoleAll
	}
	if d.Owner {
		h.Role = RoleOwner
	}
	return h
}
