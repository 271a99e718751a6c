package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/keepmind9/botkit/internal/plugin"
)

func (b *builtins) help(ctx context.Context, call *plugin.Call) error {
	var visible []*plugin.Handler
	for _, h := range call.Handlers {
		if h.VisibleTo(call.IsOwner) {
			visible = append(visible, h)
		}
	}

	var text string
	if len(call.Args) == 0 {
		text = helpOverview(visible, call.Prefix)
	} else {
		query := strings.ToLower(call.Args[0])
		if h := findHandler(visible, query); h != nil {
			text = helpCommand(h, call.Prefix)
		} else if cat := byCategory(visible, query); len(cat) > 0 {
			text = helpCategory(query, cat, call.Prefix)
		} else {
			text = fmt.Sprintf("🤔 Couldn't find a command or category for *%s*.\nTry `%shelp` to see everything available.", query, call.Prefix)
		}
	}
	return call.Reply(ctx, text)
}

func findHandler(handlers []*plugin.Handler, alias string) *plugin.Handler {
	for _, h := range handlers {
		for _, a := range h.Aliases {
			if a == alias {
				return h
			}
		}
	}
	return nil
}

func byCategory(handlers []*plugin.Handler, category string) []*plugin.Handler {
	var out []*plugin.Handler
	for _, h := range handlers {
		if h.Category == category {
			out = append(out, h)
		}
	}
	return out
}

// categories groups handlers by category in first-seen order
func categories(handlers []*plugin.Handler) ([]string, map[string][]*plugin.Handler) {
	var order []string
	groups := make(map[string][]*plugin.Handler)
	for _, h := range handlers {
		if _, seen := groups[h.Category]; !seen {
			order = append(order, h.Category)
		}
		groups[h.Category] = append(groups[h.Category], h)
	}
	return order, groups
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func aliasNote(h *plugin.Handler) string {
	if len(h.Aliases) < 2 {
		return ""
	}
	return fmt.Sprintf(" _(alias: %s)_", strings.Join(h.Aliases[1:], ", "))
}

func helpOverview(handlers []*plugin.Handler, prefix string) string {
	var sb strings.Builder
	sb.WriteString("🌟 *Available Commands:*\n")

	order, groups := categories(handlers)
	for _, cat := range order {
		fmt.Fprintf(&sb, "\n*%s*\n", title(cat))
		for _, h := range groups[cat] {
			fmt.Fprintf(&sb, "  • *%s%s*%s\n", prefix, h.Canonical(), aliasNote(h))
		}
	}
	fmt.Fprintf(&sb, "\n_Tip: `%shelp [command|category]` for details._", prefix)
	return sb.String()
}

func helpCommand(h *plugin.Handler, prefix string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Command: *%s*\n", h.Name)
	fmt.Fprintf(&sb, "• *Description:* %s\n", h.Description)
	fmt.Fprintf(&sb, "• *Aliases:* `%s`\n", strings.Join(h.Aliases, ", "))
	fmt.Fprintf(&sb, "• *Category:* %s\n", title(h.Category))
	if h.Usage != "" {
		fmt.Fprintf(&sb, "• *Usage:* `%s`\n", h.RenderUsage(prefix, ""))
	}
	if h.Cooldown > 0 {
		fmt.Fprintf(&sb, "• *Cooldown:* %ds\n", int(h.Cooldown.Seconds()))
	}
	if h.DailyLimit > 0 {
		fmt.Fprintf(&sb, "• *Daily Limit:* %d\n", h.DailyLimit)
	}
	if h.Role != plugin.RoleAll {
		fmt.Fprintf(&sb, "• *Required Role:* %s\n", h.Role)
	}
	if h.GroupOnly {
		sb.WriteString("• *Group Only*\n")
	}
	if h.PrivateOnly {
		sb.WriteString("• *Private Chat Only*\n")
	}
	if h.BotMustBeAdmin {
		sb.WriteString("• *Bot Admin Needed*\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func helpCategory(category string, handlers []*plugin.Handler, prefix string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s Commands:*\n", title(category))
	for _, h := range handlers {
		fmt.Fprintf(&sb, "  • *%s%s*%s: %s\n", prefix, h.Canonical(), aliasNote(h), h.Description)
	}
	fmt.Fprintf(&sb, "\n_Explore more: `%shelp <command>`_", prefix)
	return sb.String()
}
