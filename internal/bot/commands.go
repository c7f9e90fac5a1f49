package bot

import (
	"fmt"
	"strings"

	"github.com/NixLone/Inbox-SaaS/internal/repo"
)

// command is the closed set of operator command keywords. Dispatch is an
// exhaustive switch over these values; anything else renders the unknown hint.
type command string

const (
	cmdStart   command = "/start"
	cmdHelp    command = "/help"
	cmdToken   command = "/token"
	cmdToday   command = "/today"
	cmdDay     command = "/day"
	cmdLast    command = "/last"
	cmdFind    command = "/find"
	cmdUnknown command = ""
)

// parseCommand splits one line of text into a command keyword and its raw
// argument. A bot-name suffix after "@" is stripped from the keyword.
func parseCommand(text string) (command, string) {
	fields := strings.SplitN(strings.TrimSpace(text), " ", 2)
	keyword, _, _ := strings.Cut(fields[0], "@")
	arg := ""
	if len(fields) > 1 {
		arg = strings.TrimSpace(fields[1])
	}

	switch command(keyword) {
	case cmdStart, cmdHelp, cmdToken, cmdToday, cmdDay, cmdLast, cmdFind:
		return command(keyword), arg
	}
	return cmdUnknown, arg
}

const (
	textHelp = "Commands:\n" +
		"/token — show your webhook token\n" +
		"/today — today's leads (UTC)\n" +
		"/day YYYY-MM-DD — leads for a date (UTC)\n" +
		"/last N — the N most recent leads\n" +
		"/find TEXT — search by name/phone/text\n"

	textNotText        = "I can only read text messages. Commands: /help"
	textNotCommand     = "Send /help to see the available commands."
	textUnknownCommand = "Unknown command. /help"
	textUsageDay       = "Usage: /day 2026-01-13"
	textUsageLast      = "Usage: /last 20"
	textUsageFind      = "Usage: /find Anna"
	textNothingFound   = "Nothing found."
)

func startText(token string) string {
	return "Hi! I collect all your leads in one chat.\n\n" +
		"Your token (keep it secret):\n" +
		token + "\n\n" +
		"Webhook for your integrator (Make/Albato/your own script):\n" +
		"POST /webhook/" + token + "\n" +
		"JSON example:\n" +
		`{"source":"instagram","name":"Anna","phone":"+371...","text":"I want to book"}` +
		"\n\nCommands: /help"
}

// renderLeadList renders one line per lead: id, status, time of day to the
// minute, name and source with placeholders when absent.
func renderLeadList(leads []repo.Lead) string {
	if len(leads) == 0 {
		return textNothingFound
	}
	lines := make([]string, 0, len(leads))
	for _, lead := range leads {
		lines = append(lines, fmt.Sprintf("#%d [%s] %s — %s — %s",
			lead.ID,
			lead.Status,
			lead.CreatedAt.UTC().Format("15:04"),
			orDash(lead.Name),
			orDash(&lead.Source),
		))
	}
	return strings.Join(lines, "\n")
}

func orDash(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "—"
	}
	return *v
}
