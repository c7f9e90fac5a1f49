package notify

import (
	"fmt"
	"strings"

	"github.com/NixLone/Inbox-SaaS/internal/repo"
	"github.com/NixLone/Inbox-SaaS/internal/tg"
)

const placeholder = "—"

var statusGlyph = map[repo.Status]string{
	repo.StatusNew:      "🆕",
	repo.StatusBooked:   "✅",
	repo.StatusCallBack: "⏰",
	repo.StatusRejected: "❌",
}

var statusLabel = map[repo.Status]string{
	repo.StatusNew:      "New",
	repo.StatusBooked:   "Booked",
	repo.StatusCallBack: "Call back",
	repo.StatusRejected: "Rejected",
}

// StatusLabel returns the human label for a status, falling back to the raw
// value for anything outside the known set.
func StatusLabel(status repo.Status) string {
	if label, ok := statusLabel[status]; ok {
		return label
	}
	return string(status)
}

// Render is a pure function from lead state to the notification text and its
// action keyboard. Timestamps are minute precision in UTC; absent fields are
// substituted with a placeholder.
func Render(lead *repo.Lead) (string, *tg.InlineKeyboardMarkup) {
	glyph, ok := statusGlyph[lead.Status]
	if !ok {
		glyph = "📝"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Lead #%d — %s\n", glyph, lead.ID, StatusLabel(lead.Status))
	fmt.Fprintf(&b, "🕒 %s (UTC)\n", lead.CreatedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "👤 %s\n", orPlaceholder(lead.Name))
	fmt.Fprintf(&b, "📞 %s\n", orPlaceholder(lead.Phone))
	fmt.Fprintf(&b, "📩 %s\n", orBlankPlaceholder(lead.Source))
	fmt.Fprintf(&b, "\n💬 %s", orBlankPlaceholder(lead.Text))

	return b.String(), Keyboard(lead.ID)
}

// Keyboard builds the fixed three-action inline keyboard. Callback data must
// stay short: lead:<id>:<status>.
func Keyboard(leadID int64) *tg.InlineKeyboardMarkup {
	return &tg.InlineKeyboardMarkup{
		InlineKeyboard: [][]tg.InlineKeyboardButton{
			{
				{Text: "✅ Booked", CallbackData: callbackData(leadID, repo.StatusBooked)},
				{Text: "⏰ Call back", CallbackData: callbackData(leadID, repo.StatusCallBack)},
			},
			{
				{Text: "❌ Rejected", CallbackData: callbackData(leadID, repo.StatusRejected)},
			},
		},
	}
}

func callbackData(leadID int64, status repo.Status) string {
	return fmt.Sprintf("lead:%d:%s", leadID, status)
}

func orPlaceholder(v *string) string {
	if v == nil {
		return placeholder
	}
	return orBlankPlaceholder(*v)
}

func orBlankPlaceholder(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return placeholder
	}
	return v
}
