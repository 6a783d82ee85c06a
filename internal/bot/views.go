package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/callbacks"
	"github.com/KyawPh/luu-kyone-bot-sub000/core/telegram/keyboard"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/channel"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
	"github.com/KyawPh/luu-kyone-bot-sub000/internal/lifecycle"
)

const (
	menuMain     = "main"
	menuTravel   = "travel"
	menuFavor    = "favor"
	menuSettings = "settings"
	menuMyPosts  = "myposts"
	menuHelp     = "help"
)

const (
	textWelcome = "👋 Welcome to Luu Kyone!\n" +
		"Travellers between Singapore, Bangkok and Yangon help each other carry small items."
	textMenu = "What would you like to do?"
	textHelp = "How it works:\n" +
		"✈️ Travelling soon? Share your plan and the categories you can carry.\n" +
		"🙏 Need something delivered? Post a favor request with its urgency.\n" +
		"📢 Posts appear in the channel. Tap Contact under a post to be introduced to its owner.\n" +
		"📋 Close your posts from My posts once they are done.\n\n" +
		"Commands: /travel /favor /myposts /settings /cancel"
	textStartFirst            = "Please send /start to join first."
	textMembershipUnavailable = "😔 I could not check your channel membership right now. Please try /start again in a moment."
	textGenericFailure        = "😔 Something went wrong. Please try again in a moment."
	textBadLink               = "This link is not valid anymore."
	textNothingToCancel       = "There is nothing to cancel."
	textUnknown               = "I did not understand that. Use the menu below."
	textUnexpectedPhoto       = "Photos are only used while posting a favor request."
	textNoPosts               = "You have no posts yet."
)

func joinText(cfg channel.Config) string {
	name := "our channel"
	if cfg.Username != "" {
		name = "@" + cfg.Username
	}
	return fmt.Sprintf("To use Luu Kyone please join %s first, then tap the button below.", name)
}

func joinMarkup(cfg channel.Config, payload string) *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn
	if url := cfg.JoinURL(); url != "" {
		rows = append(rows, []keyboard.InlineBtn{{Text: "📢 Join channel", URL: url}})
	}
	rows = append(rows, []keyboard.InlineBtn{{Text: "✅ I've joined", Unique: cbJoin, Data: payload}})
	return keyboard.InlineButtonsRows(rows...)
}

func mainMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtonsNPerRow([]keyboard.InlineBtn{
		{Text: "✈️ Share travel plan", Unique: cbMenu, Data: menuTravel},
		{Text: "🙏 Ask for a favor", Unique: cbMenu, Data: menuFavor},
		{Text: "📋 My posts", Unique: cbMenu, Data: menuMyPosts},
		{Text: "⚙️ Settings", Unique: cbMenu, Data: menuSettings},
		{Text: "❓ Help", Unique: cbMenu, Data: menuHelp},
	}, 2)
}

func menuOnly() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{{Text: "🏠 Main menu", Unique: cbMenu, Data: menuMain}})
}

func backMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "📋 My posts", Unique: cbMenu, Data: menuMyPosts}},
		[]keyboard.InlineBtn{{Text: "🏠 Main menu", Unique: cbMenu, Data: menuMain}},
	)
}

// Post callbacks carry "<action>:<status>:<post id>".
const (
	postRequest = "req"
	postConfirm = "ok"
	postSep     = ":"
)

func postData(action string, target domain.Status, postID string) string {
	return callbacks.Data(postSep, action, string(target), postID)
}

func parsePostAction(c tele.Context, actorID int64) (string, domain.Transition, bool) {
	parts, err := callbacks.PayloadParts(c, postSep, 3)
	if err != nil {
		return "", domain.Transition{}, false
	}
	action, target, postID := parts[0], domain.Status(parts[1]), parts[2]
	if action != postRequest && action != postConfirm {
		return "", domain.Transition{}, false
	}
	if !target.OwnerTarget() {
		return "", domain.Transition{}, false
	}
	kind, ok := domain.KindOf(postID)
	if !ok {
		return "", domain.Transition{}, false
	}
	return action, domain.Transition{PostID: postID, Kind: kind, ActorID: actorID, Target: target}, true
}

func confirmMarkup(t domain.Transition) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Yes", Unique: cbPost, Data: postData(postConfirm, t.Target, t.PostID)},
		{Text: "↩️ No", Unique: cbMenu, Data: menuMyPosts},
	})
}

// myPostsView lists active posts with close buttons and recently closed ones.
func myPostsView(list []domain.Post, loc *time.Location) (string, *tele.ReplyMarkup) {
	if len(list) == 0 {
		return textNoPosts, mainMenu()
	}
	var b strings.Builder
	b.WriteString("📋 Your posts\n")
	var rows [][]keyboard.InlineBtn
	for _, p := range list {
		fmt.Fprintf(&b, "\n%s %s · %s · %s", postIcon(p.Kind), p.ID, p.Route.String(), statusLabel(p.Status))
		if p.Kind == domain.KindTravel && !p.DepartureDate.IsZero() {
			fmt.Fprintf(&b, " · %s", p.DepartureDate.In(loc).Format("02 Jan"))
		}
		if p.Status != domain.StatusActive {
			continue
		}
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "✅ Done " + p.ID, Unique: cbPost, Data: postData(postRequest, domain.StatusCompleted, p.ID)},
			{Text: "🗑 Cancel " + p.ID, Unique: cbPost, Data: postData(postRequest, domain.StatusCancelled, p.ID)},
		})
	}
	rows = append(rows, []keyboard.InlineBtn{{Text: "🏠 Main menu", Unique: cbMenu, Data: menuMain}})
	return b.String(), keyboard.InlineButtonsRows(rows...)
}

func postIcon(k domain.Kind) string {
	if k == domain.KindFavor {
		return "🙏"
	}
	return "✈️"
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusActive:
		return "🟢 active"
	case domain.StatusCompleted:
		return "✅ completed"
	case domain.StatusCancelled:
		return "❌ cancelled"
	case domain.StatusExpired:
		return "⌛ expired"
	}
	return string(s)
}

func outcomeText(out lifecycle.Outcome) string {
	verb := "cancelled"
	if out.Post.Status == domain.StatusCompleted {
		verb = "marked as completed"
	}
	text := fmt.Sprintf("Your post %s was %s.", out.Post.ID, verb)
	if out.Sync == lifecycle.SyncFailed {
		text += "\n⚠️ The channel post could not be updated."
	}
	return text
}

// userText maps an error onto a message for the user and reports whether
// the error is an expected rejection.
func userText(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "This post no longer exists.", true
	case errors.Is(err, domain.ErrForbidden):
		return "Only the owner can change this post.", true
	case errors.Is(err, domain.ErrAlreadyContacted):
		return "You have already contacted the owner of this post.", true
	case errors.Is(err, domain.ErrSelfContact):
		return "This is your own post 🙂", true
	case errors.Is(err, domain.ErrInvalidState):
		return "This post is no longer active.", true
	case errors.Is(err, domain.ErrValidation):
		return "That request was not valid.", true
	case errors.Is(err, domain.ErrPublishFailed):
		return "😔 I could not deliver the message. Please try again later.", false
	}
	return textGenericFailure, false
}
