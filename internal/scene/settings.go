package scene

import "fmt"

const (
	toggleNewPosts     = "new_posts"
	toggleDailySummary = "daily_summary"
)

// settingsFlow toggles notification settings until the user taps Done.
// Every toggle is saved immediately.
type settingsFlow struct {
	store SettingsStore
}

func (f *settingsFlow) start(ctx flowContext) (step, error) {
	s, err := f.store.NotificationSettings(ctx.ctx, ctx.userID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return awaitingSettingsChoice{settings: s}, nil
}

func onOff(v bool) string {
	if v {
		return "✅ on"
	}
	return "⬜️ off"
}

func (f *settingsFlow) prompt(st step) Prompt {
	s, ok := st.(awaitingSettingsChoice)
	if !ok {
		return Prompt{}
	}
	return Prompt{
		Text: "⚙️ Notification settings\n\nNew posts on your routes: " + onOff(s.settings.NewPosts) +
			"\nDaily summary: " + onOff(s.settings.DailySummary),
		Rows: [][]Button{
			{btn(Settings, "New posts: "+onOff(s.settings.NewPosts), actToggle, toggleNewPosts)},
			{btn(Settings, "Daily summary: "+onOff(s.settings.DailySummary), actToggle, toggleDailySummary)},
			{btn(Settings, "✔️ Done", actDone, "")},
		},
	}
}

func (f *settingsFlow) handle(ctx flowContext, st step, a action) (outcome, error) {
	s, ok := st.(awaitingSettingsChoice)
	if !ok {
		return ignore, nil
	}
	switch {
	case a.tap(actDone):
		return finish("⚙️ Settings saved."), nil
	case a.tap(actToggle):
		next := s.settings
		switch a.value {
		case toggleNewPosts:
			next.NewPosts = !next.NewPosts
		case toggleDailySummary:
			next.DailySummary = !next.DailySummary
		default:
			return ignore, nil
		}
		if err := f.store.SetNotificationSettings(ctx.ctx, ctx.userID, next); err != nil {
			return outcome{}, fmt.Errorf("save settings: %w", err)
		}
		return advance(awaitingSettingsChoice{settings: next}), nil
	}
	return expectTap(st, a), nil
}
