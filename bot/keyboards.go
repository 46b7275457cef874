package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data understood by the handler.
const (
	cbModePersonal = "mode:personal"
	cbModeTeam     = "mode:team"
	cbModeChoose   = "mode:choose"

	cbTeamMy     = "team:my"
	cbTeamJoin   = "team:join"
	cbTeamCreate = "team:create"
	cbTeamInvite = "team:invite"

	cbTeamSwitchPrefix   = "team:switch:"
	cbTaskAddPrefix      = "task:add:"
	cbTaskTodayPrefix    = "task:today:"
	cbTodayTaskPrefix    = "today_task:"
	cbDoneTaskPrefix     = "done_task:"
	cbTaskDonePrefix     = "task_done:"
	cbTaskTomorrowPrefix = "task_tomorrow:"
	cbMenuPrefix         = "menu:"

	cbNoop = "noop"
)

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func modeChooseKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(
		tgbotapi.NewInlineKeyboardRow(
			button("👤 Personal", cbModePersonal),
			button("👥 Team", cbModeTeam),
		),
	)
}

// modeMenuKeyboard is the working menu of a mode. Team mode adds team actions.
func modeMenuKeyboard(mode string) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			button("➕ Add task", cbTaskAddPrefix+mode),
			button("📅 Today", cbTaskTodayPrefix+mode),
		),
	}
	if mode == ModeTeam {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button("👥 My teams", cbTeamMy),
			button("🔗 Invite code", cbTeamInvite),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("⬅️ Choose mode", cbModeChoose)))
	return keyboard(rows...)
}

func teamEntryKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return keyboard(
		tgbotapi.NewInlineKeyboardRow(
			button("👥 My teams", cbTeamMy),
			button("🔑 Join by code", cbTeamJoin),
		),
		tgbotapi.NewInlineKeyboardRow(button("➕ Create team", cbTeamCreate)),
		tgbotapi.NewInlineKeyboardRow(button("⬅️ Choose mode", cbModeChoose)),
	)
}

func teamListKeyboard(teams []Team, activeID *uint) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(teams)+1)
	for _, team := range teams {
		label := team.Name
		if activeID != nil && *activeID == team.ID {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(label, fmt.Sprintf("%s%d", cbTeamSwitchPrefix, team.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("⬅️ Back", cbModeTeam)))
	return keyboard(rows...)
}

func todayKeyboard(mode string, today *TodayTasks, formatDue func(*Task) string) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(today.Open)+len(today.Done)+1)
	for i := range today.Open {
		task := &today.Open[i]
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(
			fmt.Sprintf("%s — %s", formatDue(task), displayTitle(task)),
			fmt.Sprintf("%s%s:%d", cbTodayTaskPrefix, mode, task.ID),
		)))
	}
	for i := range today.Done {
		task := &today.Done[i]
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(
			fmt.Sprintf("%s | Done ✅", displayTitle(task)),
			fmt.Sprintf("%s%s:%d", cbDoneTaskPrefix, mode, task.ID),
		)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("⬅️ Menu", cbMenuPrefix+mode)))
	return keyboard(rows...)
}

func taskDetailKeyboard(mode string, taskID uint) *tgbotapi.InlineKeyboardMarkup {
	return keyboard(
		tgbotapi.NewInlineKeyboardRow(
			button("✅ Done", fmt.Sprintf("%s%s:%d", cbTaskDonePrefix, mode, taskID)),
			button("⏭ Tomorrow", fmt.Sprintf("%s%s:%d", cbTaskTomorrowPrefix, mode, taskID)),
		),
		tgbotapi.NewInlineKeyboardRow(button("⬅️ Back to list", cbTaskTodayPrefix+mode)),
	)
}

func backToListKeyboard(mode string) *tgbotapi.InlineKeyboardMarkup {
	return keyboard(tgbotapi.NewInlineKeyboardRow(button("⬅️ Back to list", cbTaskTodayPrefix+mode)))
}
