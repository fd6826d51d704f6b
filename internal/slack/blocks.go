package slack

import (
	"github.com/slack-go/slack"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

// Action ids of the session buttons. Every button carries the room id as its value.
const (
	ActionJoin   = "santa_join"
	ActionLeave  = "santa_leave"
	ActionStart  = "santa_start"
	ActionCancel = "santa_cancel"
	ActionRename = "santa_rename"
)

var actionIDs = map[coordinator.Control]string{
	coordinator.ControlJoin:   ActionJoin,
	coordinator.ControlLeave:  ActionLeave,
	coordinator.ControlStart:  ActionStart,
	coordinator.ControlCancel: ActionCancel,
	coordinator.ControlRename: ActionRename,
}

func label(c coordinator.Control, l texts.Controls) string {
	switch c {
	case coordinator.ControlJoin:
		return l.Join
	case coordinator.ControlLeave:
		return l.Leave
	case coordinator.ControlStart:
		return l.Start
	case coordinator.ControlCancel:
		return l.Cancel
	case coordinator.ControlRename:
		return l.Rename
	}
	return string(c)
}

// MessageBlocks renders text and, when controls are given, a row of buttons.
func MessageBlocks(room, text string, controls []coordinator.Control, labels texts.Controls) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", text, false, false),
			nil, nil,
		),
	}
	if len(controls) == 0 {
		return blocks
	}

	buttons := make([]slack.BlockElement, 0, len(controls))
	for _, c := range controls {
		id, ok := actionIDs[c]
		if !ok {
			continue
		}
		btn := slack.NewButtonBlockElement(id, room,
			slack.NewTextBlockObject("plain_text", label(c, labels), true, false))
		switch c {
		case coordinator.ControlJoin, coordinator.ControlStart:
			btn = btn.WithStyle(slack.StylePrimary)
		case coordinator.ControlCancel:
			btn = btn.WithStyle(slack.StyleDanger)
		}
		buttons = append(buttons, btn)
	}
	return append(blocks, slack.NewActionBlock("santa_actions", buttons...))
}
