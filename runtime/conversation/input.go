package conversation

import (
	"strings"

	"secret-santa/domain"
)

type Action string

const (
	ActStart        Action = "start"
	ActCancel       Action = "cancel"
	ActHelp         Action = "help"
	ActMenu         Action = "menu"
	ActText         Action = "text"
	ActCreate       Action = "create"
	ActJoin         Action = "join"
	ActAccept       Action = "accept"
	ActDecline      Action = "decline"
	ActBudget       Action = "budget"
	ActConfirm      Action = "confirm"
	ActSkip         Action = "skip"
	ActEdit         Action = "edit"
	ActProfile      Action = "profile"
	ActRoomInfo     Action = "room"
	ActParticipants Action = "participants"
	ActInvite       Action = "invite"
	ActRaffle       Action = "raffle"
	ActRecipient    Action = "recipient"
	ActSwitch       Action = "switch"
	ActSelect       Action = "select"
	ActLeave        Action = "leave"
	ActManage       Action = "manage"
	ActDelete       Action = "delete"
	ActUnknown      Action = "unknown"
)

// commands are the actions a user may also type as a slash command.
var commands = map[string]Action{
	"start":        ActStart,
	"cancel":       ActCancel,
	"back":         ActCancel,
	"help":         ActHelp,
	"menu":         ActMenu,
	"create":       ActCreate,
	"join":         ActJoin,
	"profile":      ActProfile,
	"room":         ActRoomInfo,
	"participants": ActParticipants,
	"invite":       ActInvite,
	"raffle":       ActRaffle,
	"recipient":    ActRecipient,
	"switch":       ActSwitch,
	"leave":        ActLeave,
	"manage":       ActManage,
}

// payloads are the actions carried by inline buttons.
var payloads = map[Action]struct{}{
	ActCancel: {}, ActMenu: {}, ActCreate: {}, ActJoin: {}, ActAccept: {}, ActDecline: {},
	ActBudget: {}, ActConfirm: {}, ActSkip: {}, ActEdit: {}, ActProfile: {}, ActRoomInfo: {},
	ActParticipants: {}, ActInvite: {}, ActRaffle: {}, ActRecipient: {}, ActSwitch: {},
	ActSelect: {}, ActLeave: {}, ActManage: {}, ActDelete: {}, ActHelp: {},
}

// Input is an event normalized for the transition table.
type Input struct {
	Action Action
	// Arg is the button argument, or the text following a command.
	Arg    string
	Text   string
	Sender domain.Sender
	// Origin is the message holding the pressed button, if any.
	Origin        *domain.MessageRef
	InteractionID string
}

// Payload builds the data carried by a button.
func Payload(action Action, arg string) string {
	if arg == "" {
		return string(action)
	}
	return string(action) + ":" + arg
}

// Normalize maps a transport event onto an action.
// Unknown commands and payloads become ActUnknown, which no state accepts.
func Normalize(event domain.Event) Input {
	in := Input{Sender: event.From()}
	switch e := event.(type) {
	case domain.TextEvent:
		in.Text = strings.TrimSpace(e.Text)
		in.Action = ActText
		if !strings.HasPrefix(in.Text, "/") {
			return in
		}
		in.Action = ActUnknown
		name, arg, _ := strings.Cut(strings.TrimPrefix(in.Text, "/"), " ")
		// "/start@santa_bot" in group chats
		name, _, _ = strings.Cut(name, "@")
		if action, ok := commands[strings.ToLower(name)]; ok {
			in.Action = action
			in.Arg = strings.TrimSpace(arg)
		}
	case domain.InteractionEvent:
		in.InteractionID = e.InteractionID
		in.Origin = e.Origin
		name, arg, _ := strings.Cut(e.Payload, ":")
		in.Action = ActUnknown
		if _, ok := payloads[Action(name)]; ok {
			in.Action = Action(name)
			in.Arg = arg
		}
	}
	return in
}
