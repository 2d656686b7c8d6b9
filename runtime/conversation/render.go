package conversation

import (
	stderrors "errors"
	"fmt"
	"html"
	"strings"

	"github.com/samber/lo"

	"secret-santa/domain"
	"secret-santa/errors"
	"secret-santa/sink"
)

// Renderer turns states and results into chat messages.
// All user supplied text is escaped, every message is HTML.
type Renderer struct {
	botName string
}

func NewRenderer(botName string) *Renderer {
	return &Renderer{botName: strings.TrimPrefix(botName, "@")}
}

// DeepLink opens the bot with the room id as start parameter.
func (r *Renderer) DeepLink(roomID domain.RoomID) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", r.botName, roomID)
}

// MenuView is what the main menu needs to know about a user.
type MenuView struct {
	UserID domain.UserID
	Rooms  []domain.Room
	Active *domain.Room
}

func (r *Renderer) MainMenu(view MenuView) domain.Message {
	var b strings.Builder
	rows := [][]domain.Button{}
	if view.Active == nil {
		b.WriteString("🎅 <b>Secret Santa</b>\n\nYou are not in any room yet. Create one or join with a code.")
	} else {
		room := view.Active
		fmt.Fprintf(&b, "🎅 <b>%s</b>\n", esc(room.Title))
		fmt.Fprintf(&b, "Budget: %s · Exchange: %s\n", room.Budget, domain.FormatDate(room.GiftDate))
		fmt.Fprintf(&b, "Participants: %d", len(room.Participants))
		if room.AssignmentDone {
			b.WriteString("\n✅ The raffle is done.")
		}
		rows = append(rows,
			row(button("ℹ️ Room", ActRoomInfo, ""), button("👥 Participants", ActParticipants, "")),
		)
		personal := []domain.Button{button("🙋 My profile", ActProfile, "")}
		if room.AssignmentDone {
			personal = append(personal, button("🎁 My recipient", ActRecipient, ""))
		}
		rows = append(rows, personal)
		if room.IsAdmin(view.UserID) {
			admin := []domain.Button{button("🔗 Invite", ActInvite, "")}
			if !room.AssignmentDone {
				admin = append(admin, button("🎲 Run raffle", ActRaffle, ""))
			}
			rows = append(rows, admin, row(button("⚙️ Manage room", ActManage, "")))
		} else if !room.AssignmentDone {
			rows = append(rows, row(button("🚪 Leave room", ActLeave, "")))
		}
		if len(view.Rooms) > 1 {
			rows = append(rows, row(button(fmt.Sprintf("🔀 Switch room (%d)", len(view.Rooms)), ActSwitch, "")))
		}
	}
	rows = append(rows, row(button("➕ Create room", ActCreate, ""), button("🔑 Join room", ActJoin, "")))
	return message(b.String(), rows...)
}

func (r *Renderer) Help() domain.Message {
	return message(strings.Join([]string{
		"<b>How it works</b>",
		"1. An organizer creates a room with a budget and an exchange date.",
		"2. Friends join with the invite code or link and fill in a wishlist.",
		"3. The organizer runs the raffle: everyone privately learns who they offer a gift to.",
		"",
		"/start opens the menu, /cancel aborts the current step.",
	}, "\n"), row(button("🏠 Menu", ActMenu, "")))
}

func (r *Renderer) Cancelled() domain.Message {
	return message("Cancelled.")
}

func (r *Renderer) Reprompt() domain.Message {
	return message("🤔 I didn't get that. Use the buttons below or /cancel.")
}

func (r *Renderer) AskTitle() domain.Message {
	return message(fmt.Sprintf("🎄 New room.\nSend its title (up to %d characters).", domain.MaxTitleLen), cancelRow())
}

func (r *Renderer) AskBudget() domain.Message {
	budgets := lo.Map(domain.AllowedBudgets, func(b domain.Budget, _ int) domain.Button {
		return button(b.String(), ActBudget, fmt.Sprintf("%d", int(b)))
	})
	rows := lo.Chunk(budgets, 3)
	return message("💰 Choose the gift budget.", append(rows, cancelRow())...)
}

func (r *Renderer) AskDate() domain.Message {
	return message("📅 Send the exchange date as DD.MM.YYYY, for example 25.12.2025.", cancelRow())
}

func (r *Renderer) ConfirmRoom(d RoomDraft) domain.Message {
	text := fmt.Sprintf("Check the room:\n\n<b>%s</b>\nBudget: %s\nExchange: %s\n\nNext you will fill in your own profile.",
		esc(d.Title), d.Budget, domain.FormatDate(d.GiftDate))
	return message(text,
		row(button("✅ Continue", ActConfirm, ""), button("✏️ Start over", ActDecline, "")),
		cancelRow())
}

func (r *Renderer) AskCode() domain.Message {
	return message("🔑 Send the invite code of the room.", cancelRow())
}

func (r *Renderer) JoinInvitation(room domain.Room) domain.Message {
	text := fmt.Sprintf("You are invited to <b>%s</b>.\nBudget: %s\nExchange: %s\nParticipants: %d\n\nJoin?",
		esc(room.Title), room.Budget, domain.FormatDate(room.GiftDate), len(room.Participants))
	return message(text, row(button("✅ Join", ActAccept, ""), button("❌ No thanks", ActDecline, "")))
}

func (r *Renderer) AskProfileStep(step Step) domain.Message {
	switch step {
	case StepWish:
		return message("🎁 What would you like to receive? Send your wishlist.",
			row(button("Skip", ActSkip, "")), cancelRow())
	case StepAntiWish:
		return message("🚫 Anything you would rather not receive?",
			row(button("Skip", ActSkip, "")), cancelRow())
	default:
		return message("🙋 What name should the others see?", cancelRow())
	}
}

func (r *Renderer) ConfirmProfile(state ConfirmingProfile) domain.Message {
	if state.Editing != "" {
		return r.AskField(state.Editing)
	}
	d := state.Draft
	text := fmt.Sprintf("Your profile:\n\n%s\n\nIs everything right?",
		profileText(d.Name, d.Wishlist, d.AntiWishlist))
	confirm := "✅ Join the room"
	if state.Target.Creating() {
		confirm = "✅ Create the room"
	}
	return message(text,
		row(button(confirm, ActConfirm, "")),
		editRow(),
		cancelRow())
}

func (r *Renderer) AskField(field domain.ProfileField) domain.Message {
	return message(fmt.Sprintf("✏️ Send the new %s.", fieldLabel(field)), cancelRow())
}

func (r *Renderer) SwitchList(rooms []domain.Room, active domain.RoomID) domain.Message {
	rows := lo.Map(rooms, func(room domain.Room, _ int) []domain.Button {
		label := room.Title
		if room.ID == active {
			label = "• " + label
		}
		return row(button(label, ActSelect, string(room.ID)))
	})
	return message("🔀 Choose the room to work with.", append(rows, cancelRow())...)
}

func (r *Renderer) ManagePanel(room domain.Room, deleting bool) domain.Message {
	if deleting {
		return message(fmt.Sprintf("⚠️ Delete <b>%s</b> for all %d participants? This cannot be undone.",
			esc(room.Title), len(room.Participants)),
			row(button("🗑 Yes, delete", ActConfirm, ""), button("Keep it", ActDecline, "")))
	}
	admin := room.Participants[room.AdminID]
	status := "not done"
	if room.AssignmentDone {
		status = "done"
	}
	text := fmt.Sprintf("⚙️ <b>%s</b>\nParticipants: %d\nBudget: %s\nExchange: %s\nRaffle: %s\nOrganizer: %s\nCode: <code>%s</code>",
		esc(room.Title), len(room.Participants), room.Budget, domain.FormatDate(room.GiftDate),
		status, mention(admin), room.JoinCode)
	return message(text, row(button("🗑 Delete room", ActDelete, "")), cancelRow())
}

func (r *Renderer) Profile(room domain.Room, p domain.Participant) domain.Message {
	text := fmt.Sprintf("🙋 Your profile in <b>%s</b>:\n\n%s", esc(room.Title),
		profileText(p.DisplayName, p.Wishlist, p.AntiWishlist))
	if room.AssignmentDone {
		return message(text+"\n\nThe raffle is done, the profile can no longer change.", menuRow())
	}
	return message(text, editRow(), menuRow())
}

func (r *Renderer) RoomInfo(room domain.Room) domain.Message {
	status := "⏳ waiting for the raffle"
	if room.AssignmentDone {
		status = "✅ raffle done"
	}
	text := fmt.Sprintf("🎄 <b>%s</b>\nBudget: %s\nExchange: %s\nParticipants: %d\nStatus: %s",
		esc(room.Title), room.Budget, domain.FormatDate(room.GiftDate), len(room.Participants), status)
	return message(text, menuRow())
}

func (r *Renderer) Participants(room domain.Room) domain.Message {
	lines := lo.Map(room.Members(), func(p domain.Participant, i int) string {
		line := fmt.Sprintf("%d. %s", i+1, mention(&p))
		if room.IsAdmin(p.UserID) {
			line += " 👑"
		}
		return line
	})
	return message(fmt.Sprintf("👥 <b>%s</b>\n\n%s", esc(room.Title), strings.Join(lines, "\n")), menuRow())
}

func (r *Renderer) Invite(room domain.Room) domain.Message {
	text := fmt.Sprintf("🔗 Invite friends to <b>%s</b>.\n\nCode: <code>%s</code>\nLink: %s",
		esc(room.Title), room.JoinCode, r.DeepLink(room.ID))
	return message(text, menuRow())
}

func (r *Renderer) Recipient(room domain.Room, recipient domain.Participant) domain.Message {
	return message(r.recipientText(room, recipient), menuRow())
}

func (r *Renderer) RaffleDone(room domain.Room, report sink.Report) domain.Message {
	text := fmt.Sprintf("🎲 The raffle of <b>%s</b> is done.\nNotified %d of %d participants.",
		esc(room.Title), report.Delivered, len(room.Participants))
	if len(report.Failed) > 0 {
		text += "\nSome participants could not be reached; they will see their recipient in the menu."
	}
	return message(text, menuRow())
}

func (r *Renderer) RoomCreated(room domain.Room) domain.Message {
	text := fmt.Sprintf("🎉 Room <b>%s</b> created.\n\nCode: <code>%s</code>\nLink: %s\n\nShare them with the participants.",
		esc(room.Title), room.JoinCode, r.DeepLink(room.ID))
	return message(text, menuRow())
}

func (r *Renderer) Joined(room domain.Room) domain.Message {
	return message(fmt.Sprintf("🎉 You joined <b>%s</b>. Wait for the organizer to run the raffle.", esc(room.Title)), menuRow())
}

func (r *Renderer) Left(room domain.Room) domain.Message {
	return message(fmt.Sprintf("🚪 You left <b>%s</b>.", esc(room.Title)))
}

func (r *Renderer) RoomDeleted(room domain.Room, report sink.Report) domain.Message {
	return message(fmt.Sprintf("🗑 <b>%s</b> deleted. %d participants notified.", esc(room.Title), report.Delivered))
}

func (r *Renderer) Switched(room domain.Room) domain.Message {
	return message(fmt.Sprintf("🔀 Now working with <b>%s</b>.", esc(room.Title)))
}

func (r *Renderer) ProfileUpdated() domain.Message {
	return message("✅ Profile updated.")
}

// Error explains a user facing failure.
func (r *Renderer) Error(err error) domain.Message {
	return message("⚠️ " + errorText(err))
}

func (r *Renderer) InternalError() domain.Message {
	return message("⚠️ Something went wrong. Please try again with /start.")
}

// RecipientNotice is the private message each giver receives after the raffle.
func (r *Renderer) RecipientNotice(room domain.Room, recipient domain.Participant) domain.Message {
	return message(r.recipientText(room, recipient))
}

func (r *Renderer) RoomDeletedNotice(room domain.Room) domain.Message {
	return message(fmt.Sprintf("🗑 The organizer deleted the room <b>%s</b>.", esc(room.Title)))
}

func (r *Renderer) recipientText(room domain.Room, recipient domain.Participant) string {
	return fmt.Sprintf("🎁 <b>%s</b>\nYou offer a gift to %s.\n\n%s\n\nBudget: %s\nExchange: %s",
		esc(room.Title), mention(&recipient),
		profileText(recipient.DisplayName, recipient.Wishlist, recipient.AntiWishlist),
		room.Budget, domain.FormatDate(room.GiftDate))
}

func errorText(err error) string {
	texts := []struct {
		err  error
		text string
	}{
		{errors.ErrInvalidBudget, "Choose one of the proposed budgets."},
		{errors.ErrInvalidDate, "The date must be DD.MM.YYYY and later than today."},
		{errors.ErrEmptyField, "This cannot be empty."},
		{errors.ErrFieldTooLong, "This is too long."},
		{errors.ErrInvalidJoinCode, "Send the invite code."},
		{errors.ErrNotAuthorized, "Only the organizer can do this."},
		{errors.ErrRoomNotFound, "This room does not exist anymore."},
		{errors.ErrJoinCodeNotFound, "No room has this code. Check it and send it again."},
		{errors.ErrParticipantNotFound, "You are not a participant of this room."},
		{errors.ErrNoActiveRoom, "You are not in any room yet."},
		{errors.ErrRoomInactive, "This room is closed."},
		{errors.ErrAlreadyJoined, "You already are in this room."},
		{errors.ErrExchangeDatePassed, "The exchange date has passed, the room no longer accepts participants."},
		{errors.ErrAssignmentAlreadyDone, "The raffle is already done."},
		{errors.ErrAssignmentNotDone, "The raffle has not been run yet."},
		{errors.ErrInsufficientParticipants, "At least 2 participants are needed for the raffle."},
		{errors.ErrAdminCannotLeave, "The organizer cannot leave the room, delete it instead."},
	}
	for _, t := range texts {
		if stderrors.Is(err, t.err) {
			return t.text
		}
	}
	return "This cannot be done right now."
}

func fieldLabel(field domain.ProfileField) string {
	switch field {
	case domain.FieldWishlist:
		return "wishlist"
	case domain.FieldAntiWishlist:
		return "anti-wishlist"
	default:
		return "name"
	}
}

func profileText(name, wishlist, antiWishlist string) string {
	return fmt.Sprintf("Name: %s\nWishlist: %s\nAnti-wishlist: %s",
		esc(name), orDash(wishlist), orDash(antiWishlist))
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return esc(s)
}

func mention(p *domain.Participant) string {
	if p == nil {
		return "?"
	}
	if p.Handle != "" {
		return "@" + esc(p.Handle)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, int64(p.UserID), esc(p.DisplayName))
}

func esc(s string) string {
	return html.EscapeString(s)
}

func message(text string, rows ...[]domain.Button) domain.Message {
	msg := domain.Message{Text: text, ParseMode: domain.HTML}
	if len(rows) > 0 {
		msg.Keyboard = &domain.Keyboard{Inline: true, Rows: rows}
	}
	return msg
}

func button(text string, action Action, arg string) domain.Button {
	return domain.Button{Text: text, Payload: Payload(action, arg)}
}

func row(buttons ...domain.Button) []domain.Button {
	return buttons
}

func cancelRow() []domain.Button {
	return row(button("⬅️ Back", ActCancel, ""))
}

func menuRow() []domain.Button {
	return row(button("🏠 Menu", ActMenu, ""))
}

func editRow() []domain.Button {
	return row(
		button("✏️ Name", ActEdit, string(domain.FieldName)),
		button("✏️ Wishlist", ActEdit, string(domain.FieldWishlist)),
		button("✏️ Anti-wishlist", ActEdit, string(domain.FieldAntiWishlist)),
	)
}
