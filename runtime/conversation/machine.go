package conversation

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"secret-santa/contract"
	"secret-santa/domain"
	"secret-santa/errors"
	"secret-santa/services"
)

// errUnexpected marks input the current state does not accept.
var errUnexpected = stderrors.New("unexpected input")

// SessionStore keeps the state of each user between events.
// Only the worker owning a user's shard reads or writes that user's entry.
type SessionStore interface {
	Load(userID domain.UserID) State
	Save(userID domain.UserID, state State)
}

// transition computes the next state and the replies for one input.
// A nil state keeps the current one. Without replies, the prompt of the next state is sent.
type transition func(ctx context.Context, m *Machine, state State, in Input) (State, []domain.Message, error)

type key struct {
	kind   Kind
	action Action
}

var transitions = map[key]transition{
	{KindMainMenu, ActCreate}:       startCreate,
	{KindMainMenu, ActJoin}:         startJoin,
	{KindMainMenu, ActProfile}:      showProfile,
	{KindMainMenu, ActEdit}:         startEdit,
	{KindMainMenu, ActRoomInfo}:     showRoomInfo,
	{KindMainMenu, ActParticipants}: showParticipants,
	{KindMainMenu, ActInvite}:       showInvite,
	{KindMainMenu, ActRaffle}:       runRaffle,
	{KindMainMenu, ActRecipient}:    showRecipient,
	{KindMainMenu, ActSwitch}:       startSwitch,
	{KindMainMenu, ActLeave}:        leaveRoom,
	{KindMainMenu, ActManage}:       startManage,

	{KindCreatingRoom, ActText}:    createRoomText,
	{KindCreatingRoom, ActBudget}:  createRoomBudget,
	{KindCreatingRoom, ActConfirm}: createRoomConfirm,
	{KindCreatingRoom, ActDecline}: createRoomRestart,

	{KindJoiningByCode, ActText}: enterCode,

	{KindJoiningRoom, ActAccept}:  acceptInvitation,
	{KindJoiningRoom, ActDecline}: backToMenu,

	{KindRegisteringProfile, ActText}: registerText,
	{KindRegisteringProfile, ActSkip}: registerSkip,

	{KindConfirmingProfile, ActConfirm}: confirmProfile,
	{KindConfirmingProfile, ActEdit}:    confirmEdit,
	{KindConfirmingProfile, ActText}:    confirmText,

	{KindEditingProfile, ActText}: editProfile,

	{KindSwitchingRoom, ActSelect}: selectRoom,

	{KindManagingRoom, ActDelete}:  askDelete,
	{KindManagingRoom, ActConfirm}: confirmDelete,
	{KindManagingRoom, ActDecline}: backToMenu,
}

// Accepts reports whether kind has a transition for action.
// Universal actions are accepted everywhere.
func Accepts(kind Kind, action Action) bool {
	switch action {
	case ActStart, ActCancel, ActMenu, ActHelp:
		return true
	}
	_, ok := transitions[key{kind, action}]
	return ok
}

// Machine interprets events against the user's state and the store.
type Machine struct {
	service  services.ISantaService
	notifier contract.Notifier
	render   *Renderer
	sessions SessionStore
	log      *slog.Logger
}

var _ contract.EventHandler = (*Machine)(nil)

func NewMachine(
	service services.ISantaService,
	notifier contract.Notifier,
	render *Renderer,
	sessions SessionStore,
	log *slog.Logger,
) *Machine {
	return &Machine{
		service:  service,
		notifier: notifier,
		render:   render,
		sessions: sessions,
		log:      log,
	}
}

// Handle processes one admitted event of one user.
// User facing failures are answered and swallowed; only internal failures are returned,
// after the user has been told and sent back to the main menu.
func (m *Machine) Handle(ctx context.Context, event domain.Event) error {
	in := Normalize(event)
	userID := in.Sender.ID
	if in.InteractionID != "" {
		if err := m.notifier.AcknowledgeInteraction(ctx, in.InteractionID, ""); err != nil {
			m.log.Debug("Interaction not acknowledged", "user", userID, "error", err)
		}
	}
	m.service.RefreshHandle(userID, in.Sender.Handle)

	current := m.sessions.Load(userID)
	if current == nil {
		current = MainMenu{}
	}
	next, replies, err := m.apply(ctx, current, in)
	switch {
	case err == nil:
	case stderrors.Is(err, errUnexpected):
		replies = []domain.Message{m.render.Reprompt()}
	case errors.IsUserFacing(err):
		replies = []domain.Message{m.render.Error(err)}
	default:
		m.log.Error("Event failed", "user", userID, "state", current.Kind(), "action", in.Action, "error", err)
		m.sessions.Save(userID, MainMenu{})
		m.reply(ctx, in, []domain.Message{m.render.InternalError()})
		return err
	}
	if next == nil {
		next = current
	}
	if len(replies) == 0 || err != nil {
		prompt, perr := m.prompt(userID, next)
		if perr != nil {
			m.log.Debug("Prompt unavailable, back to menu", "user", userID, "state", next.Kind(), "error", perr)
			next = MainMenu{}
			prompt = m.menu(userID)
		}
		replies = append(replies, prompt)
	}
	m.sessions.Save(userID, next)
	m.reply(ctx, in, replies)
	return nil
}

func (m *Machine) apply(ctx context.Context, state State, in Input) (State, []domain.Message, error) {
	switch in.Action {
	case ActStart:
		return start(ctx, m, state, in)
	case ActCancel:
		return MainMenu{}, []domain.Message{m.render.Cancelled(), m.menu(in.Sender.ID)}, nil
	case ActMenu:
		return MainMenu{}, nil, nil
	case ActHelp:
		return nil, []domain.Message{m.render.Help()}, nil
	}
	next, ok := transitions[key{state.Kind(), in.Action}]
	if !ok {
		return nil, nil, errUnexpected
	}
	return next(ctx, m, state, in)
}

// reply edits the message holding the pressed button with the first reply, when there is one,
// and sends the others.
func (m *Machine) reply(ctx context.Context, in Input, msgs []domain.Message) {
	for i, msg := range msgs {
		if i == 0 && in.Origin != nil {
			err := m.notifier.EditText(ctx, *in.Origin, msg)
			if err == nil {
				continue
			}
			m.log.Debug("Edit failed, sending instead", "user", in.Sender.ID, "error", err)
		}
		if _, err := m.notifier.SendText(ctx, in.Sender.ID, msg); err != nil {
			m.log.Warn("Reply not delivered", "user", in.Sender.ID, "error", err)
		}
	}
}

func (m *Machine) prompt(userID domain.UserID, state State) (domain.Message, error) {
	switch s := state.(type) {
	case CreatingRoom:
		switch s.Step {
		case StepBudget:
			return m.render.AskBudget(), nil
		case StepDate:
			return m.render.AskDate(), nil
		case StepConfirm:
			return m.render.ConfirmRoom(s.Draft), nil
		default:
			return m.render.AskTitle(), nil
		}
	case JoiningByCode:
		return m.render.AskCode(), nil
	case JoiningRoom:
		room, err := m.service.Room(s.RoomID)
		if err != nil {
			return domain.Message{}, err
		}
		return m.render.JoinInvitation(room), nil
	case RegisteringProfile:
		return m.render.AskProfileStep(s.Step), nil
	case ConfirmingProfile:
		return m.render.ConfirmProfile(s), nil
	case EditingProfile:
		return m.render.AskField(s.Field), nil
	case SwitchingRoom:
		active, _ := m.service.ActiveRoom(userID)
		return m.render.SwitchList(m.service.RoomsOf(userID), active.ID), nil
	case ManagingRoom:
		room, err := m.service.Room(s.RoomID)
		if err != nil {
			return domain.Message{}, err
		}
		return m.render.ManagePanel(room, s.Deleting), nil
	default:
		return m.menu(userID), nil
	}
}

func (m *Machine) menu(userID domain.UserID) domain.Message {
	view := MenuView{UserID: userID, Rooms: m.service.RoomsOf(userID)}
	if active, err := m.service.ActiveRoom(userID); err == nil {
		view.Active = &active
	}
	return m.render.MainMenu(view)
}

// activeRoom is the room the menu actions apply to.
func (m *Machine) activeRoom(userID domain.UserID) (domain.Room, error) {
	return m.service.ActiveRoom(userID)
}

// joinable checks an invitation before any profile is asked.
// Being already in the room focuses the user on it.
func (m *Machine) joinable(room domain.Room, userID domain.UserID) error {
	if room.Has(userID) {
		if err := m.service.SetActiveRoom(userID, room.ID); err != nil {
			return err
		}
		return errors.ErrAlreadyJoined
	}
	if domain.DatePassed(room.GiftDate, m.service.Now()) {
		return errors.ErrExchangeDatePassed
	}
	if !room.Active {
		return errors.ErrRoomInactive
	}
	return nil
}

func start(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	if in.Arg == "" {
		return MainMenu{}, nil, nil
	}
	room, err := m.service.Room(domain.RoomID(in.Arg))
	if err != nil {
		return MainMenu{}, nil, err
	}
	if err := m.joinable(room, in.Sender.ID); err != nil {
		return MainMenu{}, nil, err
	}
	return JoiningRoom{RoomID: room.ID}, nil, nil
}

func backToMenu(context.Context, *Machine, State, Input) (State, []domain.Message, error) {
	return MainMenu{}, nil, nil
}

func startCreate(context.Context, *Machine, State, Input) (State, []domain.Message, error) {
	return CreatingRoom{Step: StepTitle}, nil, nil
}

func createRoomText(_ context.Context, m *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(CreatingRoom)
	switch s.Step {
	case StepTitle:
		title := strings.TrimSpace(in.Text)
		if title == "" {
			return nil, nil, errors.ErrEmptyField
		}
		if utf8.RuneCountInString(title) > domain.MaxTitleLen {
			return nil, nil, errors.ErrFieldTooLong
		}
		s.Draft.Title = title
		s.Step = StepBudget
	case StepBudget:
		budget, err := domain.ParseBudget(in.Text)
		if err != nil {
			return nil, nil, err
		}
		s.Draft.Budget = budget
		s.Step = StepDate
	case StepDate:
		date, err := domain.ParseGiftDate(in.Text)
		if err != nil {
			return nil, nil, err
		}
		if domain.DatePassed(date, m.service.Now()) {
			return nil, nil, errors.ErrInvalidDate
		}
		s.Draft.GiftDate = date
		s.Step = StepConfirm
	default:
		return nil, nil, errUnexpected
	}
	return s, nil, nil
}

func createRoomBudget(_ context.Context, _ *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(CreatingRoom)
	if s.Step != StepBudget {
		return nil, nil, errUnexpected
	}
	budget, err := domain.ParseBudget(in.Arg)
	if err != nil {
		return nil, nil, err
	}
	s.Draft.Budget = budget
	s.Step = StepDate
	return s, nil, nil
}

func createRoomConfirm(_ context.Context, m *Machine, state State, _ Input) (State, []domain.Message, error) {
	s := state.(CreatingRoom)
	if s.Step != StepConfirm {
		return nil, nil, errUnexpected
	}
	if domain.DatePassed(s.Draft.GiftDate, m.service.Now()) {
		return CreatingRoom{Step: StepDate, Draft: s.Draft}, nil, errors.ErrInvalidDate
	}
	draft := s.Draft
	return RegisteringProfile{Target: Target{NewRoom: &draft}, Step: StepName}, nil, nil
}

func createRoomRestart(_ context.Context, _ *Machine, state State, _ Input) (State, []domain.Message, error) {
	if state.(CreatingRoom).Step != StepConfirm {
		return nil, nil, errUnexpected
	}
	return CreatingRoom{Step: StepTitle}, nil, nil
}

func startJoin(context.Context, *Machine, State, Input) (State, []domain.Message, error) {
	return JoiningByCode{}, nil, nil
}

func enterCode(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.service.RoomByCode(in.Text)
	if err != nil {
		// Let the user type it again.
		return nil, nil, err
	}
	if err := m.joinable(room, in.Sender.ID); err != nil {
		return MainMenu{}, nil, err
	}
	return JoiningRoom{RoomID: room.ID}, nil, nil
}

func acceptInvitation(_ context.Context, m *Machine, state State, in Input) (State, []domain.Message, error) {
	room, err := m.service.Room(state.(JoiningRoom).RoomID)
	if err != nil {
		return MainMenu{}, nil, err
	}
	if err := m.joinable(room, in.Sender.ID); err != nil {
		return MainMenu{}, nil, err
	}
	return RegisteringProfile{Target: Target{RoomID: room.ID}, Step: StepName}, nil, nil
}

func registerText(_ context.Context, _ *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(RegisteringProfile)
	field, next := domain.FieldName, StepWish
	switch s.Step {
	case StepWish:
		field, next = domain.FieldWishlist, StepAntiWish
	case StepAntiWish:
		field, next = domain.FieldAntiWishlist, ""
	}
	if err := s.Draft.Set(field, in.Text); err != nil {
		return nil, nil, err
	}
	return advanceProfile(s, next), nil, nil
}

func registerSkip(_ context.Context, _ *Machine, state State, _ Input) (State, []domain.Message, error) {
	s := state.(RegisteringProfile)
	switch s.Step {
	case StepWish:
		return advanceProfile(s, StepAntiWish), nil, nil
	case StepAntiWish:
		return advanceProfile(s, ""), nil, nil
	default:
		// The name is mandatory.
		return nil, nil, errUnexpected
	}
}

func advanceProfile(s RegisteringProfile, next Step) State {
	if next == "" {
		return ConfirmingProfile{Target: s.Target, Draft: s.Draft}
	}
	s.Step = next
	return s
}

// confirmProfile is the single store mutation of the create and join flows.
func confirmProfile(_ context.Context, m *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(ConfirmingProfile)
	participant, err := s.Draft.Participant(in.Sender)
	if err != nil {
		return nil, nil, err
	}
	if s.Target.Creating() {
		d := s.Target.NewRoom
		room, err := m.service.CreateRoom(d.Title, participant, d.Budget, d.GiftDate)
		switch {
		case stderrors.Is(err, errors.ErrInvalidDate):
			// The day changed while the profile was typed.
			return CreatingRoom{Step: StepDate, Draft: *d}, nil, err
		case err != nil:
			return MainMenu{}, nil, err
		}
		return MainMenu{}, []domain.Message{m.render.RoomCreated(room)}, nil
	}
	if err := m.service.JoinRoom(s.Target.RoomID, participant); err != nil {
		return MainMenu{}, nil, err
	}
	room, err := m.service.Room(s.Target.RoomID)
	if err != nil {
		return MainMenu{}, nil, err
	}
	return MainMenu{}, []domain.Message{m.render.Joined(room)}, nil
}

func confirmEdit(_ context.Context, _ *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(ConfirmingProfile)
	field, err := domain.ParseProfileField(in.Arg)
	if err != nil {
		return nil, nil, err
	}
	s.Editing = field
	return s, nil, nil
}

func confirmText(_ context.Context, _ *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(ConfirmingProfile)
	if s.Editing == "" {
		return nil, nil, errUnexpected
	}
	if err := s.Draft.Set(s.Editing, in.Text); err != nil {
		return nil, nil, err
	}
	s.Editing = ""
	return s, nil, nil
}

func startEdit(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	field, err := domain.ParseProfileField(in.Arg)
	if err != nil {
		return nil, nil, err
	}
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	if room.AssignmentDone {
		return nil, nil, errors.ErrAssignmentAlreadyDone
	}
	return EditingProfile{RoomID: room.ID, Field: field}, nil, nil
}

func editProfile(_ context.Context, m *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(EditingProfile)
	err := m.service.UpdateProfile(s.RoomID, in.Sender.ID, s.Field, in.Text)
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		return nil, nil, err
	case err != nil:
		return MainMenu{}, nil, err
	}
	room, err := m.service.Room(s.RoomID)
	if err != nil {
		return MainMenu{}, nil, err
	}
	p, ok := room.Participants[in.Sender.ID]
	if !ok {
		return MainMenu{}, nil, errors.ErrParticipantNotFound
	}
	return MainMenu{}, []domain.Message{m.render.ProfileUpdated(), m.render.Profile(room, *p)}, nil
}

func showProfile(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	p, ok := room.Participants[in.Sender.ID]
	if !ok {
		return nil, nil, errors.ErrParticipantNotFound
	}
	return nil, []domain.Message{m.render.Profile(room, *p)}, nil
}

func showRoomInfo(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, []domain.Message{m.render.RoomInfo(room)}, nil
}

func showParticipants(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, []domain.Message{m.render.Participants(room)}, nil
}

func showInvite(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsAdmin(in.Sender.ID) {
		return nil, nil, errors.ErrNotAuthorized
	}
	return nil, []domain.Message{m.render.Invite(room)}, nil
}

func runRaffle(ctx context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	drawn, report, err := m.service.RunRaffle(ctx, room.ID, in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, []domain.Message{m.render.RaffleDone(drawn, report)}, nil
}

func showRecipient(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	recipient, err := room.RecipientOf(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, []domain.Message{m.render.Recipient(room, recipient)}, nil
}

func startSwitch(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	if len(m.service.RoomsOf(in.Sender.ID)) == 0 {
		return nil, nil, errors.ErrNoActiveRoom
	}
	return SwitchingRoom{}, nil, nil
}

func selectRoom(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	roomID := domain.RoomID(in.Arg)
	if err := m.service.SetActiveRoom(in.Sender.ID, roomID); err != nil {
		return MainMenu{}, nil, err
	}
	room, err := m.service.Room(roomID)
	if err != nil {
		return MainMenu{}, nil, err
	}
	return MainMenu{}, []domain.Message{m.render.Switched(room), m.menu(in.Sender.ID)}, nil
}

func leaveRoom(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := m.service.LeaveRoom(room.ID, in.Sender.ID); err != nil {
		return nil, nil, err
	}
	return MainMenu{}, []domain.Message{m.render.Left(room), m.menu(in.Sender.ID)}, nil
}

func startManage(_ context.Context, m *Machine, _ State, in Input) (State, []domain.Message, error) {
	room, err := m.activeRoom(in.Sender.ID)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsAdmin(in.Sender.ID) {
		return nil, nil, errors.ErrNotAuthorized
	}
	return ManagingRoom{RoomID: room.ID}, nil, nil
}

func askDelete(_ context.Context, _ *Machine, state State, _ Input) (State, []domain.Message, error) {
	s := state.(ManagingRoom)
	s.Deleting = true
	return s, nil, nil
}

func confirmDelete(ctx context.Context, m *Machine, state State, in Input) (State, []domain.Message, error) {
	s := state.(ManagingRoom)
	if !s.Deleting {
		return nil, nil, errUnexpected
	}
	deleted, report, err := m.service.DeleteRoom(ctx, s.RoomID, in.Sender.ID)
	if err != nil {
		return MainMenu{}, nil, err
	}
	return MainMenu{}, []domain.Message{m.render.RoomDeleted(deleted, report), m.menu(in.Sender.ID)}, nil
}
