package test

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"

	"secret-santa/domain"
	"secret-santa/internal"
	"secret-santa/repositories"
)

// BotSuite runs a whole bot in process against a fake chat.
type BotSuite struct {
	suite.Suite
	Config     Config
	Chat       *Chat
	Bot        *internal.Bot
	repository repositories.ISnapshotRepository
	stopBot    func()
}

func (s *BotSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BotSuite) SetupTest() {
	s.Chat = NewChat(func(userID domain.UserID, msg domain.Message) {
		if s.Config.Transcript {
			s.T().Logf("-> %d: %s", userID, msg.Text)
		}
	})
	s.repository = s.newRepository()
	s.StartBot()
}

func (s *BotSuite) TearDownTest() {
	s.StopBot()
}

func (s *BotSuite) newRepository() repositories.ISnapshotRepository {
	dir := s.T().TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	if s.Config.Storage == internal.StorageFile {
		return repositories.NewFileSnapshotRepository(dir+"/santa.json", log)
	}
	// Reduced to 16 Mo for testing
	db, err := badger.Open(badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	return repositories.NewBadgerSnapshotRepository(db, log)
}

func (s *BotSuite) botConfig() internal.Config {
	return internal.Config{
		BotToken:          "123:test",
		NumberOfWorkers:   4,
		BufferSize:        64,
		HandleTimeout:     5 * time.Second,
		NotifyWorkers:     4,
		DeliveryTimeout:   2 * time.Second,
		SendRetries:       0,
		DedupWindow:       time.Minute,
		PollMinBackoff:    10 * time.Millisecond,
		PollMaxBackoff:    50 * time.Millisecond,
		RestartInterval:   10 * time.Millisecond,
		SnapshotInterval:  time.Hour,
		HeartbeatInterval: time.Hour,
		StorageBackend:    s.Config.Storage,
		LogLevel:          "ERROR",
	}
}

// StartBot builds a bot on the suite repository, restoring whatever it holds.
func (s *BotSuite) StartBot() {
	log := logs.GetLoggerFromLevel(slog.LevelError)
	bot, err := internal.NewBot(s.botConfig(), s.Chat, s.Chat, s.repository, "santa_bot", log)
	s.Require().NoError(err)
	s.Bot = bot

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()
	s.stopBot = func() {
		cancel()
		select {
		case err := <-done:
			s.NoError(err)
		case <-time.After(5 * time.Second):
			s.Fail("bot did not stop")
		}
	}
}

func (s *BotSuite) StopBot() {
	if s.stopBot != nil {
		s.stopBot()
		s.stopBot = nil
	}
}

// Step prints a header for a group of exchanges.
func (s *BotSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Say types text as user and waits for a reply containing expect.
func (s *BotSuite) Say(user domain.Sender, text, expect string) {
	s.T().Helper()
	before := s.Chat.Count(user.ID)
	s.Chat.Text(user, text)
	s.waitFor(user.ID, before, expect)
}

// Tap presses a button as user and waits for a reply containing expect.
func (s *BotSuite) Tap(user domain.Sender, payload, expect string) {
	s.T().Helper()
	before := s.Chat.Count(user.ID)
	s.Chat.Press(user, payload)
	s.waitFor(user.ID, before, expect)
}

func (s *BotSuite) waitFor(userID domain.UserID, before int, expect string) {
	s.T().Helper()
	s.Require().Eventuallyf(func() bool { return s.Chat.Received(userID, before, expect) },
		3*time.Second, 10*time.Millisecond, "user %d never received %q", userID, expect)
}
