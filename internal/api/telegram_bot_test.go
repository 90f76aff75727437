package api

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/aqua-monitor/internal/entities"
	"github.com/abelzeko/aqua-monitor/internal/integration/openai"
	"github.com/abelzeko/aqua-monitor/internal/repository"
	"github.com/abelzeko/aqua-monitor/internal/scoring"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type stubInterpreter struct {
	resp *openai.AgentResponse
}

func (s *stubInterpreter) InterpretUserQuery(ctx context.Context, userMessage string) (*openai.AgentResponse, error) {
	return s.resp, nil
}

func newTestRepo(t *testing.T) *repository.SQLiteAssessmentRepository {
	t.Helper()
	repo, err := repository.NewSQLiteAssessmentRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestBot(t *testing.T, interpreter openai.QueryInterpreter) (*TelegramBot, *recordingSender, *repository.SQLiteAssessmentRepository) {
	t.Helper()
	repo := newTestRepo(t)
	sender := &recordingSender{}
	bot := &TelegramBot{
		sender:  sender,
		useCase: usecases.NewAssessmentUseCase(repo, nil, interpreter, nil, nil),
	}
	return bot, sender, repo
}

// commandMessage builds a message the way Telegram delivers a bot command
func commandMessage(chatID int64, text string) *tgbotapi.Message {
	length := len(text)
	if i := strings.Index(text, " "); i >= 0 {
		length = i
	}
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: chatID, UserName: "farmer"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: chatID, UserName: "farmer"},
	}
}

func lastText(t *testing.T, s *recordingSender) string {
	t.Helper()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1].Text
}

func TestPredictCommand(t *testing.T) {
	bot, sender, _ := newTestBot(t, nil)

	bot.handleMessage(context.Background(), commandMessage(7, "/predict 6.0 2.0 0.02"))

	text := lastText(t, sender)
	assert.Equal(t, int64(7), sender.sent[0].ChatID)
	assert.Contains(t, text, "Medium Risk")
	assert.Contains(t, text, "37.5%")
	assert.Contains(t, text, scoring.OxygenRecommendations[0])
	assert.Contains(t, text, scoring.LowPHRecommendation)
	assert.Less(t, strings.Index(text, scoring.OxygenRecommendations[0]), strings.Index(text, scoring.LowPHRecommendation))

	bot.handleMessage(context.Background(), commandMessage(7, "/history"))
	assert.Contains(t, lastText(t, sender), "Medium risk, 37.5%")
}

func TestPredictCommandBadInput(t *testing.T) {
	bot, sender, _ := newTestBot(t, nil)

	bot.handleMessage(context.Background(), commandMessage(7, "/predict 7.5 five"))
	assert.Contains(t, lastText(t, sender), "Example: /predict 7.5 5.0 0.02")

	bot.handleMessage(context.Background(), commandMessage(7, "/predict 20 5 0"))
	assert.Contains(t, lastText(t, sender), "don't look right")

	bot.handleMessage(context.Background(), commandMessage(7, "/predict 7,5 5,0 0,02"))
	assert.Contains(t, lastText(t, sender), "Low Risk")
}

func TestSubscribeCommands(t *testing.T) {
	bot, sender, repo := newTestBot(t, nil)

	bot.handleMessage(context.Background(), commandMessage(99, "/subscribe"))
	assert.Contains(t, lastText(t, sender), "Subscribed")

	bot.handleMessage(context.Background(), commandMessage(99, "/subscribe"))
	assert.Contains(t, lastText(t, sender), "already subscribed")

	subs, err := repo.ListSubscribers(entities.ChannelTelegram)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "99", subs[0].Address)

	bot.handleMessage(context.Background(), commandMessage(99, "/unsubscribe"))
	assert.Contains(t, lastText(t, sender), "Unsubscribed")
}

func TestUnknownCommandAndFallback(t *testing.T) {
	bot, sender, repo := newTestBot(t, nil)

	bot.handleMessage(context.Background(), commandMessage(1, "/fish"))
	assert.Contains(t, lastText(t, sender), "Unknown command")

	require.NoError(t, repo.SaveAssessments([]entities.AssessmentRecord{{
		ID:         "p1",
		Source:     entities.SourceFeed,
		Pond:       "POND-1",
		Assessment: scoring.Score(7.5, 5, 0.02),
		Timestamp:  time.Date(2025, 4, 18, 8, 0, 0, 0, time.UTC),
	}}))

	bot.handleMessage(context.Background(), textMessage(1, "hello there"))
	text := lastText(t, sender)
	assert.Contains(t, text, "I don't understand")
	assert.Contains(t, text, "POND-1")
}

func TestFreeTextUsesInterpreter(t *testing.T) {
	bot, sender, _ := newTestBot(t, &stubInterpreter{resp: &openai.AgentResponse{
		CommandName:      openai.CommandAssessWaterQuality,
		PH:               9.0,
		DissolvedOxygen:  4.0,
		Ammonia:          0.20,
		ReadingsComplete: true,
		UserMessage:      "Here is your pond.",
	}})

	bot.handleMessage(context.Background(), textMessage(3, "ph 9, DO 4, ammonia 0.2"))
	text := lastText(t, sender)
	assert.True(t, strings.HasPrefix(text, "Here is your pond."))
	assert.Contains(t, text, "High Risk")
	assert.Contains(t, text, "13.5%")
}

func TestSendDigest(t *testing.T) {
	bot, sender, repo := newTestBot(t, nil)

	_, err := bot.useCase.Subscribe(entities.ChannelTelegram, "11")
	require.NoError(t, err)
	_, err = bot.useCase.Subscribe(entities.ChannelTelegram, "22")
	require.NoError(t, err)

	require.NoError(t, repo.SaveAssessments([]entities.AssessmentRecord{{
		ID:         "d1",
		Source:     entities.SourceFeed,
		Pond:       "POND-9",
		Assessment: scoring.Score(7.5, 5, 0.3),
		Timestamp:  time.Now().UTC().Add(-time.Hour),
	}}))

	require.NoError(t, bot.SendDigest(24*time.Hour))
	require.Len(t, sender.sent, 2)
	assert.ElementsMatch(t, []int64{11, 22}, []int64{sender.sent[0].ChatID, sender.sent[1].ChatID})
	assert.Contains(t, sender.sent[0].Text, "POND-9")
	assert.Contains(t, sender.sent[0].Text, "worst High")
}

func TestParseReadingArgs(t *testing.T) {
	r, err := parseReadingArgs(" 7.5  5 0,02 ")
	require.NoError(t, err)
	assert.Equal(t, entities.SensorReading{PH: 7.5, DissolvedOxygen: 5, Ammonia: 0.02}, r)

	_, err = parseReadingArgs("7.5 5")
	assert.Error(t, err)
}

// brokenClockRepo fails only the last-update lookup
type brokenClockRepo struct {
	*repository.SQLiteAssessmentRepository
}

func (r brokenClockRepo) GetLastUpdateTime() (time.Time, error) {
	return time.Time{}, errors.New("database is locked")
}

func TestPondsCommandWithoutLastUpdate(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveAssessments([]entities.AssessmentRecord{{
		ID:         "p1",
		Source:     entities.SourceFeed,
		Pond:       "POND-1",
		Assessment: scoring.Score(7.5, 5, 0.02),
		Timestamp:  time.Date(2025, 4, 18, 8, 0, 0, 0, time.UTC),
	}}))

	sender := &recordingSender{}
	bot := &TelegramBot{
		sender:  sender,
		useCase: usecases.NewAssessmentUseCase(brokenClockRepo{repo}, nil, nil, nil, nil),
	}

	bot.handleMessage(context.Background(), commandMessage(5, "/ponds"))
	text := lastText(t, sender)
	assert.Contains(t, text, "POND-1")
	assert.NotContains(t, text, "Last update")
}

func TestPredictTextWithoutCommandEntity(t *testing.T) {
	bot, sender, _ := newTestBot(t, nil)

	bot.handleMessage(context.Background(), textMessage(7, "/predict 6.0 2.0 0.02"))
	assert.Contains(t, lastText(t, sender), "I don't understand")
}
