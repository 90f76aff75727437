// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelzeko/aqua-monitor/internal/entities"
	"github.com/abelzeko/aqua-monitor/internal/scoring"
	"github.com/abelzeko/aqua-monitor/internal/usecases"
)

const historyLimit = 10

// messageSender is the part of tgbotapi.BotAPI used to deliver replies
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot     *tgbotapi.BotAPI
	sender  messageSender
	useCase *usecases.AssessmentUseCase
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, useCase *usecases.AssessmentUseCase) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramBot{
		bot:     bot,
		sender:  bot,
		useCase: useCase,
	}, nil
}

// Start listens for and handles Telegram messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) error {
	log.Printf("Authorized on Telegram account %s", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Println("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping Telegram bot...")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram updates channel closed")
			}
			if update.Message == nil {
				continue
			}

			log.Printf("Received message from %s (ID: %d): %s",
				update.Message.From.UserName,
				update.Message.From.ID,
				update.Message.Text)

			t.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage processes a Telegram message and sends the reply
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID, "")

	if message.IsCommand() {
		t.handleCommand(message, &msg)
	} else {
		t.handleNonCommand(ctx, message, &msg)
	}

	log.Printf("Sending response to chat %d", message.Chat.ID)
	if _, err := t.sender.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// handleCommand processes commands like /start, /predict, etc.
func (t *TelegramBot) handleCommand(message *tgbotapi.Message, msg *tgbotapi.MessageConfig) {
	chatID := strconv.FormatInt(message.Chat.ID, 10)

	switch message.Command() {
	case "start":
		msg.Text = "Welcome to AquaMonitor! Send /predict <pH> <DO> <NH3> to assess your pond water, or /help for more information."

	case "help":
		msg.Text = "Available commands:\n" +
			"/predict <pH> <DO> <NH3> - Assess water quality, e.g. /predict 7.5 5.0 0.02\n" +
			"/ponds - Latest status of monitored ponds\n" +
			"/history - Recent assessments\n" +
			"/subscribe - Receive the daily pond digest\n" +
			"/unsubscribe - Stop the daily digest\n" +
			"/help - Show this help message\n\n" +
			"You can also just describe your readings in plain words."

	case "predict":
		args := message.CommandArguments()
		log.Printf("Handling /predict command with args '%s'", args)
		t.handlePredictCommand(args, msg)

	case "ponds":
		t.handlePondsCommand(msg)

	case "history":
		history, err := t.useCase.GetHistory(entities.SourceTelegram, historyLimit)
		if err != nil {
			msg.Text = "Error fetching assessment history. Please try again later."
			log.Printf("Error fetching history: %v", err)
			return
		}
		msg.Text = FormatHistory(history)

	case "subscribe":
		created, err := t.useCase.Subscribe(entities.ChannelTelegram, chatID)
		switch {
		case err != nil:
			msg.Text = "Could not subscribe right now. Please try again later."
			log.Printf("Error subscribing chat %s: %v", chatID, err)
		case created:
			msg.Text = "✓ Subscribed! You will receive the daily pond digest."
		default:
			msg.Text = "You are already subscribed to the daily pond digest."
		}

	case "unsubscribe":
		removed, err := t.useCase.Unsubscribe(entities.ChannelTelegram, chatID)
		switch {
		case err != nil:
			msg.Text = "Could not unsubscribe right now. Please try again later."
			log.Printf("Error unsubscribing chat %s: %v", chatID, err)
		case removed:
			msg.Text = "Unsubscribed from the daily pond digest."
		default:
			msg.Text = "You were not subscribed."
		}

	default:
		log.Printf("Received unknown command /%s", message.Command())
		msg.Text = "Unknown command. Use /help to see available commands."
	}
}

// handlePredictCommand processes /predict <pH> <DO> <NH3>
func (t *TelegramBot) handlePredictCommand(args string, msg *tgbotapi.MessageConfig) {
	reading, err := parseReadingArgs(args)
	if err != nil {
		msg.Text = "Please give three numbers: pH, dissolved oxygen (mg/L) and ammonia (mg/L).\nExample: /predict 7.5 5.0 0.02"
		return
	}

	rec, err := t.useCase.Assess(entities.SourceTelegram, "", reading)
	if err != nil {
		if errors.Is(err, scoring.ErrInvalidInput) {
			msg.Text = fmt.Sprintf("Those readings don't look right: %v", err)
			return
		}
		msg.Text = "Error saving the assessment. Please try again later."
		log.Printf("Error assessing reading: %v", err)
		return
	}

	msg.Text = FormatAssessment(rec.Assessment)
}

// handlePondsCommand processes the /ponds command
func (t *TelegramBot) handlePondsCommand(msg *tgbotapi.MessageConfig) {
	status, err := t.useCase.GetLatestPondStatus()
	if err != nil {
		msg.Text = "Error fetching pond data. Please try again later."
		log.Printf("Error fetching pond data: %v", err)
		return
	}

	msg.Text = FormatPondStatus(status, t.lastUpdateTime())
}

// lastUpdateTime returns the newest feed timestamp, or zero if it can't be read
func (t *TelegramBot) lastUpdateTime() time.Time {
	lastUpdate, err := t.useCase.GetLastUpdateTime()
	if err != nil {
		log.Printf("Error fetching last update time: %v", err)
		return time.Time{}
	}
	return lastUpdate
}

// handleNonCommand processes regular messages
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message, msg *tgbotapi.MessageConfig) {
	log.Printf("Received non-command message in chat %d: %s", message.Chat.ID, message.Text)

	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := t.useCase.HandleNaturalLanguageQuery(queryCtx, entities.SourceTelegram, message.Text)
	switch {
	case err == nil:
		msg.Text = res.Message
		if res.Record != nil {
			if msg.Text != "" {
				msg.Text += "\n\n"
			}
			msg.Text += FormatAssessment(res.Record.Assessment)
		}
		return
	case errors.Is(err, scoring.ErrInvalidInput):
		msg.Text = fmt.Sprintf("Those readings don't look right: %v", err)
		return
	case !errors.Is(err, usecases.ErrInterpreterUnavailable):
		log.Printf("Error interpreting user query: %v", err)
	}

	// Fallback response with the current pond status as bonus info
	var response strings.Builder
	response.WriteString("I don't understand. Use /help to see available commands.")
	if status, err := t.useCase.GetLatestPondStatus(); err == nil && len(status) > 0 {
		response.WriteString("\n\nFYI:\n")
		response.WriteString(FormatPondStatus(status, t.lastUpdateTime()))
	}
	msg.Text = response.String()
}

// SendDigest builds the digest for window and sends it to every subscribed chat
func (t *TelegramBot) SendDigest(window time.Duration) error {
	digest, err := t.useCase.BuildDigest(window)
	if err != nil {
		return err
	}

	subs, err := t.useCase.ListTelegramSubscribers()
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}

	text := FormatDigest(digest)
	sent := 0
	for _, sub := range subs {
		chatID, err := strconv.ParseInt(sub.Address, 10, 64)
		if err != nil {
			log.Printf("Warning: skipping subscriber with bad chat ID '%s'", sub.Address)
			continue
		}
		if _, err := t.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			log.Printf("Error sending digest to chat %d: %v", chatID, err)
			continue
		}
		sent++
	}

	log.Printf("Sent digest to %d of %d subscribers", sent, len(subs))
	return nil
}

// parseReadingArgs parses "<pH> <DO> <NH3>"; a decimal comma is accepted
func parseReadingArgs(args string) (entities.SensorReading, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return entities.SensorReading{}, fmt.Errorf("expected 3 values, got %d", len(fields))
	}

	var values [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.Replace(f, ",", ".", 1), 64)
		if err != nil {
			return entities.SensorReading{}, fmt.Errorf("value %q is not a number", f)
		}
		values[i] = v
	}

	return entities.SensorReading{PH: values[0], DissolvedOxygen: values[1], Ammonia: values[2]}, nil
}
