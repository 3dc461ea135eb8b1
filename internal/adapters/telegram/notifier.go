package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"cryptofolio/internal/adapters/config"
	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// Notifier sends portfolio notifications to a Telegram chat
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	cfg    *config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:    bot,
		chatID: cfg.ChatID,
		cfg:    cfg,
	}, nil
}

// SendPriceAlert notifies that a price alert has triggered
func (n *Notifier) SendPriceAlert(alert *models.PriceAlert, asset models.Asset, price models.Quote) error {
	emoji := "📈"
	direction := "risen above"
	if alert.Direction == models.AlertBelow {
		emoji = "📉"
		direction = "fallen below"
	}

	text := fmt.Sprintf("%s *Price Alert: %s*\n\n%s has %s your target of $%s.\nCurrent price: $%s (%+.1f%% 24h)",
		emoji,
		asset.Symbol,
		asset.Name,
		direction,
		alert.TargetPrice.StringFixed(2),
		price.Price.StringFixed(2),
		price.Change24h,
	)

	return n.sendMessageMarkdown(text)
}

// SendInsightAlert notifies about a newly generated high-severity insight
func (n *Notifier) SendInsightAlert(insight models.Insight) error {
	if !n.cfg.AlertOnInsights {
		return nil
	}

	emoji := "💡"
	switch insight.Kind {
	case models.KindWarning:
		emoji = "⚠️"
	case models.KindOpportunity:
		emoji = "🚀"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, insight.Title, insight.Description)

	if insight.Suggestion != nil {
		text += fmt.Sprintf("\n\nSuggested: %s %s %s",
			insight.Suggestion.Action,
			insight.Suggestion.Quantity.StringFixed(4),
			insight.Suggestion.AssetID,
		)
	}

	return n.sendMessageMarkdown(text)
}

func (n *Notifier) sendMessageMarkdown(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"

	_, err := n.api.Send(msg)
	if err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", n.chatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}
