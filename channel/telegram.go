package channel

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

const telegramApiBase = "https://api.telegram.org"

type telegramResponse struct {
	Ok     bool `json:"ok"`
	Result struct {
		MessageId int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

type TelegramAdapter struct {
	client *resty.Client
	token  string
	last   *lastMessageIds
}

var _ Adapter = new(TelegramAdapter)

func NewTelegramAdapter(token string, timeout time.Duration) *TelegramAdapter {
	return NewTelegramAdapterWithBase(token, telegramApiBase, timeout)
}

// NewTelegramAdapterWithBase exists for tests pointing at a local server.
func NewTelegramAdapterWithBase(token string, baseUrl string, timeout time.Duration) *TelegramAdapter {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", baseUrl, token)).
		SetTimeout(timeout)
	return &TelegramAdapter{
		client: client,
		token:  token,
		last:   newLastMessageIds(),
	}
}

func (t *TelegramAdapter) Platform() model.Platform {
	return model.PLATFORM_TELEGRAM
}

func (t *TelegramAdapter) Send(ctx context.Context, action model.Action, destination string) (string, error) {
	chatId := destination
	switch a := action.(type) {
	case model.SendText:
		return t.call(ctx, destination, "sendMessage", map[string]any{
			"chat_id":    chatId,
			"text":       a.Text,
			"parse_mode": "HTML",
		})

	case model.SendButtons:
		keyboard := make([][]map[string]string, 0, len(a.Buttons))
		for _, btn := range a.Buttons {
			keyboard = append(keyboard, []map[string]string{{"text": btn.Text, "callback_data": btn.Id}})
		}
		return t.call(ctx, destination, "sendMessage", map[string]any{
			"chat_id":      chatId,
			"text":         a.Text,
			"parse_mode":   "HTML",
			"reply_markup": map[string]any{"inline_keyboard": keyboard},
		})

	case model.SendMedia:
		method, field := telegramMediaMethod(a.Kind)
		body := map[string]any{
			"chat_id": chatId,
			field:     a.Url,
		}
		if a.Caption != "" && a.Kind != model.MEDIA_STICKER {
			body["caption"] = a.Caption
		}
		return t.call(ctx, destination, method, body)

	case model.SendMediaGroup:
		media := make([]map[string]string, 0, len(a.Items))
		for _, item := range a.Items {
			media = append(media, map[string]string{"type": item.Type, "media": item.Url})
		}
		return t.call(ctx, destination, "sendMediaGroup", map[string]any{
			"chat_id": chatId,
			"media":   media,
		})

	case model.SendPoll:
		body := map[string]any{
			"chat_id":  chatId,
			"question": a.Question,
			"options":  a.Options,
		}
		if a.PollType == "quiz" {
			body["type"] = "quiz"
			body["correct_option_id"] = 0
		}
		return t.call(ctx, destination, "sendPoll", body)

	case model.SendContact:
		return t.call(ctx, destination, "sendContact", map[string]any{
			"chat_id":      chatId,
			"phone_number": a.Phone,
			"first_name":   a.FirstName,
		})

	case model.SendVenue:
		return t.call(ctx, destination, "sendVenue", map[string]any{
			"chat_id":   chatId,
			"latitude":  a.Latitude,
			"longitude": a.Longitude,
			"title":     a.Title,
			"address":   a.Address,
		})

	case model.SendLocation:
		return t.call(ctx, destination, "sendLocation", map[string]any{
			"chat_id":   chatId,
			"latitude":  a.Latitude,
			"longitude": a.Longitude,
		})

	case model.SendDice:
		body := map[string]any{"chat_id": chatId}
		if a.Emoji != "" {
			body["emoji"] = a.Emoji
		}
		return t.call(ctx, destination, "sendDice", body)

	case model.SendInvoice:
		return t.call(ctx, destination, "sendInvoice", map[string]any{
			"chat_id":  chatId,
			"title":    a.Title,
			"payload":  "zapflow-invoice",
			"currency": a.Currency,
			"prices":   []map[string]any{{"label": a.Title, "amount": int(math.Round(a.Price * 100))}},
		})

	case model.EditMessage:
		messageId := t.last.get(destination)
		if messageId == "" {
			logUnsupported(t.Platform(), action)
			return "", nil
		}
		return t.call(ctx, destination, "editMessageText", map[string]any{
			"chat_id":    chatId,
			"message_id": messageId,
			"text":       a.Text,
			"parse_mode": "HTML",
		})

	case model.DeleteMessage:
		messageId := t.last.get(destination)
		if messageId == "" {
			logUnsupported(t.Platform(), action)
			return "", nil
		}
		return t.call(ctx, destination, "deleteMessage", map[string]any{
			"chat_id":    chatId,
			"message_id": messageId,
		})

	case model.Noop:
		return "", nil
	}
	logUnsupported(t.Platform(), action)
	return "", nil
}

// AnswerCallbackQuery acknowledges a button click so the client stops
// showing the progress indicator.
func (t *TelegramAdapter) AnswerCallbackQuery(ctx context.Context, callbackQueryId string) error {
	_, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"callback_query_id": callbackQueryId}).
		Post("/answerCallbackQuery")
	return err
}

// RegisterWebhook points the bot's Telegram webhook at the given URL.
func (t *TelegramAdapter) RegisterWebhook(ctx context.Context, webhookUrl string) error {
	var result telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"url": webhookUrl}).
		SetResult(&result).
		Post("/setWebhook")
	if err != nil {
		return err
	}
	if resp.IsError() || !result.Ok {
		return fmt.Errorf("setWebhook rejected: %s", result.Description)
	}
	return nil
}

func (t *TelegramAdapter) call(ctx context.Context, destination string, method string, body map[string]any) (string, error) {
	var result telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/" + method)
	if err != nil {
		return "", err
	}
	if resp.IsError() || !result.Ok {
		logger.Error("telegram api rejected message", zap.String("method", method), zap.String("description", result.Description), zap.Int("status", resp.StatusCode()))
		return "", fmt.Errorf("telegram %s failed: %s", method, result.Description)
	}
	messageId := ""
	if result.Result.MessageId != 0 {
		messageId = strconv.FormatInt(result.Result.MessageId, 10)
		t.last.set(destination, messageId)
	}
	return messageId, nil
}

func telegramMediaMethod(kind model.MediaKind) (string, string) {
	switch kind {
	case model.MEDIA_VIDEO:
		return "sendVideo", "video"
	case model.MEDIA_AUDIO:
		return "sendAudio", "audio"
	case model.MEDIA_ANIMATION:
		return "sendAnimation", "animation"
	case model.MEDIA_DOCUMENT:
		return "sendDocument", "document"
	case model.MEDIA_STICKER:
		return "sendSticker", "sticker"
	default:
		return "sendPhoto", "photo"
	}
}
