package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

const whatsappApiBase = "https://graph.facebook.com/v18.0"

// WhatsApp caps interactive reply buttons at three per message.
const whatsappMaxButtons = 3

type whatsappResponse struct {
	Messages []struct {
		Id string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type WhatsAppAdapter struct {
	client        *resty.Client
	phoneNumberId string
}

var _ Adapter = new(WhatsAppAdapter)

func NewWhatsAppAdapter(phoneNumberId string, accessToken string, timeout time.Duration) *WhatsAppAdapter {
	return NewWhatsAppAdapterWithBase(phoneNumberId, accessToken, whatsappApiBase, timeout)
}

func NewWhatsAppAdapterWithBase(phoneNumberId string, accessToken string, baseUrl string, timeout time.Duration) *WhatsAppAdapter {
	client := resty.New().
		SetBaseURL(baseUrl).
		SetAuthToken(accessToken).
		SetTimeout(timeout)
	return &WhatsAppAdapter{
		client:        client,
		phoneNumberId: phoneNumberId,
	}
}

func (w *WhatsAppAdapter) Platform() model.Platform {
	return model.PLATFORM_WHATSAPP
}

func (w *WhatsAppAdapter) Send(ctx context.Context, action model.Action, destination string) (string, error) {
	switch a := action.(type) {
	case model.SendText:
		return w.call(ctx, map[string]any{
			"to":   destination,
			"type": "text",
			"text": map[string]any{"body": a.Text},
		})

	case model.SendButtons:
		buttons := a.Buttons
		if len(buttons) > whatsappMaxButtons {
			logger.Warn("whatsapp button count capped", zap.Int("requested", len(buttons)), zap.Int("max", whatsappMaxButtons))
			buttons = buttons[:whatsappMaxButtons]
		}
		replies := make([]map[string]any, 0, len(buttons))
		for _, btn := range buttons {
			replies = append(replies, map[string]any{
				"type":  "reply",
				"reply": map[string]string{"id": btn.Id, "title": btn.Text},
			})
		}
		return w.call(ctx, map[string]any{
			"to":   destination,
			"type": "interactive",
			"interactive": map[string]any{
				"type":   "button",
				"body":   map[string]any{"text": a.Text},
				"action": map[string]any{"buttons": replies},
			},
		})

	case model.SendMedia:
		return w.sendMedia(ctx, destination, a)

	case model.SendMediaGroup:
		// no album concept on the Cloud API, items go out one by one
		var lastId string
		for _, item := range a.Items {
			kind := model.MediaKind(item.Type)
			if item.Type == "photo" {
				kind = model.MEDIA_IMAGE
			}
			id, err := w.sendMedia(ctx, destination, model.SendMedia{Kind: kind, Url: item.Url})
			if err != nil {
				return lastId, err
			}
			lastId = id
		}
		return lastId, nil

	case model.SendLocation:
		return w.call(ctx, map[string]any{
			"to":   destination,
			"type": "location",
			"location": map[string]any{
				"latitude":  a.Latitude,
				"longitude": a.Longitude,
				"name":      a.Title,
			},
		})

	case model.SendVenue:
		return w.call(ctx, map[string]any{
			"to":   destination,
			"type": "location",
			"location": map[string]any{
				"latitude":  a.Latitude,
				"longitude": a.Longitude,
				"name":      a.Title,
				"address":   a.Address,
			},
		})

	case model.SendContact:
		return w.call(ctx, map[string]any{
			"to":   destination,
			"type": "contacts",
			"contacts": []map[string]any{{
				"name":   map[string]string{"first_name": a.FirstName, "formatted_name": a.FirstName},
				"phones": []map[string]string{{"phone": a.Phone}},
			}},
		})

	case model.SendPoll, model.SendDice, model.SendInvoice, model.EditMessage, model.DeleteMessage:
		logUnsupported(w.Platform(), action)
		return "", nil

	case model.Noop:
		return "", nil
	}
	logUnsupported(w.Platform(), action)
	return "", nil
}

func (w *WhatsAppAdapter) sendMedia(ctx context.Context, destination string, a model.SendMedia) (string, error) {
	kind := a.Kind
	if kind == model.MEDIA_ANIMATION {
		// closest the Cloud API offers
		kind = model.MEDIA_VIDEO
	}
	media := map[string]any{"link": a.Url}
	switch kind {
	case model.MEDIA_IMAGE, model.MEDIA_VIDEO:
		if a.Caption != "" {
			media["caption"] = a.Caption
		}
	case model.MEDIA_DOCUMENT:
		if a.Filename != "" {
			media["filename"] = a.Filename
		}
	}
	return w.call(ctx, map[string]any{
		"to":        destination,
		"type":      string(kind),
		string(kind): media,
	})
}

func (w *WhatsAppAdapter) call(ctx context.Context, body map[string]any) (string, error) {
	body["messaging_product"] = "whatsapp"
	var result whatsappResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/%s/messages", w.phoneNumberId))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		message := ""
		if result.Error != nil {
			message = result.Error.Message
		}
		logger.Error("whatsapp api rejected message", zap.Int("status", resp.StatusCode()), zap.String("error", message))
		return "", fmt.Errorf("whatsapp send failed: %s", message)
	}
	if len(result.Messages) > 0 {
		return result.Messages[0].Id, nil
	}
	return "", nil
}
