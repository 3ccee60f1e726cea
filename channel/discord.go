package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

const discordApiBase = "https://discord.com/api/v10"

// Discord component rows hold at most five buttons.
const discordMaxButtonsPerRow = 5

type discordMessage struct {
	Id string `json:"id"`
}

type DiscordAdapter struct {
	client *resty.Client
	last   *lastMessageIds
}

var _ Adapter = new(DiscordAdapter)

func NewDiscordAdapter(botToken string, timeout time.Duration) *DiscordAdapter {
	return NewDiscordAdapterWithBase(botToken, discordApiBase, timeout)
}

func NewDiscordAdapterWithBase(botToken string, baseUrl string, timeout time.Duration) *DiscordAdapter {
	client := resty.New().
		SetBaseURL(baseUrl).
		SetHeader("Authorization", "Bot "+botToken).
		SetTimeout(timeout)
	return &DiscordAdapter{
		client: client,
		last:   newLastMessageIds(),
	}
}

func (d *DiscordAdapter) Platform() model.Platform {
	return model.PLATFORM_DISCORD
}

func (d *DiscordAdapter) Send(ctx context.Context, action model.Action, destination string) (string, error) {
	switch a := action.(type) {
	case model.SendText:
		return d.post(ctx, destination, map[string]any{"content": a.Text})

	case model.SendButtons:
		var rows []map[string]any
		for start := 0; start < len(a.Buttons); start += discordMaxButtonsPerRow {
			end := start + discordMaxButtonsPerRow
			if end > len(a.Buttons) {
				end = len(a.Buttons)
			}
			components := make([]map[string]any, 0, end-start)
			for _, btn := range a.Buttons[start:end] {
				components = append(components, map[string]any{
					"type":      2,
					"style":     1,
					"label":     btn.Text,
					"custom_id": btn.Id,
				})
			}
			rows = append(rows, map[string]any{"type": 1, "components": components})
		}
		return d.post(ctx, destination, map[string]any{
			"content":    a.Text,
			"components": rows,
		})

	case model.SendMedia:
		switch a.Kind {
		case model.MEDIA_IMAGE, model.MEDIA_ANIMATION:
			embed := map[string]any{"image": map[string]string{"url": a.Url}}
			if a.Caption != "" {
				embed["description"] = a.Caption
			}
			return d.post(ctx, destination, map[string]any{"embeds": []map[string]any{embed}})
		default:
			// videos, audio and documents go out as plain links
			content := a.Url
			if a.Caption != "" {
				content = a.Caption + "\n" + a.Url
			}
			return d.post(ctx, destination, map[string]any{"content": content})
		}

	case model.SendMediaGroup:
		var embeds []map[string]any
		for _, item := range a.Items {
			embeds = append(embeds, map[string]any{"image": map[string]string{"url": item.Url}})
		}
		return d.post(ctx, destination, map[string]any{"embeds": embeds})

	case model.SendPoll:
		// approximated as an embed; Discord has no free-form poll endpoint
		var b strings.Builder
		for i, opt := range a.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		}
		return d.post(ctx, destination, map[string]any{
			"embeds": []map[string]any{{
				"title":       a.Question,
				"description": b.String(),
			}},
		})

	case model.SendLocation:
		return d.post(ctx, destination, map[string]any{
			"embeds": []map[string]any{{
				"title": a.Title,
				"url":   mapsLink(a.Latitude, a.Longitude),
			}},
		})

	case model.SendVenue:
		return d.post(ctx, destination, map[string]any{
			"embeds": []map[string]any{{
				"title":       a.Title,
				"description": a.Address,
				"url":         mapsLink(a.Latitude, a.Longitude),
			}},
		})

	case model.SendContact:
		return d.post(ctx, destination, map[string]any{
			"content": fmt.Sprintf("%s: %s", a.FirstName, a.Phone),
		})

	case model.EditMessage:
		messageId := d.last.get(destination)
		if messageId == "" {
			logUnsupported(d.Platform(), action)
			return "", nil
		}
		var result discordMessage
		resp, err := d.client.R().
			SetContext(ctx).
			SetBody(map[string]any{"content": a.Text}).
			SetResult(&result).
			Patch(fmt.Sprintf("/channels/%s/messages/%s", destination, messageId))
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", fmt.Errorf("discord edit failed with status %d", resp.StatusCode())
		}
		return result.Id, nil

	case model.DeleteMessage:
		messageId := d.last.get(destination)
		if messageId == "" {
			logUnsupported(d.Platform(), action)
			return "", nil
		}
		resp, err := d.client.R().
			SetContext(ctx).
			Delete(fmt.Sprintf("/channels/%s/messages/%s", destination, messageId))
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", fmt.Errorf("discord delete failed with status %d", resp.StatusCode())
		}
		return "", nil

	case model.SendDice, model.SendInvoice:
		logUnsupported(d.Platform(), action)
		return "", nil

	case model.Noop:
		return "", nil
	}
	logUnsupported(d.Platform(), action)
	return "", nil
}

func (d *DiscordAdapter) post(ctx context.Context, channelId string, body map[string]any) (string, error) {
	var result discordMessage
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/channels/%s/messages", channelId))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		logger.Error("discord api rejected message", zap.Int("status", resp.StatusCode()), zap.String("channel", channelId))
		return "", fmt.Errorf("discord send failed with status %d", resp.StatusCode())
	}
	d.last.set(channelId, result.Id)
	return result.Id, nil
}

func mapsLink(latitude float64, longitude float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", latitude, longitude)
}
