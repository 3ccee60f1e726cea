package model

// Bot carries the platform binding and the credentials the matching channel
// adapter needs. Exactly one credential set is populated per platform.
type Bot struct {
	Id                   string   `json:"id"`
	Name                 string   `json:"name"`
	Platform             Platform `json:"platform"`
	TelegramToken        string   `json:"telegramToken,omitempty"`
	WaPhoneNumberId      string   `json:"waPhoneNumberId,omitempty"`
	WaAccessToken        string   `json:"waAccessToken,omitempty"`
	WaVerifyToken        string   `json:"waVerifyToken,omitempty"`
	DiscordToken         string   `json:"discordToken,omitempty"`
	DiscordApplicationId string   `json:"discordApplicationId,omitempty"`
}
