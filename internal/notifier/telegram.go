package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/utils"
)

const defaultBaseURL = "https://api.telegram.org"

type TelegramNotifier struct {
	Token   string
	ChatID  string
	BaseURL string
	Retries int
	Delay   time.Duration
	Client  *http.Client
}

func NewTelegramNotifier(token, chatID string, retries int, delay time.Duration) *TelegramNotifier {
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		BaseURL: defaultBaseURL,
		Retries: retries,
		Delay:   delay,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(t.BaseURL, "/"), t.Token)
	resp, err := t.Client.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

// SendWithRetry tries Send up to Retries times, sleeping Delay in between.
func (t *TelegramNotifier) SendWithRetry(message string) error {
	attempts := max(1, t.Retries)
	log := utils.Component("notifier")

	var err error
	for i := 1; i <= attempts; i++ {
		if err = t.Send(message); err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msg("telegram notification failed")
		if i < attempts {
			time.Sleep(t.Delay)
		}
	}
	return fmt.Errorf("telegram notification failed after %d attempts: %w", attempts, err)
}
