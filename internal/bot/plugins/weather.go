package plugins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
	"github.com/striezel/botvinnik-sub001/pkg/log"
)

const defaultWeatherBaseURL = "https://wttr.in"

// Weather answers with a one-line forecast from wttr.in.
type Weather struct {
	baseURL    string
	httpClient *http.Client
}

func NewWeather() *Weather {
	return &Weather{
		baseURL:    defaultWeatherBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *Weather) Commands() []string {
	return []string{"weather"}
}

func (w *Weather) Handle(ctx context.Context, _, message, _, _ string, _ time.Time) matrix.Message {
	location := args(message)
	if location == "" {
		return matrix.Message{Body: "Usage: weather <location>"}
	}

	endpoint := w.baseURL + "/" + url.PathEscape(location) + "?format=3"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return matrix.Message{Body: fmt.Sprintf("Could not fetch the weather: %v", err)}
	}
	req.Header.Set("User-Agent", "curl/8.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.WithError(err).WithField("location", location).Warn("weather request failed")
		return matrix.Message{Body: fmt.Sprintf("Could not fetch the weather: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return matrix.Message{Body: fmt.Sprintf("Could not fetch the weather: HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return matrix.Message{Body: fmt.Sprintf("Could not fetch the weather: %v", err)}
	}

	forecast := strings.TrimSpace(string(data))
	if forecast == "" {
		return matrix.Message{Body: "The weather service returned an empty forecast."}
	}
	return matrix.Message{Body: forecast}
}

func (w *Weather) HelpText(string) string {
	return "shows the current weather for a location"
}

func (w *Weather) AllowDeactivation(string) bool {
	return true
}
