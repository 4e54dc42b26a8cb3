package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-city-tracker/internal/weather"
)

// DefaultOpenWeatherBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// OpenWeatherOptions configures an OpenWeatherProvider.
type OpenWeatherOptions struct {
	BaseURL string
	Backoff BackoffConfig
	// RatePerSecond limits outbound requests; zero or less disables limiting.
	RatePerSecond float64
	Burst         int
}

// OpenWeatherProvider implements weather.ForecastClient for the OpenWeatherMap /forecast endpoint.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

var _ weather.ForecastClient = (*OpenWeatherProvider)(nil)

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts OpenWeatherOptions) *OpenWeatherProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenWeatherBaseURL
	}

	backoff := opts.Backoff
	if backoff.InitialInterval <= 0 {
		backoff.InitialInterval = 500 * time.Millisecond
	}
	if backoff.MaxInterval <= 0 {
		backoff.MaxInterval = 5 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newCircuitBreaker("openweather"),
		limiter: limiter,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type forecastPayload struct {
	List *[]struct {
		Main struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
		DtTxt string `json:"dt_txt"`
	} `json:"list"`
}

// FetchForecast issues GET <base>/forecast?q=&appid=&units= and decodes the sample list.
// An empty list is not an error.
func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, cityName string, units weather.UnitMode) ([]weather.ForecastSample, error) {
	if p.apiKey == "" {
		return nil, weather.ErrMissingAPIKey
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait canceled: %v", weather.ErrNetwork, err)
		}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", cityName)
		values.Set("appid", p.apiKey)
		values.Set("units", units.APIUnits())

		u := fmt.Sprintf("%s/forecast?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload forecastPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrDecode, err)
	}
	if payload.List == nil {
		return nil, fmt.Errorf("%w: response has no list", weather.ErrDecode)
	}

	samples := make([]weather.ForecastSample, 0, len(*payload.List))
	for i, item := range *payload.List {
		if item.Main.Temp == nil {
			return nil, fmt.Errorf("%w: list[%d] has no main.temp", weather.ErrDecode, i)
		}
		s := weather.ForecastSample{
			Timestamp:   item.DtTxt,
			Temperature: *item.Main.Temp,
		}
		if len(item.Weather) > 0 {
			s.Condition = item.Weather[0].Description
			s.Icon = item.Weather[0].Icon
		}
		samples = append(samples, s)
	}

	return samples, nil
}
