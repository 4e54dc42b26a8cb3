package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/weather-city-tracker/internal/config"
	"github.com/i474232898/weather-city-tracker/internal/weather"
)

// ErrEmptyPayload is returned for messages that carry no city name.
var ErrEmptyPayload = errors.New("trigger payload has no city name")

// Searcher runs the manual-search path; weather.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, cityName string) (weather.CitySummary, bool, error)
}

// Subscriber listens on an MQTT topic for "update weather" messages carrying a city name
// and feeds each one into the search path.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	searcher Searcher
	timeout  time.Duration

	connectWait time.Duration
}

// NewSubscriber prepares a subscriber; call Start to connect.
func NewSubscriber(cfg config.MQTTConfig, searcher Searcher) (*Subscriber, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("MQTT topic is required")
	}

	s := &Subscriber{
		topic:       cfg.Topic,
		searcher:    searcher,
		timeout:     30 * time.Second,
		connectWait: 5 * time.Second,
	}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = fmt.Sprintf("tcp://%s", broker)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	// Subscriptions are re-established on every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.topic, 1, s.handle); token.Wait() && token.Error() != nil {
			log.Printf("ERROR: trigger: subscribing to %s: %v", s.topic, token.Error())
			return
		}
		log.Printf("INFO: trigger: subscribed to %s", s.topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("ERROR: trigger: connection lost: %v", err)
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Start connects to the broker. With connect retry enabled the token only completes once
// the broker is reachable, so Start waits at most connectWait and leaves the rest to the
// background retry loop; the on-connect handler subscribes whenever it succeeds.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.connectWait) {
		log.Printf("INFO: trigger: broker not reachable yet; retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	return nil
}

// Close disconnects from the MQTT broker and stops any pending connect retries.
func (s *Subscriber) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	city, err := ParseCityName(msg.Payload())
	if err != nil {
		log.Printf("ERROR: trigger: ignoring message on %s: %v", msg.Topic(), err)
		return
	}
	// The paho router delivers messages sequentially; don't block it on the fetch.
	go s.process(city)
}

func (s *Subscriber) process(city string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, added, err := s.searcher.Search(ctx, city)
	switch {
	case err != nil:
		log.Printf("ERROR: trigger: update for %s failed: %v", city, err)
	case !added:
		log.Printf("INFO: trigger: no forecast data for %s", city)
	default:
		log.Printf("INFO: trigger: added %s", city)
	}
}

// ParseCityName accepts either a bare city name or {"cityName": "..."}.
func ParseCityName(payload []byte) (string, error) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var body struct {
			CityName string `json:"cityName"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", fmt.Errorf("decoding trigger payload: %w", err)
		}
		raw = strings.TrimSpace(body.CityName)
	}
	if raw == "" {
		return "", ErrEmptyPayload
	}
	return raw, nil
}
