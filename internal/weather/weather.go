// Package weather looks up the household forecast. The core only cares
// about the compact model.Weather shape; the provider is OpenWeather's
// One Call endpoint.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"daybrief/internal/model"
)

const defaultBaseURL = "https://api.openweathermap.org/data/3.0/onecall"

type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	units   string
}

// NewClient builds a forecast client. units is "imperial" or "metric".
func NewClient(apiKey, units string) *Client {
	if units != "metric" {
		units = "imperial"
	}
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		units:   units,
	}
}

// NewClientWithBaseURL is for tests against a fake endpoint.
func NewClientWithBaseURL(apiKey, units, baseURL string) *Client {
	c := NewClient(apiKey, units)
	c.baseURL = baseURL
	return c
}

// oneCallResponse mirrors the subset of the One Call payload we read.
type oneCallResponse struct {
	Current struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Weather   []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"current"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Pop float64 `json:"pop"`
	} `json:"daily"`
}

// Forecast fetches the forecast for the given coordinates and reduces it
// to the snapshot's weather shape, with daily entries dated in loc.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, loc *time.Location) (*model.Weather, error) {
	if c.apiKey == "" {
		return nil, errors.New("weather API key not configured")
	}
	if loc == nil {
		loc = time.UTC
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", c.units)
	params.Set("exclude", "minutely,hourly,alerts")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast request: %s", resp.Status)
	}

	var raw oneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}

	w := &model.Weather{
		Temp:      raw.Current.Temp,
		FeelsLike: raw.Current.FeelsLike,
	}
	if len(raw.Current.Weather) > 0 {
		w.Conditions = raw.Current.Weather[0].Description
	}

	for _, d := range raw.Daily {
		day := model.WeatherDay{
			Date:         model.DateOf(time.Unix(d.Dt, 0).In(loc)),
			MinTemp:      d.Temp.Min,
			MaxTemp:      d.Temp.Max,
			PrecipChance: d.Pop,
		}
		if len(d.Weather) > 0 {
			day.Conditions = d.Weather[0].Description
		}
		w.Days = append(w.Days, day)
	}

	return w, nil
}
