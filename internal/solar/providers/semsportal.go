package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/solar-data-aggregation/internal/common"
	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

const (
	semsLoginURL = "https://www.semsportal.com/api/v2/Common/CrossLogin"
	semsPlantURL = "https://au.semsportal.com/api/v3/PowerStation/GetPlantDetailByPowerstationId"

	// base64 of {"uid":"","timestamp":0,"token":"","client":"web","version":"","language":"en"}
	semsAnonymousToken = "eyJ1aWQiOiIiLCJ0aW1lc3RhbXAiOjAsInRva2VuIjoiIiwiY2xpZW50Ijoid2ViIiwidmVyc2lvbiI6IiIsImxhbmd1YWdlIjoiZW4ifQ=="
)

// SEMSPortalProvider talks to the GoodWe SEMS portal. It is both the login
// authenticator for the session cache and the solar source. Its calls are not
// circuit-broken, so every poll cycle reaches the portal.
type SEMSPortalProvider struct {
	name           string
	loginURL       string
	plantURL       string
	username       string
	password       string
	powerStationID string
	client         *http.Client
	now            func() time.Time
}

func NewSEMSPortalProvider(client *http.Client, username, password, powerStationID string) *SEMSPortalProvider {
	return &SEMSPortalProvider{
		name:           "semsportal",
		loginURL:       semsLoginURL,
		plantURL:       semsPlantURL,
		username:       username,
		password:       password,
		powerStationID: powerStationID,
		client:         client,
		now:            time.Now,
	}
}

func (p *SEMSPortalProvider) Name() string {
	return p.name
}

type semsLoginResponse struct {
	HasError bool            `json:"hasError"`
	Msg      string          `json:"msg"`
	Data     json.RawMessage `json:"data"`
}

// Login exchanges the account password for a session blob. The credential
// token is the login response's data object, kept as raw JSON.
func (p *SEMSPortalProvider) Login(ctx context.Context) (solar.Credential, error) {
	buildRequest := func() (*http.Request, error) {
		body, err := json.Marshal(map[string]string{
			"account": p.username,
			"pwd":     p.password,
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost, p.loginURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("token", semsAnonymousToken)
		return req, nil
	}

	body, err := doRequest(ctx, p.name, p.client, nil, buildRequest)
	if err != nil {
		return solar.Credential{}, &solar.AuthError{Err: err}
	}

	var payload semsLoginResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return solar.Credential{}, &solar.AuthError{Err: malformed(p.name, err)}
	}
	if payload.HasError {
		return solar.Credential{}, &solar.AuthError{Err: fmt.Errorf("portal rejected login: %s", payload.Msg)}
	}

	data := bytes.TrimSpace(payload.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return solar.Credential{}, &solar.AuthError{Err: malformed(p.name, fmt.Errorf("login response has no data"))}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return solar.Credential{}, &solar.AuthError{Err: malformed(p.name, err)}
	}

	return solar.Credential{
		Token:    compact.Bytes(),
		IssuedAt: p.now().UTC(),
	}, nil
}

type semsPlantResponse struct {
	HasError bool   `json:"hasError"`
	Msg      string `json:"msg"`
}

// FetchSolar fetches the plant details for the configured power station.
func (p *SEMSPortalProvider) FetchSolar(ctx context.Context, cred solar.Credential) (solar.SolarPartial, error) {
	buildRequest := func() (*http.Request, error) {
		form := url.Values{}
		form.Set("powerStationId", p.powerStationID)

		req, err := http.NewRequest(http.MethodPost, p.plantURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("token", base64.StdEncoding.EncodeToString(cred.Token))
		return req, nil
	}

	body, err := doRequest(ctx, p.name, p.client, nil, buildRequest)
	if err != nil {
		return solar.SolarPartial{}, err
	}

	var envelope semsPlantResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return solar.SolarPartial{}, malformed(p.name, err)
	}
	if envelope.HasError {
		return solar.SolarPartial{}, &solar.UpstreamError{
			Source:       p.name,
			StatusCode:   http.StatusOK,
			Unauthorized: common.ContainsAnyFold(envelope.Msg, "authorization", "log in again", "login again"),
			Err:          fmt.Errorf("portal error: %s", envelope.Msg),
		}
	}

	kpi, err := solar.DecodeKPI(body)
	if err != nil {
		return solar.SolarPartial{}, malformed(p.name, err)
	}

	return solar.SolarPartial{
		PowerW:      kpi.PowerW,
		TodayKWh:    kpi.TodayKWh,
		MonthKWh:    kpi.MonthKWh,
		LifetimeKWh: kpi.LifetimeKWh,
		Raw:         json.RawMessage(body),
	}, nil
}
