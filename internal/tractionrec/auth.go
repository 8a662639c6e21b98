// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/tractionsync/internal/logging"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL   = 60 * time.Second
)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	InstanceURL      string `json:"instance_url"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken returns the cached bearer token or exchanges a freshly signed
// assertion for one. When the token endpoint answers with an error field the
// result is an empty token and a nil error; the failure is logged. Callers
// must treat an empty token as ErrInvalidToken.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	assertion, err := c.assertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	target := strings.TrimRight(c.cfg.LoginURL, "/") + "/services/oauth2/token"

	data, err := c.roundTrip(ctx, "token", http.MethodPost, target, []byte(form.Encode()), "application/x-www-form-urlencoded", "")
	if err != nil {
		var respErr *InvalidResponseError
		if !errors.As(err, &respErr) {
			logging.Error().Err(err).Msg("TractionRec token exchange failed")
			return "", err
		}
		data = respErr.body
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		logging.Error().Err(err).Msg("TractionRec token response is not JSON")
		return "", nil
	}
	if tr.Error != "" || tr.AccessToken == "" {
		logging.Error().Str("error", tr.Error).Str("description", tr.ErrorDescription).Msg("TractionRec token exchange rejected")
		return "", nil
	}

	c.token = tr.AccessToken
	return c.token, nil
}

// ResetToken drops the cached token.
func (c *Client) ResetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// assertion builds the RS256 signed JWT used for the jwt-bearer grant.
func (c *Client) assertion() (string, error) {
	claims := jwt.MapClaims{
		"iss": c.cfg.ConsumerKey,
		"sub": c.cfg.LoginUser,
		"aud": c.cfg.LoginURL,
		"exp": c.now().Add(assertionTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}
