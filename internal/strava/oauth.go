package strava

import (
	"net/url"

	"trainlog/internal/oauth"
)

var Endpoint = oauth.Endpoint{
	AuthURL:  "https://www.strava.com/oauth/authorize",
	TokenURL: "https://www.strava.com/oauth/token",
}

const Scope = "read,activity:read_all"

// EndpointFor derives the OAuth endpoints from a non-default site URL, such
// as a test server.
func EndpointFor(site string) oauth.Endpoint {
	if site == "" {
		return Endpoint
	}
	auth, err := url.JoinPath(site, "/oauth/authorize")
	if err != nil {
		return Endpoint
	}
	token, err := url.JoinPath(site, "/oauth/token")
	if err != nil {
		return Endpoint
	}
	return oauth.Endpoint{AuthURL: auth, TokenURL: token}
}

// AuthorizeParams are the extra consent parameters Strava expects.
func AuthorizeParams() url.Values {
	params := url.Values{}
	params.Set("scope", Scope)
	params.Set("approval_prompt", "auto")
	return params
}
