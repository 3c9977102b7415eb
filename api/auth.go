package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtverifier "github.com/okta/okta-jwt-verifier-golang"
)

// verify checks the bearer token in the Authorization header, writing the
// appropriate failure response and returning false if it is not valid. Env
// "DEV" bypasses verification entirely; "QA" additionally accepts a static
// QAToken without involving Okta.
func (s *Server) verify(c *gin.Context) bool {
	if s.auth.Env == "DEV" {
		return true
	}

	token := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(token, "Bearer ") {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return false
	}
	token = strings.TrimPrefix(token, "Bearer ")

	if s.auth.Env == "QA" && s.auth.QAToken != "" && token == s.auth.QAToken {
		return true
	}

	verifierSetup := jwtverifier.JwtVerifier{
		Issuer: "https://" + s.auth.OktaDomain + "/oauth2/default",
		ClaimsToValidate: map[string]string{
			"aud": "api://default",
			"cid": s.auth.OktaClientID,
		},
	}
	verifier := verifierSetup.New()
	if _, err := verifier.VerifyAccessToken(token); err != nil {
		c.String(http.StatusForbidden, err.Error())
		return false
	}
	return true
}
