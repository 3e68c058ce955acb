package utils

import (
	"os"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// AccessToken is the claims payload minted by the account subsystem. This
// server only verifies it; issuance lives elsewhere.
type AccessToken struct {
	ID   uint   `json:"ID"`
	Role string `json:"Role"`
}

// AccessTokenVerifier builds the verifier middleware for REST routes.
func AccessTokenVerifier() iris.Handler {
	verifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	verifier.WithDefaultBlocklist()
	return verifier.Verify(func() interface{} {
		return new(AccessToken)
	})
}

// WSTokenVerifier is the same verifier with a query-param extractor added,
// since browser WebSocket clients cannot set an Authorization header.
func WSTokenVerifier() iris.Handler {
	verifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	verifier.WithDefaultBlocklist()
	verifier.Extractors = append(verifier.Extractors, func(ctx iris.Context) string {
		return ctx.URLParam("token")
	})
	return verifier.Verify(func() interface{} {
		return new(AccessToken)
	})
}

// GetClaims returns the verified access token for the current request, or
// nil when the route was not guarded.
func GetClaims(ctx iris.Context) *AccessToken {
	if tok := jwt.Get(ctx); tok != nil {
		if at, ok := tok.(*AccessToken); ok {
			return at
		}
	}
	return nil
}
