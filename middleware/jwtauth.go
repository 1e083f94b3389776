package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// claimsKey is the DI-map key BearerAuth stores the parsed token claims
// under, for downstream handlers to read back via ctx.Get.
const claimsKey = "middleware.jwt.claims"

// NewBearerAuth builds a pre-route middleware that recognises the
// Authorization header the wire protocol names (spec.md §6) and validates
// a JWT's signature and expiry only. Per spec.md §1 the registry's
// *policy* - which routes require auth, which claims to check beyond
// signature+expiry - is a host concern; this middleware only demonstrates
// the chain-execution contract with one illustrative check.
func NewBearerAuth(secret []byte, priority int) Middleware {
	return Middleware{
		Name:     "bearer-auth",
		Priority: priority,
		Fn: func(ctx *Context) (Verdict, error) {
			header := ctx.Header("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return stage401(ctx, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil {
				return stage401(ctx, "invalid token: "+err.Error())
			}

			ctx.Set(claimsKey, claims)
			return Continue, nil
		},
	}
}

func stage401(ctx *Context, msg string) (Verdict, error) {
	ctx.Staged.Status = 401
	ctx.Staged.ContentType = "text/plain; charset=utf-8"
	ctx.Staged.Body = []byte(msg)
	ctx.Staged.SetHeader("WWW-Authenticate", `Bearer realm="catzilla"`)
	return Stop, nil
}

// ClaimsFrom retrieves the claims BearerAuth stored on ctx, if present.
func ClaimsFrom(ctx *Context) (jwt.MapClaims, bool) {
	v, ok := ctx.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(jwt.MapClaims)
	return claims, ok
}
