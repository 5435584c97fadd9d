package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"barberbill/backend/internal/domain"
	"barberbill/backend/internal/xid"
)

const accessTokenCookie = "access_token"

// IdentityVerifier turns an access token minted by the account service into
// the calling shop's identity.
type IdentityVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

type shopClaims struct {
	jwtlib.RegisteredClaims
	ShopName string `json:"shop_name"`
}

func NewIdentityVerifier(secret string, issuer string, audience string) *IdentityVerifier {
	if secret == "" {
		secret = "dev-change-me"
	}
	return &IdentityVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

func (v *IdentityVerifier) ParseToken(tokenStr string) (domain.Shop, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.audience))
	}

	claims := &shopClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Shop{}, errors.New("invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || !xid.Valid(sub) {
		return domain.Shop{}, errors.New("invalid token subject")
	}
	return domain.Shop{ID: sub, Name: strings.TrimSpace(claims.ShopName)}, nil
}

// IssueToken mints a token for shop. The server uses it to print a
// development token; production tokens come from the account service.
func (v *IdentityVerifier) IssueToken(shop domain.Shop, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := shopClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   shop.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    v.issuer,
		},
		ShopName: shop.Name,
	}
	if v.audience != "" {
		claims.Audience = jwtlib.ClaimStrings{v.audience}
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// bearerToken reads the Authorization header, falling back to the
// access_token cookie set by the web client.
func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		token := strings.TrimSpace(authorization[len("Bearer "):])
		return token, token != ""
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		token := strings.TrimSpace(cookie.Value)
		return token, token != ""
	}
	return "", false
}
