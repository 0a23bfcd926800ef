package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintSessionToken issues a signed session JWT for a resolved membership.
func MintSessionToken(cfg config.JWTConfig, now time.Time, payload SessionPayload) (string, time.Time, error) {
	if cfg.Issuer == "" {
		return "", time.Time{}, fmt.Errorf("jwt issuer is required")
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("session ttl must be positive")
	}
	if strings.TrimSpace(payload.ExternalID) == "" {
		return "", time.Time{}, fmt.Errorf("external id is required")
	}
	if !payload.Role.IsValid() {
		return "", time.Time{}, fmt.Errorf("invalid member role %q", payload.Role)
	}
	key, err := signingKey(cfg.Secret, purposeSession)
	if err != nil {
		return "", time.Time{}, err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		Email:          payload.Email,
		Role:           payload.Role,
		OrganizationID: payload.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.ExternalID,
			Audience:  jwt.ClaimStrings{audienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing jwt: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSessionToken validates signature, issuer, audience and expiry and
// returns the typed claims.
func ParseSessionToken(cfg config.JWTConfig, tokenString string) (*SessionClaims, error) {
	key, err := signingKey(cfg.Secret, purposeSession)
	if err != nil {
		return nil, err
	}
	claims := &SessionClaims{}
	if err := parse(cfg, tokenString, claims, key, audienceSession); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("session token missing subject")
	}
	return claims, nil
}

// MintInvitationToken issues the signed, time-boxed token mailed to an invitee.
func MintInvitationToken(cfg config.JWTConfig, now time.Time, payload InvitationPayload) (string, time.Time, error) {
	if cfg.Issuer == "" {
		return "", time.Time{}, fmt.Errorf("jwt issuer is required")
	}
	ttl := cfg.InvitationTTL()
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("invitation ttl must be positive")
	}
	if payload.MembershipID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("membership id is required")
	}
	if payload.Email == "" || payload.OrganizationID == "" {
		return "", time.Time{}, fmt.Errorf("invitation email and organization are required")
	}
	key, err := signingKey(cfg.Secret, purposeInvitation)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := now.Add(ttl)
	claims := InvitationClaims{
		MembershipID:   payload.MembershipID,
		Email:          payload.Email,
		OrganizationID: payload.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.MembershipID.String(),
			Audience:  jwt.ClaimStrings{audienceInvitation},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing jwt: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseInvitationToken validates an invitation token and returns its claims.
func ParseInvitationToken(cfg config.JWTConfig, tokenString string) (*InvitationClaims, error) {
	key, err := signingKey(cfg.Secret, purposeInvitation)
	if err != nil {
		return nil, err
	}
	claims := &InvitationClaims{}
	if err := parse(cfg, tokenString, claims, key, audienceInvitation); err != nil {
		return nil, err
	}
	if claims.MembershipID == uuid.Nil {
		return nil, fmt.Errorf("invitation token missing membership id")
	}
	return claims, nil
}

func parse(cfg config.JWTConfig, tokenString string, claims jwt.Claims, key []byte, audience string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if skew := cfg.ClockSkew(); skew > 0 {
		opts = append(opts, jwt.WithLeeway(skew))
	}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return key, nil
		},
		opts...,
	)
	return err
}
