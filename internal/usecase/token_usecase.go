package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid transport token")

type TokenUsecase interface {
	// Issue mints a transport token scoped to one room and identity.
	// Tokens are minted fresh per request and never cached.
	Issue(roomID, identity string) (string, error)

	// Verify checks the signature and expiry and returns the room and
	// identity the token was scoped to.
	Verify(token string) (roomID, identity string, err error)
}

type tokenUsecase struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

func NewTokenUsecase(secret []byte, ttl time.Duration) TokenUsecase {
	return &tokenUsecase{
		secret: secret,
		ttl:    ttl,
		clock:  time.Now,
	}
}

func (t *tokenUsecase) Issue(roomID, identity string) (string, error) {
	now := t.clock()

	claims := jwt.MapClaims{
		"sub":  identity,
		"room": roomID,
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(now.Add(t.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign transport token: %w", err)
	}

	return token, nil
}

func (t *tokenUsecase) Verify(token string) (string, string, error) {
	parsed, err := jwt.Parse(
		token,
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
			}

			return t.secret, nil
		},
		jwt.WithTimeFunc(t.clock),
	)
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}

	roomID, _ := claims["room"].(string)
	identity, _ := claims["sub"].(string)

	if roomID == "" || identity == "" {
		return "", "", ErrInvalidToken
	}

	return roomID, identity, nil
}
