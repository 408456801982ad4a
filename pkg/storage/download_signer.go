package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "timetable-export"

// ErrInvalidDownloadToken covers malformed, tampered and expired download tokens.
var ErrInvalidDownloadToken = errors.New("storage: invalid download token")

// DownloadClaims identify one stored export file.
type DownloadClaims struct {
	ExportID  string
	File      string
	ExpiresAt time.Time
}

// DownloadSigner issues short-lived HS256 tokens that grant access to a stored export
// without a session.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner builds a signer. A non-positive ttl means 24 hours.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for file and its expiry.
func (s *DownloadSigner) Sign(exportID, file string) (string, time.Time, error) {
	if exportID == "" || file == "" {
		return "", time.Time{}, errors.New("storage: export id and file are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("storage: download signing secret missing")
	}
	issued := s.now().UTC().Truncate(time.Second)
	expires := issued.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        exportID,
		Subject:   file,
		Audience:  jwt.ClaimStrings{downloadAudience},
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, audience and expiry and returns the embedded claims.
func (s *DownloadSigner) Verify(token string) (*DownloadClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(downloadAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDownloadToken, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidDownloadToken
	}
	return &DownloadClaims{ExportID: claims.ID, File: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
