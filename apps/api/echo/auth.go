package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
)

const contextTokenKey = "principalToken"

// Claims represents the authorization claims transmitted via a JWT. Accounts
// live in the surrounding platform; the API only ever sees these claims.
type Claims struct {
	jwt.StandardClaims
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	IsStudent bool   `json:"is_student,omitempty"` // -> PLAYER
	IsTeacher bool   `json:"is_teacher,omitempty"` // -> REVIEW & GRADING
}

// Principal returns the acting account carried by the claims.
func (c Claims) Principal() core.Principal {
	return core.Principal{ID: c.Subject, Name: c.Name, Email: c.Email}
}

// newJWTConfig is the JWT auth middleware config.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func newClaims(conf *core.Config, p core.Principal) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.ID,
			Audience:  "Classroom",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  p.Name,
		Email: p.Email,
	}
}

// NewStudentClaims mints claims for a student playing activities.
func NewStudentClaims(conf *core.Config, p core.Principal) *Claims {
	claims := newClaims(conf, p)
	claims.IsStudent = true
	return claims
}

// NewTeacherClaims mints claims for an instructor reviewing and grading attempts.
func NewTeacherClaims(conf *core.Config, p core.Principal) *Claims {
	claims := newClaims(conf, p)
	claims.IsTeacher = true
	return claims
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextPrincipal(ctx echo.Context) (core.Principal, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Principal{}, err
	}
	return claims.Principal(), nil
}
