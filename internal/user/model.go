package user

import "github.com/golang-jwt/jwt/v5"

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}
