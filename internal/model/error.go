package model

import "errors"

var ErrorAuthenticationFailed = errors.New("invalid username or password")
var ErrorAccountNotFound = errors.New("account not found")
var ErrorInvalidOrExpiredToken = errors.New("invalid or expired token")
var ErrorWeakPassword = errors.New("password is too weak")
var ErrorEmailAlreadyRegistered = errors.New("email already registered")
var ErrorDisplayNameAlreadyTaken = errors.New("display name already taken")
