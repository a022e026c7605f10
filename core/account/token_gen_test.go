package account

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := tokenGenerator{secret: []byte("secret"), timeout: 3 * 24 * time.Hour}

	now := time.Now()
	acc := Account{
		ID:        1,
		Name:      "T",
		Email:     "t@test.test",
		Role:      RoleTeacher,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: null.TimeFrom(now),
	}
	_ = acc.SetPassword("pwd")

	validToken := tg.makeToken(acc)

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := tg.makeToken(acc)
	nowFunc = time.Now // reset

	// a token is spent once the password changes or the account logs in
	rehashed := acc
	_ = rehashed.SetPassword("pwd2")
	loggedIn := acc
	loggedIn.LastLogin = null.TimeFrom(now.Add(time.Minute))

	tests := []struct {
		name    string
		acc     Account
		token   string
		wantErr error
	}{
		{name: "no token", acc: acc, wantErr: errInvalidToken},
		{name: "invalid parts len", acc: acc, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", acc: acc, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", acc: acc, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", acc: acc, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", acc: acc, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", acc: rehashed, token: validToken, wantErr: errInvalidToken},
		{name: "logged in since", acc: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", acc: acc, token: tokenGenerator{secret: []byte("other"), timeout: tg.timeout}.makeToken(acc), wantErr: errInvalidToken},
		{name: "valid token", acc: acc, token: validToken},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if err := tg.verifyToken(tt.acc, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	uid := EncodeUID(Account{ID: 4207})
	id, err := decodeUID(uid)
	if err != nil || id != 4207 {
		t.Errorf("decodeUID(%q) = %d, %v; want 4207", uid, id, err)
	}
	if _, err = decodeUID("%%%"); err == nil {
		t.Error("decodeUID(%%%) should fail")
	}
}
