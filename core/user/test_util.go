package user

import (
	"context"

	"github.com/pgri-okutimur/anggota/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose mails are sent synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService) Service {
	secretKey = []byte("test-secret")
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.mailSvc.SendMessages(passwordResetMessage(usr))
	return nil
}

// PasswordResetLink exposes the uid/token pair a reset email would carry.
func PasswordResetLink(usr User) (uid, token string) {
	return encodeUID(usr), makeToken(usr)
}
