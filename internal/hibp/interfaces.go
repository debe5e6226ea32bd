package hibp

import "context"

type IPasswordChecker interface {
	PasswordPwned(ctx context.Context, password string) (bool, error)
}
